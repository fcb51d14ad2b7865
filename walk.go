package prevtag

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

const cancelCheckInterval = 1024

// walker finds the nearest tagged version reachable from a commit.
//
// Along the mainline (first parents) the first commit carrying a version ends
// the walk. Side parents of merge commits are walked before the mainline
// parent, and the highest version found on them competes with whatever the
// mainline walk ends on.
type walker struct {
	repo     Repository
	index    TagIndex
	skipHead bool

	visited map[plumbing.Hash]struct{}
}

func newWalker(repo Repository, index TagIndex, skipHead bool) *walker {
	return &walker{
		repo:     repo,
		index:    index,
		skipHead: skipHead,
		visited:  make(map[plumbing.Hash]struct{}),
	}
}

// frame is one pending walk along a line of first parents.
type frame struct {
	commit  plumbing.Hash
	best    *GitRefVersion
	parents []plumbing.Hash
	next    int
	entered bool
}

func (w *walker) walk(ctx context.Context, head plumbing.Hash) (*GitRefVersion, error) {
	stack := []*frame{{commit: head}}

	var result *GitRefVersion
	returned := false

	for len(stack) > 0 {
		f := stack[len(stack)-1]

		if returned {
			if result != nil && (f.best == nil || f.best.Compare(result) < 0) {
				f.best = result
			}
			returned = false
		}

		if !f.entered {
			if _, ok := w.visited[f.commit]; ok {
				stack = stack[:len(stack)-1]
				result, returned = f.best, true
				continue
			}
			w.visited[f.commit] = struct{}{}

			if len(w.visited)%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}

			if local := w.localBest(f.commit, head); local != nil {
				stack = stack[:len(stack)-1]
				if f.best == nil || f.best.Compare(local) <= 0 {
					result = local
				} else {
					result = f.best
				}
				returned = true
				continue
			}

			parents, err := w.repo.Parents(f.commit)
			if err != nil {
				return nil, fmt.Errorf("walking commit %s: %w", f.commit, err)
			}
			if len(parents) == 0 {
				stack = stack[:len(stack)-1]
				result, returned = f.best, true
				continue
			}

			f.parents = parents
			f.next = 1
			f.entered = true
		}

		if f.next < len(f.parents) {
			side := f.parents[f.next]
			f.next++
			stack = append(stack, &frame{commit: side})
			continue
		}

		f.commit = f.parents[0]
		f.parents = nil
		f.entered = false
	}

	return result, nil
}

func (w *walker) localBest(commit, head plumbing.Hash) *GitRefVersion {
	if w.skipHead && commit == head {
		return nil
	}

	tv, ok := w.index[commit].Best()
	if !ok {
		return nil
	}
	return &GitRefVersion{Version: tv.Version, Commit: commit, Tag: tv.Tag}
}
