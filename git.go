package prevtag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// OpenRepository opens the Git repository containing path
func OpenRepository(path string) (*GitRepository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", path, err)
	}
	return NewGitRepository(repo), nil
}

// GitRepository adapts a go-git repository to Repository.
type GitRepository struct {
	repo    *git.Repository
	shallow map[plumbing.Hash]struct{}
}

func NewGitRepository(repo *git.Repository) *GitRepository {
	return &GitRepository{repo: repo}
}

// Unwrap returns the underlying go-git repository.
func (r *GitRepository) Unwrap() *git.Repository {
	return r.repo
}

func (r *GitRepository) Head() (plumbing.Hash, error) {
	head, err := r.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving HEAD: %w", err)
	}
	return r.peel(head.Hash())
}

func (r *GitRepository) Parents(commit plumbing.Hash) ([]plumbing.Hash, error) {
	shallow, err := r.shallowCommits()
	if err != nil {
		return nil, err
	}
	if _, ok := shallow[commit]; ok {
		return nil, nil
	}

	c, err := r.repo.CommitObject(commit)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		// history was cut off before this commit
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting commit object %s: %w", commit, err)
	}
	return c.ParentHashes, nil
}

func (r *GitRepository) Tags() ([]Tag, error) {
	refs, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer refs.Close()

	var tags []Tag
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}

		commit, err := r.peel(ref.Hash())
		if errors.Is(err, errNotCommit) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("peeling tag %s: %w", ref.Name().Short(), err)
		}

		tags = append(tags, Tag{Name: ref.Name().Short(), Commit: commit})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(tags, func(i, j int) bool {
		return tags[i].Name < tags[j].Name
	})
	return tags, nil
}

var errNotCommit = errors.New("object is not a commit")

// peel follows annotated tags until it reaches a commit. Objects missing from
// the local store are returned as they are.
func (r *GitRepository) peel(hash plumbing.Hash) (plumbing.Hash, error) {
	for {
		obj, err := r.repo.Object(plumbing.AnyObject, hash)
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return hash, nil
		}
		if err != nil {
			return plumbing.ZeroHash, err
		}

		switch o := obj.(type) {
		case *object.Tag:
			hash = o.Target
		case *object.Commit:
			return o.Hash, nil
		default:
			return plumbing.ZeroHash, errNotCommit
		}
	}
}

func (r *GitRepository) IsShallow() (bool, error) {
	shallow, err := r.shallowCommits()
	if err != nil {
		return false, err
	}
	return len(shallow) > 0, nil
}

func (r *GitRepository) shallowCommits() (map[plumbing.Hash]struct{}, error) {
	if r.shallow != nil {
		return r.shallow, nil
	}

	hashes, err := r.repo.Storer.Shallow()
	if err != nil {
		return nil, fmt.Errorf("reading shallow commits: %w", err)
	}

	r.shallow = make(map[plumbing.Hash]struct{}, len(hashes))
	for _, h := range hashes {
		r.shallow[h] = struct{}{}
	}
	return r.shallow, nil
}

// Remotes returns the configured remotes in the order they appear in the
// repository configuration.
func (r *GitRepository) Remotes() ([]Remote, error) {
	cfg, err := r.repo.Config()
	if err != nil {
		return nil, fmt.Errorf("reading repository config: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Remotes))
	var remotes []Remote
	if cfg.Raw != nil && cfg.Raw.HasSection("remote") {
		for _, sub := range cfg.Raw.Section("remote").Subsections {
			rc, ok := cfg.Remotes[sub.Name]
			if !ok || seen[sub.Name] {
				continue
			}
			seen[sub.Name] = true
			remotes = append(remotes, Remote{Name: rc.Name, URLs: rc.URLs})
		}
	}

	var rest []string
	for name := range cfg.Remotes {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		rc := cfg.Remotes[name]
		remotes = append(remotes, Remote{Name: rc.Name, URLs: rc.URLs})
	}

	return remotes, nil
}

func (r *GitRepository) Fetch(ctx context.Context, req FetchRequest) error {
	// the fetch may move the shallow boundary
	r.shallow = nil

	err := r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: req.Remote,
		RefSpecs:   req.RefSpecs,
		Depth:      req.Depth,
		Tags:       req.Tags,
		Progress:   req.Progress,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return r.pruneShallow()
}

// pruneShallow drops boundary commits whose parents are all present locally.
// go-git records new boundaries after a deepening fetch but never removes the
// ones the fetch made whole.
func (r *GitRepository) pruneShallow() error {
	hashes, err := r.repo.Storer.Shallow()
	if err != nil {
		return fmt.Errorf("reading shallow commits: %w", err)
	}
	if len(hashes) == 0 {
		return nil
	}

	kept := make([]plumbing.Hash, 0, len(hashes))
	for _, h := range hashes {
		whole, err := r.parentsPresent(h)
		if err != nil {
			return err
		}
		if !whole {
			kept = append(kept, h)
		}
	}
	if len(kept) == len(hashes) {
		return nil
	}

	r.shallow = nil
	if len(kept) == 0 {
		// an empty shallow file still marks the repository shallow for git
		if fs, ok := r.repo.Storer.(*filesystem.Storage); ok {
			err := fs.Filesystem().Remove("shallow")
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("removing shallow file: %w", err)
			}
			return nil
		}
	}
	if err := r.repo.Storer.SetShallow(kept); err != nil {
		return fmt.Errorf("writing shallow commits: %w", err)
	}
	return nil
}

func (r *GitRepository) parentsPresent(commit plumbing.Hash) (bool, error) {
	c, err := r.repo.CommitObject(commit)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting commit object %s: %w", commit, err)
	}

	for _, parent := range c.ParentHashes {
		err := r.repo.Storer.HasEncodedObject(parent)
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("looking up commit %s: %w", parent, err)
		}
	}
	return true, nil
}

func (r *GitRepository) Close() error {
	if c, ok := r.repo.Storer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
