package prevtag

import (
	"context"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp/sideband"
)

// Repository is the view of a local repository the resolver works against.
// GitRepository implements it on top of go-git.
type Repository interface {
	// Head returns the commit HEAD resolves to.
	Head() (plumbing.Hash, error)

	// Parents returns the parent ids of a commit, mainline parent first.
	// Commits on the shallow boundary report no parents.
	Parents(commit plumbing.Hash) ([]plumbing.Hash, error)

	// Tags returns every tag peeled to the commit it designates.
	Tags() ([]Tag, error)

	// IsShallow reports whether the local history is truncated.
	IsShallow() (bool, error)

	Remotes() ([]Remote, error)

	Fetch(ctx context.Context, req FetchRequest) error

	Close() error
}

// Remote is a configured remote and its URLs.
type Remote struct {
	Name string
	URLs []string
}

// FetchRequest describes a single fetch from a remote.
type FetchRequest struct {
	Remote string

	// RefSpecs default to the remote's configured fetch ref-specs when empty
	RefSpecs []config.RefSpec

	Tags git.TagMode

	// Depth limits the fetched history, zero means unlimited
	Depth int

	Progress sideband.Progress
}
