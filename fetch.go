package prevtag

import (
	"context"
	"log/slog"
	"math"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
)

// UnshallowDepth is the depth git itself sends for "fetch --unshallow".
const UnshallowDepth = math.MaxInt32

var tagsRefSpec = config.RefSpec("+refs/tags/*:refs/tags/*")

// fetchTier is one step of the fetch escalation. The first tier always runs;
// the others only run while the walk found nothing and the local history is
// still shallow.
type fetchTier struct {
	name     string
	refSpecs []config.RefSpec
	tags     git.TagMode
	depth    int

	// onlyShallow marks tiers that widen the history of a shallow clone
	onlyShallow bool
	reason      string
}

func fetchTiers(opts Options) []fetchTier {
	return []fetchTier{
		{
			name:     "tags",
			refSpecs: []config.RefSpec{tagsRefSpec},
			tags:     git.TagFollowing,
		},
		{
			name:        "deepen",
			tags:        git.NoTags,
			depth:       opts.depth(),
			onlyShallow: true,
			reason:      "The repository was cloned or fetched partially and local commits don't have version tags, fetching more history",
		},
		{
			name:        "unshallow",
			tags:        git.NoTags,
			depth:       UnshallowDepth,
			onlyShallow: true,
			reason:      "The repository is still partial and local commits don't have version tags, fetching all commits",
		},
	}
}

func (t fetchTier) request(remote string, progress *progressWriter) FetchRequest {
	return FetchRequest{
		Remote:   remote,
		RefSpecs: t.refSpecs,
		Tags:     t.tags,
		Depth:    t.depth,
		Progress: progress,
	}
}

// shouldRun reports whether the tier applies to the repository in its current state.
func (t fetchTier) shouldRun(repo Repository) (bool, error) {
	if !t.onlyShallow {
		return true, nil
	}
	return repo.IsShallow()
}

func runFetch(ctx context.Context, repo Repository, remote Remote, tier fetchTier, opts Options, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, opts.fetchTimeout())
	defer cancel()

	progress := newProgressWriter(ctx, log.With("tier", tier.name), opts.ProgressLevel)
	if err := repo.Fetch(ctx, tier.request(remote.Name, progress)); err != nil {
		return &FetchError{Tier: tier.name, Remote: remote.Name, Err: err}
	}
	return nil
}
