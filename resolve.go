package prevtag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Resolve finds the nearest version tag reachable from HEAD of the repository
// containing path. A nil result with a nil error means no version was found.
func Resolve(ctx context.Context, path string, opts Options) (*GitRefVersion, error) {
	resolver, err := NewResolver(opts)
	if err != nil {
		return nil, err
	}
	return resolver.Resolve(ctx, path)
}

// Resolver resolves previous versions with a fixed set of options.
type Resolver struct {
	opts     Options
	patterns []TagPattern
}

// NewResolver validates opts. It performs no I/O.
func NewResolver(opts Options) (*Resolver, error) {
	if len(opts.TagPatterns) == 0 {
		return nil, ErrNoTagPatterns
	}

	patterns, err := newTagPatterns(opts.TagPatterns)
	if err != nil {
		return nil, err
	}

	return &Resolver{opts: opts, patterns: patterns}, nil
}

// Resolve opens the repository containing path and resolves its previous version.
func (r *Resolver) Resolve(ctx context.Context, path string) (ref *GitRefVersion, err error) {
	log := r.opts.logger().With("repository", path)
	log.Info("Retrieving previous version")

	repo, err := OpenRepository(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("closing repository: %w", closeErr))
		}
	}()

	return r.resolve(ctx, repo, log)
}

// ResolveRepository resolves the previous version of an already opened
// repository. The repository is not closed.
func (r *Resolver) ResolveRepository(ctx context.Context, repo Repository) (*GitRefVersion, error) {
	return r.resolve(ctx, repo, r.opts.logger())
}

func (r *Resolver) resolve(ctx context.Context, repo Repository, log *slog.Logger) (*GitRefVersion, error) {
	remotes, err := repo.Remotes()
	if err != nil {
		return nil, fmt.Errorf("listing remotes: %w", err)
	}
	remote, err := selectNamedRemote(remotes, r.opts.Remote)
	if err != nil {
		return nil, err
	}
	log = log.With("remote", remote.Name)

	head, err := repo.Head()
	if err != nil {
		return nil, err
	}

	var index TagIndex
	for _, tier := range fetchTiers(r.opts) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		run, err := tier.shouldRun(repo)
		if err != nil {
			return nil, err
		}
		if !run {
			break
		}

		if tier.reason != "" {
			log.Warn(tier.reason, "depth", tier.depth)
		} else {
			log.Info("Fetching tags")
		}

		if err := runFetch(ctx, repo, remote, tier, r.opts, log); err != nil {
			return nil, err
		}

		if index == nil {
			tags, err := repo.Tags()
			if err != nil {
				return nil, err
			}
			index, err = BuildTagIndex(tags, r.patterns, log)
			if err != nil {
				return nil, err
			}
			if len(index) == 0 {
				log.Warn("No version tags found")
				return nil, nil
			}
		}

		found, err := newWalker(repo, index, r.opts.SkipHeadTags).walk(ctx, head)
		if err != nil {
			return nil, err
		}
		if found != nil {
			log.Info("Found previous version",
				"version", found.Version.String(), "commit", found.Commit.String(), "tag", found.Tag)
			return found, nil
		}
	}

	log.Warn("No reachable version found", "commit", head.String())
	return nil, nil
}
