package prevtag

import (
	"context"
	"errors"
	"os"
	"regexp"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"
)

// recordingRepo records fetches instead of talking to a remote. onFetch
// stands in for whatever the fetch would have changed locally, including the
// shallow boundary moving once missing parents arrive. Real clones are covered
// in integration_test.go.
type recordingRepo struct {
	*GitRepository
	fetches []FetchRequest
	onFetch func(req FetchRequest) error
}

func newRecordingRepo(g *testGraph) *recordingRepo {
	return &recordingRepo{GitRepository: NewGitRepository(g.repo)}
}

func (r *recordingRepo) Fetch(ctx context.Context, req FetchRequest) error {
	r.fetches = append(r.fetches, req)
	r.GitRepository.shallow = nil
	if r.onFetch != nil {
		return r.onFetch(req)
	}
	return nil
}

func testResolver(t *testing.T, opts Options) *Resolver {
	t.Helper()
	if opts.TagPatterns == nil {
		opts.TagPatterns = verPatterns
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger
	}
	resolver, err := NewResolver(opts)
	require.NoError(t, err)
	return resolver
}

// linearGraph creates root <- ver-1 <- ver-2 <- c3 <- c4 (HEAD)
func linearGraph(t *testing.T) (g *testGraph, ver2, c3, c4 plumbing.Hash) {
	t.Helper()

	g, err := testGraphCreate()
	require.NoError(t, err)
	root, err := g.commit()
	require.NoError(t, err)
	ver1, err := g.taggedCommit("ver-1", root)
	require.NoError(t, err)
	ver2, err = g.taggedCommit("ver-2", ver1)
	require.NoError(t, err)
	c3, err = g.commit(ver2)
	require.NoError(t, err)
	c4, err = g.commit(c3)
	require.NoError(t, err)
	return g, ver2, c3, c4
}

func TestNewResolver(t *testing.T) {
	t.Run("Empty tag patterns", func(t *testing.T) {
		_, err := NewResolver(Options{})
		require.ErrorIs(t, err, ErrNoTagPatterns)
	})

	t.Run("Empty tag patterns are rejected before opening the repository", func(t *testing.T) {
		_, err := Resolve(context.Background(), "/non/existent/path", Options{})
		require.ErrorIs(t, err, ErrNoTagPatterns)
	})
}

func TestResolveRepositoryNotFound(t *testing.T) {
	dir, err := os.MkdirTemp("", "non-git")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	_, err = Resolve(context.Background(), dir, Options{
		TagPatterns: verPatterns,
		Logger:      discardLogger,
	})
	require.ErrorIs(t, err, ErrRepositoryNotFound)
}

func TestResolveFullHistory(t *testing.T) {
	t.Run("Tags fetch only", func(t *testing.T) {
		g, ver2, _, _ := linearGraph(t)
		repo := newRecordingRepo(g)

		found, err := testResolver(t, Options{}).ResolveRepository(context.Background(), repo)
		require.NoError(t, err)
		requireRefVersion(t, found, "2", ver2, "ver-2")

		require.Len(t, repo.fetches, 1)
		req := repo.fetches[0]
		require.Equal(t, "origin", req.Remote)
		require.Equal(t, []config.RefSpec{"+refs/tags/*:refs/tags/*"}, req.RefSpecs)
		require.Equal(t, git.TagFollowing, req.Tags)
		require.Zero(t, req.Depth)
		require.NotNil(t, req.Progress)
	})

	t.Run("Tags added to the remote after cloning", func(t *testing.T) {
		g, err := testGraphCreate()
		require.NoError(t, err)
		root, err := g.commit()
		require.NoError(t, err)
		c1, err := g.commit(root)
		require.NoError(t, err)
		c2, err := g.commit(c1)
		require.NoError(t, err)
		c3, err := g.commit(c2)
		require.NoError(t, err)
		_, err = g.commit(c3)
		require.NoError(t, err)

		repo := newRecordingRepo(g)
		repo.onFetch = func(req FetchRequest) error {
			for name, commit := range map[string]plumbing.Hash{"ver-1": c1, "ver-2": c2, "ver-qwerty": c3} {
				if err := g.tag(name, commit); err != nil {
					return err
				}
			}
			return nil
		}

		found, err := testResolver(t, Options{}).ResolveRepository(context.Background(), repo)
		require.NoError(t, err)
		requireRefVersion(t, found, "2", c2, "ver-2")
		require.Len(t, repo.fetches, 1)
	})

	t.Run("Repeated resolution gives the same answer without escalating", func(t *testing.T) {
		g, ver2, _, _ := linearGraph(t)
		repo := newRecordingRepo(g)
		resolver := testResolver(t, Options{})

		first, err := resolver.ResolveRepository(context.Background(), repo)
		require.NoError(t, err)
		second, err := resolver.ResolveRepository(context.Background(), repo)
		require.NoError(t, err)

		require.Equal(t, first, second)
		requireRefVersion(t, second, "2", ver2, "ver-2")
		require.Len(t, repo.fetches, 2)
		for _, req := range repo.fetches {
			require.Zero(t, req.Depth)
		}
	})

	t.Run("HEAD tags can be skipped", func(t *testing.T) {
		g, err := testGraphCreate()
		require.NoError(t, err)
		ver1, err := g.taggedCommit("ver-1")
		require.NoError(t, err)
		_, err = g.taggedCommit("ver-2", ver1)
		require.NoError(t, err)

		found, err := testResolver(t, Options{SkipHeadTags: true}).
			ResolveRepository(context.Background(), newRecordingRepo(g))
		require.NoError(t, err)
		requireRefVersion(t, found, "1", ver1, "ver-1")
	})

	t.Run("Explicit remote", func(t *testing.T) {
		g, _, _, _ := linearGraph(t)
		_, err := g.repo.CreateRemote(&config.RemoteConfig{
			Name: "upstream",
			URLs: []string{"https://example.com/upstream.git"},
		})
		require.NoError(t, err)
		repo := newRecordingRepo(g)

		_, err = testResolver(t, Options{Remote: "upstream"}).ResolveRepository(context.Background(), repo)
		require.NoError(t, err)
		require.Equal(t, "upstream", repo.fetches[0].Remote)
	})
}

func TestResolveEscalation(t *testing.T) {
	t.Run("Deepening finds the version", func(t *testing.T) {
		g, ver2, _, c4 := linearGraph(t)
		require.NoError(t, g.setShallow(c4))

		repo := newRecordingRepo(g)
		repo.onFetch = func(req FetchRequest) error {
			if req.Depth > 0 {
				return g.setShallow()
			}
			return nil
		}

		found, err := testResolver(t, Options{}).ResolveRepository(context.Background(), repo)
		require.NoError(t, err)
		requireRefVersion(t, found, "2", ver2, "ver-2")

		require.Len(t, repo.fetches, 2)
		deepen := repo.fetches[1]
		require.Equal(t, DefaultDepth, deepen.Depth)
		require.Equal(t, git.NoTags, deepen.Tags)
		require.Empty(t, deepen.RefSpecs)
	})

	t.Run("Unshallowing finds the version", func(t *testing.T) {
		g, ver2, c3, c4 := linearGraph(t)
		require.NoError(t, g.setShallow(c4))

		repo := newRecordingRepo(g)
		repo.onFetch = func(req FetchRequest) error {
			switch req.Depth {
			case 1:
				return g.setShallow(c3)
			case UnshallowDepth:
				return g.setShallow()
			}
			return nil
		}

		found, err := testResolver(t, Options{Depth: 1}).ResolveRepository(context.Background(), repo)
		require.NoError(t, err)
		requireRefVersion(t, found, "2", ver2, "ver-2")

		require.Len(t, repo.fetches, 3)
		require.Equal(t, 1, repo.fetches[1].Depth)
		require.Equal(t, UnshallowDepth, repo.fetches[2].Depth)
		require.Equal(t, git.NoTags, repo.fetches[2].Tags)
	})

	t.Run("No escalation without shallow history", func(t *testing.T) {
		g, err := testGraphCreate()
		require.NoError(t, err)
		root, err := g.commit()
		require.NoError(t, err)
		side, err := g.taggedCommit("ver-1", root)
		require.NoError(t, err)
		_, err = g.commit(root)
		require.NoError(t, err)
		require.NotEqual(t, plumbing.ZeroHash, side)

		repo := newRecordingRepo(g)
		found, err := testResolver(t, Options{}).ResolveRepository(context.Background(), repo)
		require.NoError(t, err)
		require.Nil(t, found)
		require.Len(t, repo.fetches, 1)
	})

	t.Run("Cancelled between tiers", func(t *testing.T) {
		g, _, _, c4 := linearGraph(t)
		require.NoError(t, g.setShallow(c4))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		repo := newRecordingRepo(g)
		repo.onFetch = func(req FetchRequest) error {
			cancel()
			return nil
		}

		_, err := testResolver(t, Options{}).ResolveRepository(ctx, repo)
		require.ErrorIs(t, err, context.Canceled)
		require.Len(t, repo.fetches, 1)
	})
}

func TestResolveEmptyResults(t *testing.T) {
	t.Run("No version tags", func(t *testing.T) {
		g, err := testGraphCreate()
		require.NoError(t, err)
		root, err := g.commit()
		require.NoError(t, err)
		require.NoError(t, g.tag("v1.0.0", root))
		require.NoError(t, g.setShallow(root))

		log, buf := bufferLogger()
		repo := newRecordingRepo(g)
		found, err := testResolver(t, Options{Logger: log}).ResolveRepository(context.Background(), repo)
		require.NoError(t, err)
		require.Nil(t, found)
		require.Len(t, repo.fetches, 1)
		require.Contains(t, buf.String(), "No version tags found")
	})

	t.Run("Shallow history without reachable version", func(t *testing.T) {
		g, err := testGraphCreate()
		require.NoError(t, err)
		root, err := g.commit()
		require.NoError(t, err)
		tagged, err := g.taggedCommit("ver-1", root)
		require.NoError(t, err)
		head, err := g.commit(root)
		require.NoError(t, err)
		require.NoError(t, g.setShallow(head))
		require.NotEqual(t, tagged, head)

		log, buf := bufferLogger()
		repo := newRecordingRepo(g)
		repo.onFetch = func(req FetchRequest) error {
			if req.Depth == UnshallowDepth {
				return g.setShallow()
			}
			return nil
		}

		found, err := testResolver(t, Options{Logger: log}).ResolveRepository(context.Background(), repo)
		require.NoError(t, err)
		require.Nil(t, found)
		require.Len(t, repo.fetches, 3)
		require.Contains(t, buf.String(), "No reachable version found")
	})
}

func TestResolveErrors(t *testing.T) {
	t.Run("No remote", func(t *testing.T) {
		repo, err := testRepoCreate()
		require.NoError(t, err)
		g := &testGraph{repo: repo}
		_, err = g.taggedCommit("ver-1")
		require.NoError(t, err)

		recording := newRecordingRepo(g)
		_, err = testResolver(t, Options{}).ResolveRepository(context.Background(), recording)
		require.ErrorIs(t, err, ErrNoRemote)
		require.Empty(t, recording.fetches)
	})

	t.Run("Fetch failure", func(t *testing.T) {
		g, _, _, _ := linearGraph(t)
		repo := newRecordingRepo(g)
		transportErr := errors.New("connection refused")
		repo.onFetch = func(req FetchRequest) error {
			return transportErr
		}

		_, err := testResolver(t, Options{}).ResolveRepository(context.Background(), repo)
		require.ErrorIs(t, err, transportErr)

		var fetchErr *FetchError
		require.ErrorAs(t, err, &fetchErr)
		require.Equal(t, "tags", fetchErr.Tier)
		require.Equal(t, "origin", fetchErr.Remote)
	})

	t.Run("Unparsable version", func(t *testing.T) {
		g, err := testGraphCreate()
		require.NoError(t, err)
		_, err = g.taggedCommit("ver-x")
		require.NoError(t, err)

		_, err = testResolver(t, Options{
			TagPatterns: []*regexp.Regexp{regexp.MustCompile(`ver-(?P<version>.+)`)},
		}).ResolveRepository(context.Background(), newRecordingRepo(g))

		var parseErr *VersionParseError
		require.ErrorAs(t, err, &parseErr)
		require.Equal(t, "ver-x", parseErr.Tag)
	})
}
