package prevtag

import (
	"fmt"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"
)

var testSignature = &object.Signature{
	Name:  "test",
	Email: "test@example.com",
	When:  time.Now(),
}

// testRepoCreate creates a new in-memory git repository for testing
func testRepoCreate() (*git.Repository, error) {
	storage := memory.NewStorage()
	fs := memfs.New()
	return git.Init(storage, fs)
}

// testRepoFSCreate creates a new filesystem-based git repository for testing
func testRepoFSCreate(path string) (*git.Repository, error) {
	fs := osfs.New(path)
	storage := filesystem.NewStorage(fs, nil)
	return git.Init(storage, fs)
}

// testGraph builds commit graphs with explicit parents, so branches and
// merges don't need checkouts.
type testGraph struct {
	repo    *git.Repository
	commits int
}

// testGraphCreate creates an in-memory repository with an origin remote
func testGraphCreate() (*testGraph, error) {
	repo, err := testRepoCreate()
	if err != nil {
		return nil, err
	}

	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{"https://example.com/repo.git"},
	})
	if err != nil {
		return nil, err
	}

	return &testGraph{repo: repo}, nil
}

// commit adds a commit with the given parents and moves HEAD to it. Without
// parents the commit follows HEAD, or becomes the root commit of an empty repository.
func (g *testGraph) commit(parents ...plumbing.Hash) (plumbing.Hash, error) {
	workTree, err := g.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	g.commits++
	filename := fmt.Sprintf("simple-%d", g.commits)
	if err := writeFile(workTree.Filesystem, filename, filename); err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := workTree.Add(filename); err != nil {
		return plumbing.ZeroHash, err
	}

	return workTree.Commit("Simple "+filename, &git.CommitOptions{
		Author:  testSignature,
		Parents: parents,
	})
}

// taggedCommit adds a commit with the given parents and a lightweight tag on it
func (g *testGraph) taggedCommit(tag string, parents ...plumbing.Hash) (plumbing.Hash, error) {
	hash, err := g.commit(parents...)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return hash, g.tag(tag, hash)
}

func (g *testGraph) tag(name string, commit plumbing.Hash) error {
	_, err := g.repo.CreateTag(name, commit, nil)
	return err
}

func (g *testGraph) annotatedTag(name string, commit plumbing.Hash) error {
	_, err := g.repo.CreateTag(name, commit, &git.CreateTagOptions{
		Tagger:  testSignature,
		Message: "Release " + name,
	})
	return err
}

// setShallow marks commits as the boundary of a partial history
func (g *testGraph) setShallow(commits ...plumbing.Hash) error {
	return g.repo.Storer.SetShallow(commits)
}

// writeFile writes content to a file in the given filesystem
func writeFile(fs billy.Filesystem, filename, content string) error {
	file, err := fs.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write([]byte(content))
	return err
}
