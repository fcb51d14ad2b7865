package prevtag

import (
	"fmt"

	"github.com/go-git/go-git/v5"
)

// SelectRemote picks the remote to fetch from: the default remote when it has
// a URL, otherwise the first remote that has one.
func SelectRemote(remotes []Remote) (Remote, error) {
	var first *Remote
	for i := range remotes {
		remote := &remotes[i]
		if len(remote.URLs) == 0 {
			continue
		}
		if remote.Name == git.DefaultRemoteName {
			return *remote, nil
		}
		if first == nil {
			first = remote
		}
	}

	if first == nil {
		return Remote{}, ErrNoRemote
	}
	return *first, nil
}

// selectNamedRemote returns the remote called name, or falls back to
// SelectRemote when name is empty.
func selectNamedRemote(remotes []Remote, name string) (Remote, error) {
	if name == "" {
		return SelectRemote(remotes)
	}

	for _, remote := range remotes {
		if remote.Name != name {
			continue
		}
		if len(remote.URLs) == 0 {
			return Remote{}, fmt.Errorf("%w: remote %q has no URL", ErrNoRemote, name)
		}
		return remote, nil
	}
	return Remote{}, fmt.Errorf("%w: %q", ErrRemoteNotFound, name)
}
