package prevtag

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTagPatterns indicates the caller passed an empty tag pattern list
	ErrNoTagPatterns = errors.New("tag patterns can't be empty")

	// ErrRepositoryNotFound indicates no Git repository exists at or above the given path
	ErrRepositoryNotFound = errors.New("git repository not found")

	// ErrNoRemote indicates the repository has no remote with at least one URL
	ErrNoRemote = errors.New("no remote configured")

	// ErrRemoteNotFound indicates an explicitly requested remote does not exist
	ErrRemoteNotFound = errors.New("remote not found")
)

// VersionParseError is returned when a tag matches a pattern but the captured
// version can't be parsed.
type VersionParseError struct {
	Tag     string
	Pattern string
	Value   string
	Err     error
}

func (e *VersionParseError) Error() string {
	return fmt.Sprintf("tag %q matched pattern /%s/ but %q is not a version: %v",
		e.Tag, e.Pattern, e.Value, e.Err)
}

func (e *VersionParseError) Unwrap() error {
	return e.Err
}

// FetchError wraps a failed fetch with the escalation tier it belonged to.
type FetchError struct {
	Tier   string
	Remote string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s from remote %q: %v", e.Tier, e.Remote, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
