// Package prevtag resolves the nearest previously released version of a Git
// repository from its tags.
package prevtag

import (
	"fmt"
	"strings"

	"github.com/blang/semver"
	"github.com/go-git/go-git/v5/plumbing"
)

// Version is a parsed semantic version that remembers the text it was parsed from.
type Version struct {
	semver   semver.Version
	original string
}

// ParseVersion parses a version string. A leading "v" and missing minor or
// patch components are accepted, so "2" orders as 2.0.0.
func ParseVersion(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Version{}, fmt.Errorf("empty version string")
	}

	normalized := strings.TrimPrefix(trimmed, "v")
	parts := strings.SplitN(normalized, ".", 3)
	if len(parts) < 3 {
		if strings.ContainsAny(parts[len(parts)-1], "+-") {
			return Version{}, fmt.Errorf("short version %q can't carry pre-release or build metadata", s)
		}
		for len(parts) < 3 {
			parts = append(parts, "0")
		}
		normalized = strings.Join(parts, ".")
	}

	parsed, err := semver.Parse(normalized)
	if err != nil {
		return Version{}, fmt.Errorf("parsing version %q: %w", s, err)
	}

	return Version{semver: parsed, original: trimmed}, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Semver returns the normalized semantic version.
func (v Version) Semver() semver.Version {
	return v.semver
}

// Original returns the text the version was parsed from.
func (v Version) Original() string {
	return v.original
}

func (v Version) String() string {
	return v.original
}

// Compare returns -1, 0 or 1 when v is lower than, equal to or greater than other.
func (v Version) Compare(other Version) int {
	return v.semver.Compare(other.semver)
}

func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}

func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// TagVersion is a version extracted from a single tag.
type TagVersion struct {
	Tag     string
	Version Version

	// PatternIndex is the position of the matching pattern in the configured list.
	PatternIndex int
}

// better reports whether tv should be preferred over other when both are on the same commit.
func (tv TagVersion) better(other TagVersion) bool {
	if c := tv.Version.Compare(other.Version); c != 0 {
		return c > 0
	}
	if tv.PatternIndex != other.PatternIndex {
		return tv.PatternIndex < other.PatternIndex
	}
	return tv.Tag < other.Tag
}

// CommitTagVersion associates a commit with the versions of every matching tag on it.
type CommitTagVersion struct {
	Commit   plumbing.Hash
	Versions []TagVersion
}

// Best returns the highest version on the commit. Equal versions fall back to
// the earlier configured pattern, then to the smaller tag name.
func (c *CommitTagVersion) Best() (TagVersion, bool) {
	if c == nil || len(c.Versions) == 0 {
		return TagVersion{}, false
	}

	best := c.Versions[0]
	for _, tv := range c.Versions[1:] {
		if tv.better(best) {
			best = tv
		}
	}
	return best, true
}

// GitRefVersion is a resolved version together with the commit carrying it.
type GitRefVersion struct {
	Version Version
	Commit  plumbing.Hash
	Tag     string
}

func (r *GitRefVersion) Compare(other *GitRefVersion) int {
	return r.Version.Compare(other.Version)
}

func (r *GitRefVersion) String() string {
	return fmt.Sprintf("%s (%s)", r.Version, r.Commit)
}
