package prevtag

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/go-git/go-git/v5/plumbing"
)

// VersionGroup is the name of the capturing group holding the version in a tag pattern.
const VersionGroup = "version"

// Tag is a tag name resolved to the commit it ultimately points at.
type Tag struct {
	// Name is the short name, without the refs/tags/ prefix
	Name   string
	Commit plumbing.Hash
}

// TagIndex maps commits to the versions of the tags pointing at them.
type TagIndex map[plumbing.Hash]*CommitTagVersion

// TagPattern is a tag name pattern matched against the whole tag name.
type TagPattern struct {
	expr     *regexp.Regexp
	anchored *regexp.Regexp
	group    int
}

// NewTagPattern wraps re so that it only matches complete tag names.
// A missing version group is not an error: such a pattern never yields a version.
func NewTagPattern(re *regexp.Regexp) (TagPattern, error) {
	anchored, err := regexp.Compile(`^(?:` + re.String() + `)$`)
	if err != nil {
		return TagPattern{}, fmt.Errorf("anchoring tag pattern /%s/: %w", re, err)
	}
	return TagPattern{
		expr:     re,
		anchored: anchored,
		group:    anchored.SubexpIndex(VersionGroup),
	}, nil
}

func (p TagPattern) String() string {
	return p.expr.String()
}

// CompilePatterns compiles regular expressions given as strings.
func CompilePatterns(exprs []string) ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compiling tag pattern %q: %w", expr, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

func newTagPatterns(patterns []*regexp.Regexp) ([]TagPattern, error) {
	tagPatterns := make([]TagPattern, 0, len(patterns))
	for _, re := range patterns {
		p, err := NewTagPattern(re)
		if err != nil {
			return nil, err
		}
		tagPatterns = append(tagPatterns, p)
	}
	return tagPatterns, nil
}

// MatchTag extracts a version from a tag name using the first pattern that
// matches it. Patterns after the first structural match are never tried, even
// when that match yields no usable version.
func MatchTag(name string, patterns []TagPattern, log *slog.Logger) (TagVersion, bool, error) {
	for i, p := range patterns {
		m := p.anchored.FindStringSubmatchIndex(name)
		if m == nil {
			continue
		}

		if p.group < 0 || m[2*p.group] < 0 {
			log.Warn("Capturing group \"version\" was not matched",
				"pattern", p.String(), "tag", name)
			return TagVersion{}, false, nil
		}

		value := name[m[2*p.group]:m[2*p.group+1]]
		if value == "" {
			log.Warn("Capturing group \"version\" is empty",
				"pattern", p.String(), "tag", name)
			return TagVersion{}, false, nil
		}

		version, err := ParseVersion(value)
		if err != nil {
			return TagVersion{}, false, &VersionParseError{
				Tag:     name,
				Pattern: p.String(),
				Value:   value,
				Err:     err,
			}
		}

		return TagVersion{Tag: name, Version: version, PatternIndex: i}, true, nil
	}

	return TagVersion{}, false, nil
}

// BuildTagIndex matches every tag and groups the resulting versions by commit.
func BuildTagIndex(tags []Tag, patterns []TagPattern, log *slog.Logger) (TagIndex, error) {
	index := make(TagIndex)
	for _, tag := range tags {
		tv, ok, err := MatchTag(tag.Name, patterns, log)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		entry, exists := index[tag.Commit]
		if !exists {
			entry = &CommitTagVersion{Commit: tag.Commit}
			index[tag.Commit] = entry
		}
		entry.Versions = append(entry.Versions, tv)
	}
	return index, nil
}
