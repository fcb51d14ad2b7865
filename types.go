package prevtag

import (
	"log/slog"
	"regexp"
	"time"
)

const (
	// DefaultDepth is the history depth fetched when a shallow clone has no reachable version tag
	DefaultDepth = 1000

	// DefaultFetchTimeout bounds a single fetch
	DefaultFetchTimeout = time.Hour
)

// Options configures version resolution
type Options struct {
	// TagPatterns are tried in order against every tag name. Each pattern
	// should declare a capturing group named "version" and must match the
	// whole tag name.
	TagPatterns []*regexp.Regexp

	// Remote names the remote to fetch from (default: "origin" if it has a
	// URL, otherwise the first remote with a URL)
	Remote string

	// SkipHeadTags ignores tags on the HEAD commit itself, so the result is
	// strictly older than HEAD
	SkipHeadTags bool

	// Depth is the history depth of the first deepening fetch (default: DefaultDepth)
	Depth int

	// FetchTimeout bounds each fetch (default: DefaultFetchTimeout)
	FetchTimeout time.Duration

	// Logger receives progress and warnings (default: slog.Default())
	Logger *slog.Logger

	// ProgressLevel is the level fetch progress is logged at (default: info)
	ProgressLevel slog.Level
}

func (o Options) depth() int {
	if o.Depth > 0 {
		return o.Depth
	}
	return DefaultDepth
}

func (o Options) fetchTimeout() time.Duration {
	if o.FetchTimeout > 0 {
		return o.FetchTimeout
	}
	return DefaultFetchTimeout
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
