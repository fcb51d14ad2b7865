package prevtag

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var progressLine = regexp.MustCompile(`^(.+?):\s+(\d{1,3})%`)

// progressWriter turns the sideband progress stream of a fetch into log
// records. A task is logged when its percentage changes, at most once per
// second from the start of the task, except 0% and 100% which are always
// logged. Writes fail once ctx is
// done, which aborts the fetch.
type progressWriter struct {
	ctx   context.Context
	log   *slog.Logger
	level slog.Level
	now   func() time.Time

	pending     []byte
	title       string
	lastPercent int
	lastLog     time.Time
}

func newProgressWriter(ctx context.Context, log *slog.Logger, level slog.Level) *progressWriter {
	return &progressWriter{
		ctx:         ctx,
		log:         log,
		level:       level,
		now:         time.Now,
		lastPercent: -1,
	}
}

func (p *progressWriter) Write(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}

	p.pending = append(p.pending, b...)
	for {
		i := bytes.IndexAny(p.pending, "\r\n")
		if i < 0 {
			break
		}
		line := string(p.pending[:i])
		p.pending = p.pending[i+1:]
		p.handleLine(line)
	}

	return len(b), nil
}

func (p *progressWriter) handleLine(line string) {
	line = strings.TrimPrefix(strings.TrimSpace(line), "remote: ")
	m := progressLine.FindStringSubmatch(line)
	if m == nil {
		return
	}

	percent, err := strconv.Atoi(m[2])
	if err != nil {
		return
	}
	p.update(m[1], percent)
}

func (p *progressWriter) update(title string, percent int) {
	if title != p.title {
		p.title = title
		p.lastPercent = -1
		p.lastLog = p.now()
	}

	if percent == p.lastPercent {
		return
	}
	p.lastPercent = percent

	now := p.now()
	if percent == 0 || percent >= 100 || now.Sub(p.lastLog) >= time.Second {
		p.log.Log(p.ctx, p.level, title, "percent", percent)
		p.lastLog = now
	}
}
