package cli

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackresolve/pkg/observability"
)

// newLogger creates a new logger with timestamp formatting.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// Example output: "Resolved 42 packages (1.234s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// resolveProgress shows resolution phases on a spinner and logs skipped
// optional dependencies.
type resolveProgress struct {
	observability.NoopResolveHooks
	spin   *spinner
	logger *log.Logger
}

func (p resolveProgress) OnTreeStart(_ context.Context, _ string, projects int) {
	p.spin.setMessage(plural(projects, "Resolving %d project", "Resolving %d projects") + "...")
}

func (p resolveProgress) OnTreeComplete(_ context.Context, runID string, packages int, d time.Duration, err error) {
	p.logger.Debug("tree built", "run", runID, "packages", packages, "duration", d.Round(time.Millisecond), "err", err)
}

func (p resolveProgress) OnPeersStart(_ context.Context, _ string, nodes int) {
	p.spin.setMessage(plural(nodes, "Resolving peers of %d node", "Resolving peers of %d nodes") + "...")
}

func (p resolveProgress) OnOptionalSkipped(_ context.Context, _ string, alias string, err error) {
	p.logger.Warn("skipped optional dependency", "alias", alias, "err", err)
}

// httpLogger logs registry traffic at debug level.
type httpLogger struct {
	logger *log.Logger
}

func (h httpLogger) OnRequest(_ context.Context, method, host, path string) {
	h.logger.Debug("request", "method", method, "host", host, "path", path)
}

func (h httpLogger) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.logger.Debug("response", "method", method, "host", host, "path", path, "status", status, "duration", d.Round(time.Millisecond))
}

func (h httpLogger) OnError(_ context.Context, method, host, path string, err error) {
	h.logger.Warn("request failed", "method", method, "host", host, "path", path, "err", err)
}

// cacheCounter counts registry cache hits and misses of a run.
type cacheCounter struct {
	observability.NoopCacheHooks
	hits, misses atomic.Int64
}

func (c *cacheCounter) OnCacheHit(context.Context, string)  { c.hits.Add(1) }
func (c *cacheCounter) OnCacheMiss(context.Context, string) { c.misses.Add(1) }
