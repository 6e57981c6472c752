package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{"info at info level", log.InfoLevel, func(l *log.Logger) { l.Info("test") }, true},
		{"debug at info level", log.InfoLevel, func(l *log.Logger) { l.Debug("test") }, false},
		{"debug at debug level", log.DebugLevel, func(l *log.Logger) { l.Debug("test") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(newLogger(&buf, tt.level))
			if gotLog := buf.Len() > 0; gotLog != tt.wantLog {
				t.Errorf("got log output = %v, want %v", gotLog, tt.wantLog)
			}
		})
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	prog := newProgress(newLogger(&buf, log.InfoLevel))
	time.Sleep(10 * time.Millisecond)
	prog.done("test completed")

	if !strings.Contains(buf.String(), "test completed") {
		t.Errorf("progress.done() output = %q, want message", buf.String())
	}
}

func TestResolveProgress(t *testing.T) {
	var out syncBuffer
	var logs bytes.Buffer
	spin := newSpinner(context.Background(), &out, "")
	p := resolveProgress{spin: spin, logger: newLogger(&logs, log.DebugLevel)}

	p.OnTreeStart(context.Background(), "run", 3)
	if spin.message != "Resolving 3 projects..." {
		t.Errorf("message = %q after OnTreeStart", spin.message)
	}
	p.OnPeersStart(context.Background(), "run", 1)
	if spin.message != "Resolving peers of 1 node..." {
		t.Errorf("message = %q after OnPeersStart", spin.message)
	}
	p.OnOptionalSkipped(context.Background(), "run", "fsevents", errors.New("unsupported platform"))
	if !strings.Contains(logs.String(), "fsevents") {
		t.Errorf("skipped optional not logged: %q", logs.String())
	}
}

func TestCacheCounter(t *testing.T) {
	var c cacheCounter
	c.OnCacheHit(context.Background(), "http")
	c.OnCacheHit(context.Background(), "http")
	c.OnCacheMiss(context.Background(), "http")
	if c.hits.Load() != 2 || c.misses.Load() != 1 {
		t.Errorf("hits, misses = %d, %d, want 2, 1", c.hits.Load(), c.misses.Load())
	}
}
