// CLAUDE:SUMMARY slog construction (JSON or text) and job-scoped loggers carrying job_id and stage.
// Package observability builds loggers and persists job events, stage
// timings and worker heartbeats to SQLite.
//
// Persistence never blocks a job: write failures are logged and dropped.
package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps debug, info, warn and error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("observability: unknown log level %q", s)
}

// NewLogger returns a JSON (default) or text logger writing to w.
func NewLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("observability: unknown log format %q", format)
}

// JobLogger scopes base to one job.
func JobLogger(base *slog.Logger, jobID string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("job_id", jobID)
}

// StageLogger scopes a job logger to one pipeline stage.
func StageLogger(jobLogger *slog.Logger, stage string) *slog.Logger {
	return jobLogger.With("stage", stage)
}
