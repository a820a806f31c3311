package linkgo

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with linkage-specific context helpers, so that
// every stage logs the same field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. A nil handler falls
// back to a text handler on stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger emitting JSON lines to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger emitting human-readable text to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards everything.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// WithRule tags log output with a blocking rule name.
func (l *Logger) WithRule(rule string) *Logger {
	return &Logger{Logger: l.Logger.With("rule", rule)}
}

// WithTables tags log output with the input table names.
func (l *Logger) WithTables(left, right string) *Logger {
	if right == "" {
		return &Logger{Logger: l.Logger.With("table", left)}
	}
	return &Logger{Logger: l.Logger.With("left", left, "right", right)}
}

// LogSlowJoin reports a blocking rule whose estimated output exceeds the
// pair ceiling but was allowed to proceed.
func (l *Logger) LogSlowJoin(rule string, estimated, ceiling uint64) {
	l.Warn("slow join allowed", "rule", rule, "estimated_pairs", estimated, "max_pairs", ceiling)
}

// LogTraining reports the outcome of an EM run.
func (l *Logger) LogTraining(iterations int, converged bool, delta float64, duration time.Duration) {
	l.Info("training finished",
		"iterations", iterations,
		"converged", converged,
		"delta", delta,
		"duration", duration,
	)
}

// LogResolve reports the outcome of clustering.
func (l *Logger) LogResolve(threshold float64, records, clusters int, duration time.Duration) {
	l.Info("resolve finished",
		"threshold", threshold,
		"records", records,
		"clusters", clusters,
		"duration", duration,
	)
}
