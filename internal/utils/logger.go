package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with the context fields photofeed attaches
// to its log lines
type Logger struct {
	zerolog.Logger
}

// LoggerOptions contains options for creating a logger
type LoggerOptions struct {
	Level   string
	Format  string // "pretty" or "json"
	Output  io.Writer
	Verbose bool
}

// NewLogger creates a logger. Interactive sessions print to the same
// terminal as the feed, so the default output is stderr.
func NewLogger(opts LoggerOptions) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Format == "pretty" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	level := ParseLevel(opts.Level)
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	return &Logger{Logger: zerolog.New(out).Level(level).With().Timestamp().Logger()}
}

// NewNopLogger creates a logger that discards all output
func NewNopLogger() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// ParseLevel maps a config level name to a zerolog level. Unknown or empty
// names fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) with(key, value string) *Logger {
	return &Logger{Logger: l.Logger.With().Str(key, value).Logger()}
}

// WithComponent tags lines with the emitting package
func (l *Logger) WithComponent(component string) *Logger { return l.with("component", component) }

// WithQuery tags lines with the list query they concern
func (l *Logger) WithQuery(query string) *Logger { return l.with("query", query) }

// WithTask tags lines with a scheduler task id
func (l *Logger) WithTask(taskID string) *Logger { return l.with("task", taskID) }

// WithRunID tags lines belonging to one poll run
func (l *Logger) WithRunID(runID string) *Logger { return l.with("run_id", runID) }

// StorageLogger adapts Logger to the printf-style interface badger expects.
// Badger's info output is mostly compaction chatter, so it lands at debug.
type StorageLogger struct {
	l *Logger
}

// ForStorage returns a badger-compatible view of l
func (l *Logger) ForStorage() StorageLogger {
	return StorageLogger{l: l.WithComponent("badger")}
}

func (s StorageLogger) Errorf(format string, args ...any) {
	s.l.Error().Msgf(strings.TrimSpace(format), args...)
}

func (s StorageLogger) Warningf(format string, args ...any) {
	s.l.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (s StorageLogger) Infof(format string, args ...any) {
	s.l.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (s StorageLogger) Debugf(format string, args ...any) {
	s.l.Debug().Msgf(strings.TrimSpace(format), args...)
}
