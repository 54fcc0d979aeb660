// Package logger is the device's structured logger. Records go to the
// configured output and, when a ring is attached, into the buffer that the
// app-log workflow exports to the host.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger wraps slog.Logger and remembers the ring its records are copied to.
type Logger struct {
	*slog.Logger
	ring *Ring
}

// Config holds logger configuration
type Config struct {
	Level  Level
	Format Format
	Output io.Writer
	// Ring receives a copy of every record that passes the level filter.
	Ring *Ring
}

// Level represents log level
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var slogLevels = map[Level]slog.Level{
	LevelDebug: slog.LevelDebug,
	LevelInfo:  slog.LevelInfo,
	LevelWarn:  slog.LevelWarn,
	LevelError: slog.LevelError,
}

// ParseLevel maps a config value to a Level. Unknown values log at info.
func ParseLevel(s string) Level {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := slogLevels[l]; ok {
		return l
	}
	return LevelInfo
}

// Format represents output format
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat maps a config value to a Format, defaulting to text.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(New(Config{Level: LevelInfo, Format: FormatText}))
}

// New creates a logger. A nil output writes to stderr.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Ring != nil {
		out = io.MultiWriter(out, cfg.Ring)
	}

	opts := &slog.HandlerOptions{
		Level:       ParseLevel(string(cfg.Level)).slog(),
		ReplaceAttr: redact,
	}

	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &Logger{Logger: slog.New(handler), ring: cfg.Ring}
}

func (l Level) slog() slog.Level {
	return slogLevels[l]
}

// With returns a logger with the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), ring: l.ring}
}

// WithSession returns a logger tagged with a workflow session id.
func (l *Logger) WithSession(id string) *Logger {
	return l.With("session", id)
}

// Ring returns the export buffer, or nil when none is attached.
func (l *Logger) Ring() *Ring {
	return l.ring
}

// Debug logs through the default logger.
func Debug(msg string, args ...any) { GetDefault().Debug(msg, args...) }

// Info logs through the default logger.
func Info(msg string, args ...any) { GetDefault().Info(msg, args...) }

// Warn logs through the default logger.
func Warn(msg string, args ...any) { GetDefault().Warn(msg, args...) }

// Error logs through the default logger.
func Error(msg string, args ...any) { GetDefault().Error(msg, args...) }

// With returns the default logger with the given attributes.
func With(args ...any) *Logger {
	return GetDefault().With(args...)
}

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

// GetDefault returns the default logger
func GetDefault() *Logger {
	return defaultLogger.Load()
}
