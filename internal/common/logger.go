package common

import (
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// LogLevel represents logging verbosity levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "error"
	case LogLevelWarn:
		return "warn"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	default:
		return "info"
	}
}

// ToSlogLevel converts LogLevel to slog.Level
func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case LogLevelError:
		return slog.LevelError
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a config string to a LogLevel. Unknown values yield info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LogLevelError
	case "warn", "warning":
		return LogLevelWarn
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelInfo
	}
}

// Output formats
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatColor = "color"
)

// Options configures New.
type Options struct {
	Level  LogLevel
	Format string    // text, json, color
	Output io.Writer // defaults to os.Stdout
	// Masker redacts credential-like attribute values. A nil or disabled
	// masker leaves records untouched.
	Masker *Masker
	// File optionally tees records into a rotating log file.
	File *FileOptions
}

// Logger wraps slog with check-in specific context helpers
type Logger struct {
	*slog.Logger
	level LogLevel
}

// New builds a logger from opts.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	color := isTerminal(out)
	if opts.File != nil && opts.File.Path != "" {
		out = io.MultiWriter(out, opts.File.Writer())
		color = false
	}

	var replace func([]string, slog.Attr) slog.Attr
	if opts.Masker != nil && opts.Masker.IsEnabled() {
		replace = opts.Masker.ReplaceAttr
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case FormatJSON:
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: opts.Level.ToSlogLevel(), ReplaceAttr: replace})
	case FormatColor:
		handler = tint.NewHandler(out, &tint.Options{
			Level:       opts.Level.ToSlogLevel(),
			TimeFormat:  time.DateTime,
			NoColor:     !color,
			ReplaceAttr: replace,
		})
	default:
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: opts.Level.ToSlogLevel(), ReplaceAttr: replace})
	}
	return &Logger{Logger: slog.New(handler), level: opts.Level}
}

// NewLogger creates a new structured text logger with the specified level
func NewLogger(level LogLevel) *Logger {
	return New(Options{Level: level, Format: FormatText, Masker: NewMasker()})
}

// NewJSONLogger creates a structured logger with JSON output
func NewJSONLogger(level LogLevel) *Logger {
	return New(Options{Level: level, Format: FormatJSON, Masker: NewMasker()})
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), level: LogLevelError}
}

// Level returns the current log level
func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// WithComponent returns a logger with component context
func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

// WithTarget returns a logger scoped to one check-in target
func (l *Logger) WithTarget(name string) *Logger {
	return l.with("target", name)
}

// WithStep returns a logger with workflow step context
func (l *Logger) WithStep(index int, name string) *Logger {
	return l.with("step", index, "step_name", name)
}

// WithAttempt returns a logger with retry attempt context
func (l *Logger) WithAttempt(attempt, maxAttempts int) *Logger {
	return l.with("attempt", attempt, "max_attempts", maxAttempts)
}

// WithStore returns a logger with store context
func (l *Logger) WithStore(storeType string) *Logger {
	return l.with("store", storeType)
}

// isTerminal checks if w is a character device
func isTerminal(w io.Writer) bool {
	if runtime.GOOS == "windows" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
