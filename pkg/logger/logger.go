// Package logger wraps zerolog with the category-gated debug conventions
// this toolkit's pipeline stages rely on (SDP, ICE, DTLS, SRTP, RTP,
// jitter-buffer tracing).
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging verbosity level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// DebugCategory names a pipeline subsystem that can be traced independently
// at debug level.
type DebugCategory string

const (
	DebugSDP    DebugCategory = "sdp"
	DebugICE    DebugCategory = "ice"
	DebugDTLS   DebugCategory = "dtls"
	DebugSRTP   DebugCategory = "srtp"
	DebugRTP    DebugCategory = "rtp"
	DebugJitter DebugCategory = "jitter"
	DebugAll    DebugCategory = "all"
)

// OutputFormat determines the log output format.
type OutputFormat string

const (
	FormatJSON    OutputFormat = "json"
	FormatConsole OutputFormat = "console"
)

// Config holds logger configuration.
type Config struct {
	Level             LogLevel
	Format            OutputFormat
	OutputFile        string
	EnabledCategories map[DebugCategory]bool
	mu                sync.RWMutex
}

// NewConfig creates a new logger configuration with defaults.
func NewConfig() *Config {
	return &Config{
		Level:             LevelInfo,
		Format:            FormatConsole,
		EnabledCategories: make(map[DebugCategory]bool),
	}
}

// ParseLevel converts a string to LogLevel.
func ParseLevel(level string) (LogLevel, error) {
	switch level {
	case "debug", "DEBUG":
		return LevelDebug, nil
	case "info", "INFO":
		return LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn, nil
	case "error", "ERROR":
		return LevelError, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// ParseFormat converts a string to OutputFormat.
func ParseFormat(format string) (OutputFormat, error) {
	switch format {
	case "json", "JSON":
		return FormatJSON, nil
	case "console", "CONSOLE", "text", "TEXT":
		return FormatConsole, nil
	default:
		return "", fmt.Errorf("invalid log format: %s (must be json or console)", format)
	}
}

func (l LogLevel) toZerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// EnableCategory enables a specific debug category.
func (c *Config) EnableCategory(category DebugCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if category == DebugAll {
		c.EnabledCategories[DebugSDP] = true
		c.EnabledCategories[DebugICE] = true
		c.EnabledCategories[DebugDTLS] = true
		c.EnabledCategories[DebugSRTP] = true
		c.EnabledCategories[DebugRTP] = true
		c.EnabledCategories[DebugJitter] = true
		return
	}
	c.EnabledCategories[category] = true
}

// IsCategoryEnabled reports whether category tracing is on.
func (c *Config) IsCategoryEnabled(category DebugCategory) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.EnabledCategories[category]
}

// Logger wraps zerolog.Logger with category-based debug helpers. A nil
// *Logger is not valid to call methods on; use Default() or New() to get a
// usable instance — callers that may receive a nil logger pointer at
// construction should fall back to Default() rather than storing nil.
type Logger struct {
	zl     zerolog.Logger
	config *Config
	file   *os.File
}

// New creates a new Logger from cfg.
func New(cfg *Config) (*Logger, error) {
	var writer io.Writer = os.Stdout
	var file *os.File

	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", cfg.OutputFile, err)
		}
		writer = f
		file = f
	}

	if cfg.Format == FormatConsole {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05.000"}
	}

	zl := zerolog.New(writer).Level(cfg.Level.toZerolog()).With().Timestamp().Logger()

	return &Logger{zl: zl, config: cfg, file: file}, nil
}

// Close closes the log file if one was opened.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// With returns a new Logger carrying the given key/value attributes.
func (l *Logger) With(args ...any) *Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(args); i += 2 {
		key, _ := args[i].(string)
		ctx = ctx.Interface(key, args[i+1])
	}
	return &Logger{zl: ctx.Logger(), config: l.config, file: l.file}
}

func (l *Logger) Debug(msg string, args ...any) { l.logAt(zerolog.DebugLevel, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logAt(zerolog.InfoLevel, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logAt(zerolog.WarnLevel, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logAt(zerolog.ErrorLevel, msg, args...) }

func (l *Logger) logAt(level zerolog.Level, msg string, args ...any) {
	ev := l.zl.WithLevel(level)
	for i := 0; i+1 < len(args); i += 2 {
		key, _ := args[i].(string)
		ev = ev.Interface(key, args[i+1])
	}
	ev.Msg(msg)
}

// category-gated helpers, one per subsystem.

func (l *Logger) DebugSDP(msg string, args ...any)    { l.debugCategory(DebugSDP, msg, args...) }
func (l *Logger) DebugICE(msg string, args ...any)    { l.debugCategory(DebugICE, msg, args...) }
func (l *Logger) DebugDTLS(msg string, args ...any)   { l.debugCategory(DebugDTLS, msg, args...) }
func (l *Logger) DebugSRTP(msg string, args ...any)   { l.debugCategory(DebugSRTP, msg, args...) }
func (l *Logger) DebugRTP(msg string, args ...any)    { l.debugCategory(DebugRTP, msg, args...) }
func (l *Logger) DebugJitter(msg string, args ...any) { l.debugCategory(DebugJitter, msg, args...) }

func (l *Logger) debugCategory(cat DebugCategory, msg string, args ...any) {
	if l.config.IsCategoryEnabled(cat) {
		args = append([]any{"category", string(cat)}, args...)
		l.Debug(msg, args...)
	}
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns a process-wide fallback logger, creating one lazily.
// Components that may be constructed with a nil logger argument should
// substitute Default() rather than retain a nil pointer.
func Default() *Logger {
	once.Do(func() {
		log, err := New(NewConfig())
		if err != nil {
			log = &Logger{zl: zerolog.New(os.Stdout), config: NewConfig()}
		}
		defaultLogger = log
	})
	return defaultLogger
}

// SetDefault replaces the process-wide default logger.
func SetDefault(l *Logger) {
	once.Do(func() {})
	defaultLogger = l
}

// OrDefault returns l if non-nil, else Default().
func OrDefault(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return Default()
}
