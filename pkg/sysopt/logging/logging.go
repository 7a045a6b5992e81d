// Package logging provides component loggers with rotation support for
// sysopt. Unlike a process-wide registry, every handle is created by the
// entry point and passed down to the pipeline and the backup engine.
//
// Basic usage:
//
//	l, err := logging.New(logging.Config{
//	    Level: "info",
//	    Path:  logging.DefaultLogPath(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer l.Close()
//
//	logger := l.Get("pipeline")
//	logger.Info("run started", "host", host)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level represents a logging level.
type Level int

// Log levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) toCharmLevel() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a Level. Python-style names used by older
// settings files (WARNING, CRITICAL) are accepted.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error", "critical":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures a logging handle.
type Config struct {
	// Level is the default log level (debug, info, warn, error).
	Level string

	// Path is the log file path. Empty uses DefaultLogPath().
	Path string

	// Rotation configures log file rotation.
	Rotation RotationConfig

	// Components maps component names to their log levels.
	Components map[string]string

	// ConsoleLevel enables console output on stderr at the given level.
	// Empty disables console output.
	ConsoleLevel string

	// Disabled sends file output to io.Discard. Console output is still
	// honoured so the CLI stays usable when log_management.enable is false.
	Disabled bool
}

// Logger wraps charmbracelet/log with component identification.
type Logger struct {
	file      *log.Logger
	console   *log.Logger
	component string
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// Component returns the component name the logger was created for.
func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	logTo(l.file, level, msg, args...)
	if l.console != nil {
		logTo(l.console, level, msg, args...)
	}
}

func logTo(logger *log.Logger, level Level, msg string, args ...interface{}) {
	switch level {
	case LevelDebug:
		logger.Debug(msg, args...)
	case LevelInfo:
		logger.Info(msg, args...)
	case LevelWarn:
		logger.Warn(msg, args...)
	case LevelError:
		logger.Error(msg, args...)
	}
}

// With returns a new logger with additional context.
func (l *Logger) With(args ...interface{}) *Logger {
	newLogger := &Logger{
		file:      l.file.With(args...),
		component: l.component,
	}
	if l.console != nil {
		newLogger.console = l.console.With(args...)
	}
	return newLogger
}

// Logging owns the log writer and hands out component loggers.
type Logging struct {
	mu             sync.Mutex
	out            io.Writer
	writer         *RotatingWriter
	path           string
	level          Level
	components     map[string]Level
	loggers        map[string]*Logger
	consoleEnabled bool
	consoleLevel   Level
	console        io.Writer
}

// New creates a logging handle from cfg. The caller owns the handle and
// must Close it before exit.
func New(cfg Config) (*Logging, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	l := &Logging{
		level:      level,
		components: make(map[string]Level),
		loggers:    make(map[string]*Logger),
		console:    os.Stderr,
	}

	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		l.components[comp] = parsed
	}

	if cfg.ConsoleLevel != "" {
		consoleLevel, err := ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return nil, fmt.Errorf("parsing console level: %w", err)
		}
		l.consoleLevel = consoleLevel
		l.consoleEnabled = true
	}

	if cfg.Disabled {
		l.out = io.Discard
		return l, nil
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}

	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return nil, fmt.Errorf("creating log writer: %w", err)
	}
	l.writer = writer
	l.out = writer
	l.path = path

	return l, nil
}

// NewWriter creates a handle that writes plain records to w without a
// rotating file. It is used by tests that scan the emitted lines.
func NewWriter(w io.Writer, level string) (*Logging, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	return &Logging{
		out:        w,
		level:      lvl,
		components: make(map[string]Level),
		loggers:    make(map[string]*Logger),
	}, nil
}

// Discard returns a handle whose loggers write nowhere.
func Discard() *Logging {
	return &Logging{
		out:        io.Discard,
		level:      LevelError,
		components: make(map[string]Level),
		loggers:    make(map[string]*Logger),
	}
}

// Path returns the log file path, or empty when logging to a plain writer.
func (l *Logging) Path() string {
	return l.path
}

// Get returns the logger for component, creating it on first use.
func (l *Logging) Get(component string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	if logger, ok := l.loggers[component]; ok {
		return logger
	}

	level := l.level
	if compLevel, ok := l.components[component]; ok {
		level = compLevel
	}

	logger := &Logger{
		file: log.NewWithOptions(l.out, log.Options{
			Level:           level.toCharmLevel(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
		component: component,
	}

	if l.consoleEnabled {
		logger.console = log.NewWithOptions(l.console, log.Options{
			Level:           l.consoleLevel.toCharmLevel(),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          component,
		})
	}

	l.loggers[component] = logger
	return logger
}

// Close flushes and closes the log file.
func (l *Logging) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return nil
	}
	if err := l.writer.Close(); err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	l.writer = nil
	l.out = io.Discard
	l.loggers = make(map[string]*Logger)
	return nil
}

// DefaultLogPath returns $XDG_STATE_HOME/sysopt/sysopt.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "sysopt", "sysopt.log")
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}
