package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Level is a log severity threshold.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the label written in each entry.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", int32(l))
}

// ParseLevel converts a config value ("debug", "info", "warn", "error") to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// sink is the shared destination for a set of component loggers.
type sink struct {
	mu      sync.Mutex
	out     io.Writer
	file    *os.File
	logPath string
	level   atomic.Int32
}

func newSink(out io.Writer, level Level) *sink {
	s := &sink{out: out}
	s.level.Store(int32(level))
	return s
}

var (
	std = newSink(os.Stderr, LevelInfo)

	sessionID     string
	sessionIDOnce sync.Once
)

// getSessionID returns or creates the session ID for this process.
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = ulid.Make().String()
	})
	return sessionID
}

// Logger writes leveled entries tagged with a component name.
// Entries look like: [2006-01-02 15:04:05.000] [clipboard] [INFO] message
type Logger struct {
	component string
	sink      *sink
}

// New returns a logger for component writing to the process-wide sink.
func New(component string) *Logger {
	return &Logger{component: component, sink: std}
}

// NewWithWriter returns a logger with its own sink. Intended for tests.
func NewWithWriter(component string, w io.Writer, level Level) *Logger {
	return &Logger{component: component, sink: newSink(w, level)}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter("discard", io.Discard, LevelError+1)
}

// Configure sets the process-wide threshold and, when dir is non-empty,
// tees output into dir/flightrecorder-<session>.log in addition to stderr.
//
// If the file cannot be opened, logging stays on stderr and the error is returned.
func Configure(level Level, dir string) error {
	std.level.Store(int32(level))
	if dir == "" {
		return nil
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logPath := filepath.Join(dir, fmt.Sprintf("flightrecorder-%s.log", getSessionID()))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	std.mu.Lock()
	defer std.mu.Unlock()
	if std.file != nil {
		_ = std.file.Close()
	}
	std.file = file
	std.logPath = logPath
	std.out = io.MultiWriter(os.Stderr, file)
	return nil
}

// SetLevel changes the process-wide threshold.
func SetLevel(level Level) {
	std.level.Store(int32(level))
}

// Close closes the session log file, if one is open. Safe to call multiple times.
func Close() error {
	std.mu.Lock()
	defer std.mu.Unlock()
	if std.file == nil {
		return nil
	}
	err := std.file.Close()
	std.file = nil
	std.out = os.Stderr
	return err
}

// LogPath returns the session log file path, or "" when logging to stderr only.
func LogPath() string {
	std.mu.Lock()
	defer std.mu.Unlock()
	return std.logPath
}

// SessionID returns the ULID identifying this process's log session.
func SessionID() string {
	return getSessionID()
}

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

// With returns a logger for another component sharing the same sink.
func (l *Logger) With(component string) *Logger {
	return &Logger{component: component, sink: l.sink}
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level >= Level(l.sink.level.Load())
}

// formatLogEntry creates a log line with timestamp, component, and level.
func (l *Logger) formatLogEntry(level Level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s\n", timestamp, l.component, level, message)
}

func (l *Logger) logf(level Level, format string, v ...any) {
	if !l.Enabled(level) {
		return
	}
	entry := l.formatLogEntry(level, fmt.Sprintf(format, v...))

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	_, _ = io.WriteString(l.sink.out, entry)
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, v ...any) {
	l.logf(LevelDebug, format, v...)
}

// Infof logs an info-level message.
func (l *Logger) Infof(format string, v ...any) {
	l.logf(LevelInfo, format, v...)
}

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, v ...any) {
	l.logf(LevelWarn, format, v...)
}

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, v ...any) {
	l.logf(LevelError, format, v...)
}
