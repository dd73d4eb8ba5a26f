package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

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
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a case-insensitive level name to a Level.
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
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// F creates a new Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger is the interface for all logger implementations.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

// sink serializes writes from every logger derived from the same destination.
type sink struct {
	mu sync.Mutex
	w  io.Writer
}

// WriterLogger writes one line per entry to an io.Writer.
type WriterLogger struct {
	out    *sink
	level  Level
	fields []Field
	now    func() time.Time
}

// NewWriterLogger creates a logger that writes to w.
func NewWriterLogger(w io.Writer, level Level) *WriterLogger {
	return &WriterLogger{
		out:   &sink{w: w},
		level: level,
		now:   time.Now,
	}
}

// NewStdoutLogger creates a logger that writes to stdout.
func NewStdoutLogger(level Level) *WriterLogger {
	return NewWriterLogger(os.Stdout, level)
}

func (l *WriterLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", l.now().Format("2006-01-02 15:04:05"), level, msg)
	for _, f := range l.fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	b.WriteByte('\n')

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	_, _ = io.WriteString(l.out.w, b.String())
}

func (l *WriterLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *WriterLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *WriterLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *WriterLogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

func (l *WriterLogger) WithFields(fields ...Field) Logger {
	return &WriterLogger{
		out:    l.out,
		level:  l.level,
		fields: joinFields(l.fields, fields),
		now:    l.now,
	}
}

// FileLogger logs to an append-only file.
type FileLogger struct {
	*WriterLogger
	file *os.File
}

// NewFileLogger creates a logger that writes to a file.
func NewFileLogger(path string, level Level) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &FileLogger{
		WriterLogger: NewWriterLogger(file, level),
		file:         file,
	}, nil
}

// Close closes the log file.
func (l *FileLogger) Close() error {
	return l.file.Close()
}

// MultiLogger composes multiple loggers together.
type MultiLogger struct {
	loggers []Logger
	fields  []Field
}

// NewMultiLogger creates a logger that writes to multiple destinations.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Debug(msg string, fields ...Field) {
	all := joinFields(m.fields, fields)
	for _, l := range m.loggers {
		l.Debug(msg, all...)
	}
}

func (m *MultiLogger) Info(msg string, fields ...Field) {
	all := joinFields(m.fields, fields)
	for _, l := range m.loggers {
		l.Info(msg, all...)
	}
}

func (m *MultiLogger) Warn(msg string, fields ...Field) {
	all := joinFields(m.fields, fields)
	for _, l := range m.loggers {
		l.Warn(msg, all...)
	}
}

func (m *MultiLogger) Error(msg string, fields ...Field) {
	all := joinFields(m.fields, fields)
	for _, l := range m.loggers {
		l.Error(msg, all...)
	}
}

func (m *MultiLogger) WithFields(fields ...Field) Logger {
	return &MultiLogger{
		loggers: m.loggers,
		fields:  joinFields(m.fields, fields),
	}
}

// NoopLogger discards everything.
type NoopLogger struct{}

// NewNoopLogger returns a logger that discards all entries.
func NewNoopLogger() NoopLogger { return NoopLogger{} }

func (NoopLogger) Debug(string, ...Field)       {}
func (NoopLogger) Info(string, ...Field)        {}
func (NoopLogger) Warn(string, ...Field)        {}
func (NoopLogger) Error(string, ...Field)       {}
func (n NoopLogger) WithFields(...Field) Logger { return n }

// joinFields copies so derived loggers never share a backing array.
func joinFields(a, b []Field) []Field {
	out := make([]Field, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
