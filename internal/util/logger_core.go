package util

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel orders log entries by importance.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLogLevel maps a flag value to a level, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) String() string {
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

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// ErrField carries err under the "error" key.
func ErrField(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// LogFormat is the encoding of entries written by outputs.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// ParseLogFormat validates a --log-format value. Empty means text.
func ParseLogFormat(s string) (LogFormat, error) {
	switch LogFormat(strings.ToLower(s)) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported log format: %s", s)
	}
}

// LogEntry is one record. The project element and the API request an
// entry belongs to are kept apart from the free-form fields so every
// output renders them the same way.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Element   string                 `json:"element,omitempty"`
	RequestID string                 `json:"requestId,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Output is a log destination.
type Output interface {
	Write(entry LogEntry) error
	Close() error
}

// LoggerInterface is what the rest of the module logs through.
type LoggerInterface interface {
	Debug(msg string, fields ...Field)
	Debugf(format string, args ...interface{})
	Info(msg string, fields ...Field)
	Infof(format string, args ...interface{})
	Warn(msg string, fields ...Field)
	Warnf(format string, args ...interface{})
	Error(msg string, fields ...Field)
	Errorf(format string, args ...interface{})
	With(fields ...Field) LoggerInterface
	// WithContext binds the element path and request id carried by ctx.
	WithContext(ctx context.Context) LoggerInterface
}

// LoggerConfig selects the level, format and destinations of a logger.
type LoggerConfig struct {
	Level  string
	Format LogFormat
	// File is appended to; empty disables file logging.
	File string
	// MaxFileSize rotates File once it would grow past this many bytes.
	// Zero never rotates.
	MaxFileSize int64
	// Console also writes entries to stderr.
	Console bool
	// Outputs are added as they are.
	Outputs []Output
}

// outputs is shared by a logger and every logger derived from it.
type outputs struct {
	mu   sync.RWMutex
	list []Output
}

// Logger writes entries to its outputs, tagged with the element and request
// it was bound to.
type Logger struct {
	level     LogLevel
	out       *outputs
	element   string
	requestID string
	fields    map[string]interface{}
}

// NewLogger builds a logger from cfg. Without any usable destination it
// falls back to stderr.
func NewLogger(cfg LoggerConfig) *Logger {
	format := cfg.Format
	if format != FormatJSON {
		format = FormatText
	}
	logger := &Logger{level: ParseLogLevel(cfg.Level), out: &outputs{}}

	console := cfg.Console
	if cfg.File != "" {
		file, err := NewFileOutput(cfg.File, format, cfg.MaxFileSize)
		if err != nil {
			log.Printf("Failed to open log file %s: %v, logging to stderr", cfg.File, err)
			console = true
		} else {
			logger.AddOutput(file)
		}
	} else if len(cfg.Outputs) == 0 {
		console = true
	}
	if console {
		logger.AddOutput(NewConsoleOutput(os.Stderr, format))
	}
	for _, o := range cfg.Outputs {
		logger.AddOutput(o)
	}
	return logger
}

func (l *Logger) log(level LogLevel, msg string, fields []Field) {
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   msg,
		Element:   l.element,
		RequestID: l.requestID,
	}
	if n := len(l.fields) + len(fields); n > 0 {
		entry.Fields = make(map[string]interface{}, n)
		for k, v := range l.fields {
			entry.Fields[k] = v
		}
		for _, f := range fields {
			entry.Fields[f.Key] = f.Value
		}
	}

	l.out.mu.RLock()
	defer l.out.mu.RUnlock()
	for _, o := range l.out.list {
		if err := o.Write(entry); err != nil {
			log.Printf("Failed to write log entry: %v", err)
		}
	}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(LevelDebug, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(LevelInfo, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(LevelWarn, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(LevelError, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) clone() *Logger {
	c := *l
	c.fields = make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		c.fields[k] = v
	}
	return &c
}

// With returns a logger adding fields to every entry.
func (l *Logger) With(fields ...Field) LoggerInterface {
	c := l.clone()
	for _, f := range fields {
		c.fields[f.Key] = f.Value
	}
	return c
}

func (l *Logger) WithContext(ctx context.Context) LoggerInterface {
	c := l.clone()
	if p := ElementPathFromContext(ctx); p != "" {
		c.element = p
	}
	if id := RequestIDFromContext(ctx); id != "" {
		c.requestID = id
	}
	return c
}

// SetLevel changes the level of this logger only.
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

// AddOutput adds a destination, shared with derived loggers.
func (l *Logger) AddOutput(o Output) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.list = append(l.out.list, o)
}

// Close closes every output.
func (l *Logger) Close() error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	var firstErr error
	for _, o := range l.out.list {
		if err := o.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.out.list = nil
	return firstErr
}

type contextKey int

const (
	elementPathKey contextKey = iota
	requestIDKey
)

// ContextWithElementPath tags ctx with the project element being worked on.
func ContextWithElementPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, elementPathKey, path)
}

func ElementPathFromContext(ctx context.Context) string {
	p, _ := ctx.Value(elementPathKey).(string)
	return p
}

// ContextWithRequestID tags ctx with an API request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
