package util

import (
	"context"
	"sync"
)

var (
	globalMu     sync.RWMutex
	globalLogger LoggerInterface
	loggerOnce   sync.Once
)

// InitLogger installs the process logger. Later calls are ignored.
func InitLogger(cfg LoggerConfig) {
	loggerOnce.Do(func() {
		setGlobal(NewLogger(cfg))
	})
}

// SetLogger replaces the global logger. Passing nil silences logging.
func SetLogger(logger LoggerInterface) {
	loggerOnce.Do(func() {})
	setGlobal(logger)
}

func setGlobal(logger LoggerInterface) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

func current() LoggerInterface {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// LogContext returns the global logger bound to the element path and
// request id carried by ctx.
func LogContext(ctx context.Context) LoggerInterface {
	l := current()
	if l == nil {
		return nopLogger{}
	}
	return l.WithContext(ctx)
}

// LogInfo convenience functions for logging
func LogInfo(msg string) {
	if l := current(); l != nil {
		l.Info(msg)
	}
}

func LogInfof(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Infof(format, args...)
	}
}

func LogDebug(msg string) {
	if l := current(); l != nil {
		l.Debug(msg)
	}
}

func LogDebugf(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Debugf(format, args...)
	}
}

func LogWarn(msg string) {
	if l := current(); l != nil {
		l.Warn(msg)
	}
}

func LogWarnf(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Warnf(format, args...)
	}
}

func LogError(msg string) {
	if l := current(); l != nil {
		l.Error(msg)
	}
}

func LogErrorf(format string, args ...interface{}) {
	if l := current(); l != nil {
		l.Errorf(format, args...)
	}
}

// LogErrorFields logs an error message with structured fields
func LogErrorFields(msg string, fields ...Field) {
	if l := current(); l != nil {
		l.Error(msg, fields...)
	}
}

// LogInfoFields logs an info message with structured fields
func LogInfoFields(msg string, fields ...Field) {
	if l := current(); l != nil {
		l.Info(msg, fields...)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...Field)                        {}
func (nopLogger) Debugf(string, ...interface{})                 {}
func (nopLogger) Info(string, ...Field)                         {}
func (nopLogger) Infof(string, ...interface{})                  {}
func (nopLogger) Warn(string, ...Field)                         {}
func (nopLogger) Warnf(string, ...interface{})                  {}
func (nopLogger) Error(string, ...Field)                        {}
func (nopLogger) Errorf(string, ...interface{})                 {}
func (n nopLogger) With(...Field) LoggerInterface               { return n }
func (n nopLogger) WithContext(context.Context) LoggerInterface { return n }
