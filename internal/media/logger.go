package media

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// LevelTrace sits below debug for pion's trace output.
const LevelTrace = slog.LevelDebug - 4

// LoggerFactory hands pion a LeveledLogger per scope, all backed by slog.
type LoggerFactory struct {
	logger *slog.Logger
}

// NewLoggerFactory wraps logger. A nil logger uses slog.Default().
func NewLoggerFactory(logger *slog.Logger) *LoggerFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggerFactory{logger: logger}
}

// NewLogger implements logging.LoggerFactory.
func (f *LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &scopedLogger{log: f.logger.With("pion", scope)}
}

type scopedLogger struct {
	log *slog.Logger
}

func (l *scopedLogger) emit(level slog.Level, msg string) {
	l.log.Log(context.Background(), level, msg)
}

func (l *scopedLogger) emitf(level slog.Level, format string, args ...interface{}) {
	if !l.log.Enabled(context.Background(), level) {
		return
	}
	l.emit(level, fmt.Sprintf(format, args...))
}

func (l *scopedLogger) Trace(msg string) { l.emit(LevelTrace, msg) }

func (l *scopedLogger) Tracef(format string, args ...interface{}) {
	l.emitf(LevelTrace, format, args...)
}

func (l *scopedLogger) Debug(msg string) { l.emit(slog.LevelDebug, msg) }

func (l *scopedLogger) Debugf(format string, args ...interface{}) {
	l.emitf(slog.LevelDebug, format, args...)
}

func (l *scopedLogger) Info(msg string) { l.emit(slog.LevelInfo, msg) }

func (l *scopedLogger) Infof(format string, args ...interface{}) {
	l.emitf(slog.LevelInfo, format, args...)
}

func (l *scopedLogger) Warn(msg string) { l.emit(slog.LevelWarn, msg) }

func (l *scopedLogger) Warnf(format string, args ...interface{}) {
	l.emitf(slog.LevelWarn, format, args...)
}

func (l *scopedLogger) Error(msg string) { l.emit(slog.LevelError, msg) }

func (l *scopedLogger) Errorf(format string, args ...interface{}) {
	l.emitf(slog.LevelError, format, args...)
}
