package sandbox

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is a thread-safe wrapper over a logrus.Logger, adapted from the
// core/logger package used throughout the teacher's daemon and CLI tools:
// same level-keyed Log method and per-level helpers, but writing to an
// arbitrary io.Writer (typically stderr via go-colorable) instead of
// always opening its own log file, since this package is a library
// embedded in other programs rather than a standalone daemon.
type Logger struct {
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewLogger builds a Logger writing text-formatted entries to w.
func NewLogger(w io.Writer) *Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return &Logger{logger: logger}
}

// Log writes msg at level with the given structured fields.
func (l *Logger) Log(level logrus.Level, msg string, fields logrus.Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.logger.WithFields(fields)
	switch level {
	case logrus.DebugLevel:
		entry.Debug(msg)
	case logrus.InfoLevel:
		entry.Info(msg)
	case logrus.WarnLevel:
		entry.Warn(msg)
	case logrus.ErrorLevel:
		entry.Error(msg)
	case logrus.FatalLevel:
		entry.Fatal(msg)
	case logrus.PanicLevel:
		entry.Panic(msg)
	}
}

func (l *Logger) Debug(msg string, fields logrus.Fields) { l.Log(logrus.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields logrus.Fields)  { l.Log(logrus.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields logrus.Fields)  { l.Log(logrus.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields logrus.Fields) { l.Log(logrus.ErrorLevel, msg, fields) }

// SetLevel adjusts the minimum level that gets written.
func (l *Logger) SetLevel(level logrus.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.SetLevel(level)
}

// defaultLogger is the Launcher's own parent-side logger for launch-pipeline
// milestones (dependency resolution, spawn, reap — never confinement
// commit, which runs past the fork/exec barrier and cannot trust any I/O
// channel by that point). It discards output until a caller opts in with
// SetDefaultLogger, so embedding sandbox as a library stays silent by
// default.
var defaultLogger = NewLogger(io.Discard)

// SetDefaultLogger replaces the Launcher's internal milestone logger. Callers
// that want launch-pipeline visibility (dependency resolution, spawn, reap)
// without writing their own Handler-side logging call this once before
// launching.
func SetDefaultLogger(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}
