package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fadedpez/caseclash/internal/types"
	"github.com/sirupsen/logrus"
)

// Level represents a logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var logrusLevels = map[Level]logrus.Level{
	DEBUG: logrus.DebugLevel,
	INFO:  logrus.InfoLevel,
	WARN:  logrus.WarnLevel,
	ERROR: logrus.ErrorLevel,
}

// Fields is a set of structured key/value pairs attached to a log entry
type Fields = logrus.Fields

// Logger is our leveled logger backed by logrus
type Logger struct {
	entry *logrus.Entry
	level Level
}

// NewLogger creates a new logger instance writing text lines to stdout
func NewLogger(level Level) *Logger {
	return NewLoggerWithOutput(level, os.Stdout)
}

// NewLoggerWithOutput creates a logger writing to out
func NewLoggerWithOutput(level Level, out io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(out)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	base.SetLevel(logrusLevels[level])
	return &Logger{
		entry: logrus.NewEntry(base),
		level: level,
	}
}

// ParseLevel converts a level name such as "debug" or "WARN" to a Level
func ParseLevel(name string) (Level, error) {
	for level, levelName := range levelNames {
		if strings.EqualFold(levelName, name) {
			return level, nil
		}
	}
	return INFO, fmt.Errorf("unknown log level %q", name)
}

// WithFields returns a child logger that attaches fields to every entry
func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{
		entry: l.entry.WithFields(fields),
		level: l.level,
	}
}

// WithField returns a child logger with a single extra field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(Fields{key: value})
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.entry.Infof(format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.entry.Warnf(format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
}

// LogError logs a GameError with its code and cause as fields
func (l *Logger) LogError(err error) {
	var gameErr *types.GameError
	if types.As(err, &gameErr) {
		fields := Fields{
			"code": string(gameErr.Code),
		}
		if gameErr.Err != nil {
			fields["cause"] = gameErr.Err.Error()
		}
		l.entry.WithFields(fields).Error(gameErr.Message)
		return
	}
	l.entry.WithError(err).Error("Unexpected error")
}

// Default logger instance
var Default = NewLogger(INFO)

// SetDefault replaces the package-level logger
func SetDefault(l *Logger) {
	if l != nil {
		Default = l
	}
}
