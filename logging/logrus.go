package logging

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// LogrusLogger adapts a logrus entry to the Logger interface so the service
// can emit JSON lines when it runs behind a log collector.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps base. A nil base gets a fresh JSON logger on stderr.
func NewLogrusLogger(base *logrus.Logger) *LogrusLogger {
	if base == nil {
		base = logrus.New()
		base.SetFormatter(&logrus.JSONFormatter{})
	}
	return &LogrusLogger{entry: logrus.NewEntry(base)}
}

// NewJSONLogger builds a logrus-backed logger writing JSON to w.
func NewJSONLogger(w io.Writer, level Level) *LogrusLogger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(&logrus.JSONFormatter{})
	l := NewLogrusLogger(base)
	l.SetLevel(level)
	return l
}

func toLogrusFields(fields []Fields) logrus.Fields {
	out := logrus.Fields{}
	for _, f := range fields {
		for k, v := range f {
			out[k] = v
		}
	}
	return out
}

func (l *LogrusLogger) Debug(msg string, fields ...Fields) {
	l.entry.WithFields(toLogrusFields(fields)).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, fields ...Fields) {
	l.entry.WithFields(toLogrusFields(fields)).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, fields ...Fields) {
	l.entry.WithFields(toLogrusFields(fields)).Warn(msg)
}

func (l *LogrusLogger) Error(err error, msg string, fields ...Fields) {
	l.entry.WithFields(toLogrusFields(fields)).WithError(err).Error(msg)
}

func (l *LogrusLogger) Fatal(err error, msg string, fields ...Fields) {
	l.entry.WithFields(toLogrusFields(fields)).WithError(err).Fatal(msg)
}

func (l *LogrusLogger) WithFields(fields Fields) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *LogrusLogger) WithContext(ctx context.Context) Logger {
	if fields, ok := FieldsFromContext(ctx); ok {
		return l.WithFields(fields)
	}
	return l
}

// SetLevel changes the level of the underlying logrus logger, which is shared
// by every logger derived through WithFields.
func (l *LogrusLogger) SetLevel(level Level) {
	var lv logrus.Level
	switch level {
	case DebugLevel:
		lv = logrus.DebugLevel
	case InfoLevel:
		lv = logrus.InfoLevel
	case WarnLevel:
		lv = logrus.WarnLevel
	case ErrorLevel:
		lv = logrus.ErrorLevel
	default:
		lv = logrus.FatalLevel
	}
	l.entry.Logger.SetLevel(lv)
}
