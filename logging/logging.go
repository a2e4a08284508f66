// Package logging is the structured logger used throughout usbinspector. A logger and all of its
// subloggers write to one shared set of appenders.
package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormatStr is the time format used by the console and test appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Logger is the logging interface handed to every component.
type Logger interface {
	Debug(args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})

	// CDebugf and CDebugw are also emitted, tagged with the trace key, when ctx is in debug mode.
	CDebugf(ctx context.Context, template string, args ...interface{})
	CDebugw(ctx context.Context, msg string, keysAndValues ...interface{})

	Info(args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Sublogger returns a logger named "<name>.<subname>" starting at this logger's current
	// level. Appenders added to either one reach both.
	Sublogger(subname string) Logger
	AddAppender(appender Appender)
	SetLevel(level Level)
	GetLevel() Level
	AsZap() *zap.SugaredLogger
	Sync() error
	// Close syncs and then closes every appender that is an io.Closer. Later entries only reach
	// the remaining appenders.
	Close() error
}

// Appender is an output for log entries. Any zapcore.Core is an Appender.
type Appender interface {
	Write(zapcore.Entry, []zapcore.Field) error
	Sync() error
}

// NewZapLoggerConfig returns the encoder config shared by console outputs.
func NewZapLoggerConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(DefaultTimeFormatStr),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewWriterAppender returns an appender writing console-encoded entries to out.
func NewWriterAppender(out zapcore.WriteSyncer) Appender {
	return zapcore.NewCore(zapcore.NewConsoleEncoder(NewZapLoggerConfig()), zapcore.Lock(out), zapcore.DebugLevel)
}

// NewBlankLogger returns a DEBUG logger with no appenders. Entry times are in UTC.
func NewBlankLogger(name string) Logger {
	return newLogger(name, DEBUG, true)
}
