package logging

import (
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for file appenders.
const (
	DefaultLogFileMaxSizeMB  = 16
	DefaultLogFileMaxBackups = 3
)

// FileAppender writes JSON-encoded entries to a size-rotated log file.
type FileAppender struct {
	zapcore.Core
	file *lumberjack.Logger
}

// NewFileAppender returns an appender writing to filename. The file is created on the first
// write and rotated once it grows past DefaultLogFileMaxSizeMB.
func NewFileAppender(filename string) *FileAppender {
	file := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    DefaultLogFileMaxSizeMB,
		MaxBackups: DefaultLogFileMaxBackups,
		Compress:   true,
	}
	encoderCfg := NewZapLoggerConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return &FileAppender{
		Core: zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), zapcore.DebugLevel),
		file: file,
	}
}

// Close closes the underlying log file.
func (fa *FileAppender) Close() error {
	return fa.file.Close()
}
