package utils

import (
	"os"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for file loggers.
const (
	logFileMaxSizeMB  = 100
	logFileMaxBackups = 3
)

// NewFilePathLogger returns a logger that writes to both stderr and the given file path.
// Long exports use it to keep a record of what was written where. The file is rotated
// once it grows past logFileMaxSizeMB. Missing parent directories are created on first write.
func NewFilePathLogger(filepath, name string, debug bool) (golog.Logger, error) {
	if filepath == "" {
		return nil, errors.New("no log file path given")
	}
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	})
	fileSink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
	})
	atomic := zap.NewAtomicLevelAt(level)
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, fileSink, atomic),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), atomic),
	)
	logger := zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	return logger.Sugar().Named(name), nil
}
