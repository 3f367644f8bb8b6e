// Package logging builds the run logger. Every run appends to one log file in
// the format operators already grep for:
//
//	10-19 04:00:01 [PID:1234] * INFO      * sync * glance-simplestreams-sync started.
//
// The logger is created once by the command and passed down explicitly;
// nothing in this module logs through a global.
package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls where and how much the run logger writes.
type Options struct {
	// File is appended to. Empty disables the file sink.
	File string

	// Level is the minimum level written to the file.
	Level zapcore.Level

	// Console tees records at ConsoleLevel and above to stderr.
	Console      bool
	ConsoleLevel zapcore.Level
}

// New returns a logger and a func that flushes and closes its sinks.
func New(opts Options) (*zap.Logger, func(), error) {
	var cores []zapcore.Core
	var closers []func()

	if opts.File != "" {
		sink, closeFile, err := zap.Open(opts.File)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file %s: %w", opts.File, err)
		}
		closers = append(closers, closeFile)
		cores = append(cores, zapcore.NewCore(newEncoder(), sink, opts.Level))
	}

	if opts.Console {
		cores = append(cores, zapcore.NewCore(newEncoder(), zapcore.Lock(os.Stderr), opts.ConsoleLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	cleanup := func() {
		_ = logger.Sync()
		for _, c := range closers {
			c()
		}
	}
	return logger, cleanup, nil
}

// ParseLevel maps a user-supplied level name to a zap level.
// Unknown or empty names yield InfoLevel and false.
func ParseLevel(raw string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

func newEncoder() zapcore.Encoder {
	pid := os.Getpid()
	cfg := zapcore.EncoderConfig{
		LevelKey:         "level",
		TimeKey:          "time",
		NameKey:          "logger",
		MessageKey:       "msg",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " * ",
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(fmt.Sprintf("%-9s", l.CapitalString()))
		},
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(fmt.Sprintf("%s [PID:%d]", t.Format("01-02 15:04:05"), pid))
		},
		EncodeName:     zapcore.FullNameEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	return zapcore.NewConsoleEncoder(cfg)
}
