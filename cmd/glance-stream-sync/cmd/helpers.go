package cmd

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bianoble/glance-stream-sync/internal/config"
	"github.com/bianoble/glance-stream-sync/internal/logging"
)

// resolvedPaths applies the flag and environment overrides to the defaults
// derived from the conf dir.
func resolvedPaths() config.Paths {
	p := config.PathsFor(v.GetString("conf-dir"))
	p.LogFile = v.GetString("log-file")
	p.Trigger = v.GetString("trigger")
	p.StateDir = v.GetString("state-dir")
	p.Keyring = v.GetString("keyring")
	return p
}

// newLogger opens the run log. The returned func flushes and closes it.
func newLogger(name string, p config.Paths) (*zap.Logger, func(), error) {
	level, ok := logging.ParseLevel(v.GetString("log-level"))
	if !ok {
		return nil, nil, fmt.Errorf("unknown log level %q", v.GetString("log-level"))
	}

	consoleLevel := zapcore.InfoLevel
	if level < consoleLevel {
		consoleLevel = level
	}

	logger, closeLog, err := logging.New(logging.Options{
		File:         p.LogFile,
		Level:        level,
		Console:      verbose,
		ConsoleLevel: consoleLevel,
	})
	if err != nil {
		return nil, nil, err
	}
	return logger.Named(name), closeLog, nil
}

// info prints a line unless quiet mode is active.
func info(format string, args ...any) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// detail prints a line only in verbose mode.
func detail(format string, args ...any) {
	if verbose {
		fmt.Printf("  "+format+"\n", args...)
	}
}

// errorf prints an error message to stderr.
func errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

func humanSize(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB"}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", bytes)
	}
	return fmt.Sprintf("%.1f %s", size, units[i])
}
