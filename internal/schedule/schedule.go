// Package schedule controls the fast-poll cron trigger. A run never creates
// the trigger; it only decides, from the run outcome, whether the trigger has
// served its purpose.
package schedule

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bianoble/glance-stream-sync/internal/mirror"
	"github.com/bianoble/glance-stream-sync/internal/sandbox"
)

// ErrNoSchedule is returned by NextRun when the trigger holds no job line.
var ErrNoSchedule = errors.New("no schedule line in trigger")

// PollScheduler applies run outcomes to the trigger file.
type PollScheduler struct {
	Trigger string
	Logger  *zap.Logger
}

// Apply removes the trigger after Success or Fatal and leaves it in place
// after a transient outcome so cron retries within a minute. It reports
// whether the trigger was removed.
func (s *PollScheduler) Apply(outcome mirror.Outcome) (bool, error) {
	logger := s.logger().With(zap.String("trigger", s.Trigger), zap.Stringer("outcome", outcome))

	if s.Trigger == "" || outcome.Transient() {
		logger.Info("keeping fast-poll trigger")
		return false, nil
	}

	removed, err := sandbox.RemoveIfExists(filepath.Dir(s.Trigger), filepath.Base(s.Trigger))
	if err != nil {
		logger.Error("removing fast-poll trigger", zap.Error(err))
		return false, fmt.Errorf("removing trigger: %w", err)
	}
	if removed {
		logger.Info("removed fast-poll trigger")
	}
	return removed, nil
}

func (s *PollScheduler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Present reports whether the trigger file exists.
func Present(trigger string) (bool, error) {
	return sandbox.Exists(filepath.Dir(trigger), filepath.Base(trigger))
}

// NextRun returns the next time after now that the first job line of the
// cron.d file at trigger fires.
func NextRun(trigger string, now time.Time) (time.Time, error) {
	data, err := os.ReadFile(trigger)
	if err != nil {
		return time.Time{}, err
	}
	spec, err := scheduleSpec(data)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", trigger, err)
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: parsing %q: %w", trigger, spec, err)
	}
	return sched.Next(now), nil
}

// scheduleSpec extracts the time fields of the first job line. Comments,
// blank lines and variable assignments are skipped.
func scheduleSpec(data []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if strings.HasPrefix(fields[0], "@") {
			return fields[0], nil
		}
		if strings.Contains(fields[0], "=") {
			continue
		}
		if len(fields) < 5 {
			return "", fmt.Errorf("short schedule line %q", line)
		}
		return strings.Join(fields[:5], " "), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", ErrNoSchedule
}
