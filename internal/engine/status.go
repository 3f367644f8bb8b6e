package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/bianoble/glance-stream-sync/internal/config"
	"github.com/bianoble/glance-stream-sync/internal/lock"
	"github.com/bianoble/glance-stream-sync/internal/schedule"
	"github.com/bianoble/glance-stream-sync/internal/status"
)

// Status inspects the lock file, the fast-poll trigger and the last-run
// record. It never takes the lock.
func Status(paths config.Paths, now time.Time) (*StatusReport, error) {
	report := &StatusReport{Trigger: paths.Trigger}

	pid, held, err := lock.Holder(paths.Lock)
	switch {
	case err == nil:
		report.Running = held
		report.PID = pid
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading run lock: %w", err)
	}

	if paths.Trigger != "" {
		present, err := schedule.Present(paths.Trigger)
		if err != nil {
			return nil, fmt.Errorf("checking trigger: %w", err)
		}
		report.TriggerPresent = present
		if present {
			report.NextPoll, report.TriggerErr = schedule.NextRun(paths.Trigger, now)
		}
	}

	if paths.StateDir != "" {
		rec, err := status.Load(paths.StateDir)
		if err != nil {
			return nil, err
		}
		report.LastRun = rec
	}
	return report, nil
}
