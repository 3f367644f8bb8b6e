package schedule

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bianoble/glance-stream-sync/internal/mirror"
)

const fastPoll = `# installed for fast polling
SHELL=/bin/sh
* * * * * root /usr/share/glance-simplestreams-sync/glance-simplestreams-sync.py
`

func writeTrigger(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "glance_simplestreams_sync_fastpoll")
	if err := os.WriteFile(path, []byte(fastPoll), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApply(t *testing.T) {
	tests := []struct {
		outcome mirror.Outcome
		kept    bool
	}{
		{mirror.Success, false},
		{mirror.Fatal, false},
		{mirror.EndpointNotFoundTransient, true},
		{mirror.ClientTransient, true},
	}

	for _, tt := range tests {
		t.Run(tt.outcome.String(), func(t *testing.T) {
			trigger := writeTrigger(t)
			s := &PollScheduler{Trigger: trigger}

			removed, err := s.Apply(tt.outcome)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if removed == tt.kept {
				t.Errorf("removed = %v", removed)
			}

			present, err := Present(trigger)
			if err != nil {
				t.Fatal(err)
			}
			if present != tt.kept {
				t.Errorf("trigger present = %v, want %v", present, tt.kept)
			}
		})
	}
}

func TestApplyNeverCreates(t *testing.T) {
	trigger := filepath.Join(t.TempDir(), "glance_simplestreams_sync_fastpoll")

	for _, o := range []mirror.Outcome{mirror.Success, mirror.ClientTransient, mirror.Fatal} {
		if _, err := (&PollScheduler{Trigger: trigger}).Apply(o); err != nil {
			t.Fatalf("Apply(%s): %v", o, err)
		}
		if _, err := os.Stat(trigger); !os.IsNotExist(err) {
			t.Fatalf("Apply(%s) created the trigger", o)
		}
	}
}

func TestNextRun(t *testing.T) {
	trigger := writeTrigger(t)
	now := time.Date(2026, 10, 19, 4, 0, 30, 0, time.UTC)

	next, err := NextRun(trigger, now)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	want := time.Date(2026, 10, 19, 4, 1, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestScheduleSpec(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
		err  bool
	}{
		{"five fields", "*/5 * * * * root cmd\n", "*/5 * * * *", false},
		{"descriptor", "@hourly root cmd\n", "@hourly", false},
		{"comments only", "# nothing\n\n", "", true},
		{"short line", "* * * root\n", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scheduleSpec([]byte(tt.data))
			if tt.err {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScheduleSpecEmpty(t *testing.T) {
	if _, err := scheduleSpec(nil); !errors.Is(err, ErrNoSchedule) {
		t.Errorf("err = %v, want ErrNoSchedule", err)
	}
}

func TestApplyRemovesSymlinkedTrigger(t *testing.T) {
	target := writeTrigger(t)
	trigger := filepath.Join(t.TempDir(), "glance_simplestreams_sync_fastpoll")
	if err := os.Symlink(target, trigger); err != nil {
		t.Fatal(err)
	}

	s := &PollScheduler{Trigger: trigger}
	removed, err := s.Apply(mirror.Success)
	if err != nil || !removed {
		t.Fatalf("Apply(Success) = %v, %v; want true, nil", removed, err)
	}
	if ok, err := Present(trigger); err != nil || ok {
		t.Errorf("Present = %v, %v; want false, nil", ok, err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("link target should be left alone: %v", err)
	}
}
