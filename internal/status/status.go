// Package status persists the record of the most recent run so operators and
// the status command can see what the last cron invocation did.
package status

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bianoble/glance-stream-sync/internal/sandbox"
)

// FileName is the record's name inside the state directory.
const FileName = "last-run.yaml"

// Phase is how far the last run got.
type Phase string

const (
	// PhaseSyncing means the run started and has not recorded an end.
	PhaseSyncing Phase = "Syncing"

	// PhaseComplete means every mirror entry completed.
	PhaseComplete Phase = "Complete"

	// PhaseFailed means the run stopped early.
	PhaseFailed Phase = "Failed"
)

// Record describes one run.
type Record struct {
	Phase   Phase  `yaml:"phase"`
	Outcome string `yaml:"outcome,omitempty"`
	Message string `yaml:"message,omitempty"`
	RunID   string `yaml:"runId"`

	StartedAt  time.Time  `yaml:"startedAt"`
	FinishedAt *time.Time `yaml:"finishedAt,omitempty"`

	// Completed is the number of mirror entries that finished.
	Completed int `yaml:"completed"`
	// Failed names the entry that stopped the run.
	Failed string `yaml:"failed,omitempty"`
	// Items is the number of items the dry passes listed.
	Items int `yaml:"items,omitempty"`

	// Reconcile is the endpoint reconciliation result, when it ran.
	Reconcile string `yaml:"reconcile,omitempty"`
}

// Duration is the run's wall time, or zero if it has not finished.
func (r *Record) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Save atomically writes rec to dir/FileName.
func Save(dir string, rec *Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding run record: %w", err)
	}
	if err := sandbox.WriteFile(dir, FileName, data, 0o644); err != nil {
		return fmt.Errorf("writing run record: %w", err)
	}
	return nil
}

// Load reads dir/FileName. It returns nil and no error when no run has been
// recorded yet.
func Load(dir string) (*Record, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading run record: %w", err)
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing run record %s: %w", path, err)
	}
	return &rec, nil
}
