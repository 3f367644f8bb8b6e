package engine

import (
	"time"

	"github.com/bianoble/glance-stream-sync/internal/config"
	"github.com/bianoble/glance-stream-sync/internal/mirror"
	"github.com/bianoble/glance-stream-sync/internal/reconcile"
	"github.com/bianoble/glance-stream-sync/internal/status"
)

// Outcome classifies a finished run.
type Outcome = mirror.Outcome

const (
	Success                   = mirror.Success
	EndpointNotFoundTransient = mirror.EndpointNotFoundTransient
	ClientTransient           = mirror.ClientTransient
	Fatal                     = mirror.Fatal
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitNotReady = 1
)

// ExitCode maps the error returned by Sync to the process exit status.
// Completed runs exit 0 whatever their outcome.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	return ExitNotReady
}

// SyncResult holds what one invocation did.
type SyncResult struct {
	RunID string

	// Locked is set when another process held the run lock and nothing ran.
	Locked bool

	Outcome   Outcome
	Mirrors   mirror.Result
	Reconcile *reconcile.Report // nil when reconciliation was skipped

	TriggerRemoved bool
	StartedAt      time.Time
	FinishedAt     time.Time
}

// DocumentCheck is the readiness of one configuration document.
type DocumentCheck struct {
	Path     string
	Ready    bool
	Problems []string
}

// CheckResult holds the outcome of a readiness check.
type CheckResult struct {
	Ready     bool
	Documents []DocumentCheck
	Loaded    *config.Loaded // set when Ready
}

// StatusReport describes the job as seen from the filesystem.
type StatusReport struct {
	Running bool
	PID     int

	Trigger        string
	TriggerPresent bool
	NextPoll       time.Time // zero unless the trigger parses
	TriggerErr     error

	LastRun *status.Record
}
