package streamsync

import (
	"github.com/bianoble/glance-stream-sync/internal/engine"
	"github.com/bianoble/glance-stream-sync/internal/mirror"
)

// Type aliases re-export engine result types as the public API.

type Outcome = engine.Outcome
type SyncResult = engine.SyncResult
type MirrorResult = mirror.Result
type CheckResult = engine.CheckResult
type DocumentCheck = engine.DocumentCheck
type StatusReport = engine.StatusReport
type PlanEntry = engine.PlanEntry

const (
	Success                   = engine.Success
	EndpointNotFoundTransient = engine.EndpointNotFoundTransient
	ClientTransient           = engine.ClientTransient
	Fatal                     = engine.Fatal
)
