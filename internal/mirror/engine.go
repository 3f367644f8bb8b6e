// Package mirror drives the external mirroring engine over the configured
// mirror entries, one at a time and in order.
package mirror

import (
	"context"

	"github.com/bianoble/glance-stream-sync/internal/source"
)

// Job is everything the engine needs to mirror one entry.
type Job struct {
	Name        string
	Source      string // mirror base URL
	Path        string // index or products path under Source
	MaxItems    int
	Filters     []string
	Hooks       []string
	ContentID   string
	NamePrefix  string
	Region      string
	CloudName   string
	ObjectStore string // swift container prefix; empty writes no object store copy
}

// Stream returns the dry-pass view of the job.
func (j Job) Stream() source.Stream {
	return source.Stream{
		Name:     j.Name,
		URL:      j.Source,
		Path:     j.Path,
		MaxItems: j.MaxItems,
		Filters:  j.Filters,
	}
}

// Engine fetches, parses and publishes one mirror. progress may be nil.
type Engine interface {
	Sync(ctx context.Context, job Job, progress ProgressFunc) error
}

// ProgressEngine is an Engine that can list what a Sync would transfer
// without transferring it.
type ProgressEngine interface {
	Engine
	Plan(ctx context.Context, job Job) ([]source.Item, error)
}
