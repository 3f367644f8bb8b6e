package mirror

import (
	"fmt"
	"sync"

	"github.com/bianoble/glance-stream-sync/internal/source"
)

// ProgressEvent reports one item the engine finished transferring.
type ProgressEvent struct {
	Key   string // source.Item.Key of the completed item
	Bytes int64  // bytes written; used when the item was not in the plan
}

// ProgressFunc receives progress events during Sync.
type ProgressFunc func(ProgressEvent)

// Progress aggregates completed items against the dry-pass plan.
type Progress struct {
	mu         sync.Mutex
	sizes      map[string]int64
	total      int
	totalBytes int64
	done       map[string]bool
	doneBytes  int64
}

// NewProgress seeds an aggregator from the dry-pass items.
func NewProgress(items []source.Item) *Progress {
	p := &Progress{
		sizes: make(map[string]int64, len(items)),
		done:  make(map[string]bool, len(items)),
	}
	for _, it := range items {
		if _, dup := p.sizes[it.Key()]; dup {
			continue
		}
		p.sizes[it.Key()] = it.Size
		p.total++
		p.totalBytes += it.Size
	}
	return p
}

// Complete records ev and returns the status line. Repeated events for the
// same item are coalesced and do not advance the counters.
func (p *Progress) Complete(ev ProgressEvent) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.done[ev.Key] {
		p.done[ev.Key] = true
		size, planned := p.sizes[ev.Key]
		if !planned {
			// The engine found more than the dry pass; grow the plan.
			size = ev.Bytes
			p.sizes[ev.Key] = size
			p.total++
			p.totalBytes += size
		}
		p.doneBytes += size
	}
	return p.line()
}

// Line returns the current status line.
func (p *Progress) Line() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.line()
}

func (p *Progress) line() string {
	pct := 100.0
	if p.totalBytes > 0 {
		pct = float64(p.doneBytes) * 100 / float64(p.totalBytes)
	}
	return fmt.Sprintf("%d of %d images, %.0f%% total", len(p.done), p.total, pct)
}
