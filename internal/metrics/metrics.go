// Package metrics exports the last run as a node-exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bianoble/glance-stream-sync/internal/mirror"
)

const namespace = "glance_simplestreams_sync"

var outcomes = []mirror.Outcome{
	mirror.Success,
	mirror.EndpointNotFoundTransient,
	mirror.ClientTransient,
	mirror.Fatal,
}

// Run is what one invocation reports.
type Run struct {
	Finished  time.Time
	Duration  time.Duration
	Outcome   mirror.Outcome
	Completed int
	Items     int
}

// Recorder holds the gauges on a private registry so nothing else in the
// process leaks into the textfile.
type Recorder struct {
	registry *prometheus.Registry

	timestamp prometheus.Gauge
	duration  prometheus.Gauge
	outcome   *prometheus.GaugeVec
	completed prometheus.Gauge
	items     prometheus.Gauge
}

// NewRecorder registers the run gauges.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		timestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		outcome: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_outcome",
			Help:      "1 for the outcome of the last run, 0 for the others.",
		}, []string{"outcome"}),
		completed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_completed_mirrors",
			Help:      "Mirror entries the last run completed.",
		}),
		items: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_items",
			Help:      "Items listed by the dry passes of the last run.",
		}),
	}
	r.registry.MustRegister(r.timestamp, r.duration, r.outcome, r.completed, r.items)
	return r
}

// Observe sets every gauge from run.
func (r *Recorder) Observe(run Run) {
	r.timestamp.Set(float64(run.Finished.Unix()))
	r.duration.Set(run.Duration.Seconds())
	for _, o := range outcomes {
		v := 0.0
		if o == run.Outcome {
			v = 1
		}
		r.outcome.WithLabelValues(o.String()).Set(v)
	}
	r.completed.Set(float64(run.Completed))
	r.items.Set(float64(run.Items))
}

// Gatherer exposes the private registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile atomically replaces path with the current gauges.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
