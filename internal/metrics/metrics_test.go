package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bianoble/glance-stream-sync/internal/mirror"
)

func gauges(t *testing.T, r *Recorder) map[string]float64 {
	t.Helper()
	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	out := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, lp := range m.GetLabel() {
				name += "/" + lp.GetValue()
			}
			out[name] = m.GetGauge().GetValue()
		}
	}
	return out
}

func TestObserve(t *testing.T) {
	r := NewRecorder()
	finished := time.Unix(1792382400, 0)

	r.Observe(Run{
		Finished:  finished,
		Duration:  42 * time.Second,
		Outcome:   mirror.ClientTransient,
		Completed: 2,
		Items:     17,
	})

	got := gauges(t, r)
	assert.Equal(t, float64(1792382400), got["glance_simplestreams_sync_last_run_timestamp_seconds"])
	assert.Equal(t, float64(42), got["glance_simplestreams_sync_last_run_duration_seconds"])
	assert.Equal(t, float64(1), got["glance_simplestreams_sync_last_run_outcome/client-transient"])
	assert.Equal(t, float64(0), got["glance_simplestreams_sync_last_run_outcome/success"])
	assert.Equal(t, float64(2), got["glance_simplestreams_sync_last_run_completed_mirrors"])
	assert.Equal(t, float64(17), got["glance_simplestreams_sync_last_run_items"])
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.Observe(Run{Finished: time.Now(), Outcome: mirror.Success, Completed: 1})

	path := filepath.Join(t.TempDir(), "glance_simplestreams_sync.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.Contains(text, `glance_simplestreams_sync_last_run_outcome{outcome="success"} 1`), text)
	assert.True(t, strings.Contains(text, `glance_simplestreams_sync_last_run_outcome{outcome="fatal"} 0`), text)
	assert.True(t, strings.Contains(text, "glance_simplestreams_sync_last_run_completed_mirrors 1"), text)
}

func TestWriteTextfileBadDir(t *testing.T) {
	r := NewRecorder()
	err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	assert.Error(t, err)
}
