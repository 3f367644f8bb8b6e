package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/containerd/errdefs"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bianoble/glance-stream-sync/internal/config"
	"github.com/bianoble/glance-stream-sync/internal/httpclient"
	"github.com/bianoble/glance-stream-sync/internal/identity"
	"github.com/bianoble/glance-stream-sync/internal/identity/identitytest"
	"github.com/bianoble/glance-stream-sync/internal/lock"
	"github.com/bianoble/glance-stream-sync/internal/mirror"
	"github.com/bianoble/glance-stream-sync/internal/notify"
	"github.com/bianoble/glance-stream-sync/internal/reconcile"
	"github.com/bianoble/glance-stream-sync/internal/status"
)

const fastPoll = "* * * * * root /usr/share/glance-simplestreams-sync/glance-simplestreams-sync.py\n"

type fakeMirror struct {
	mu   sync.Mutex
	jobs []mirror.Job
	err  error
}

func (m *fakeMirror) Sync(_ context.Context, job mirror.Job, _ mirror.ProgressFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return m.err
}

type fakeBroker struct {
	mu       sync.Mutex
	dials    int
	dialErr  error
	statuses []notify.Phase
}

func (b *fakeBroker) dial(context.Context, string) (notify.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	return &fakeConn{b: b}, nil
}

type fakeConn struct {
	b *fakeBroker
}

func (c *fakeConn) Publish(_ context.Context, msg amqp.Publishing) error {
	var m notify.Message
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		return err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.statuses = append(c.b.statuses, m.Status)
	return nil
}

func (c *fakeConn) IsClosed() bool { return false }
func (c *fakeConn) Close() error   { return nil }

// countingDoer fails every request and counts them.
type countingDoer struct {
	calls int
}

func (d *countingDoer) Do(*http.Request) (*http.Response, error) {
	d.calls++
	return nil, errors.New("unexpected request")
}

type fixture struct {
	paths  config.Paths
	srv    *identitytest.Server
	mirror *fakeMirror
	broker *fakeBroker
	engine *SyncEngine
}

type fixtureOptions struct {
	useSwift bool
	password string
}

func newFixture(t *testing.T, state identitytest.State, opts fixtureOptions) *fixture {
	t.Helper()
	dir := t.TempDir()

	paths := config.PathsFor(filepath.Join(dir, "conf"))
	paths.Trigger = filepath.Join(dir, "cron.d", "glance_simplestreams_sync_fastpoll")
	paths.StateDir = filepath.Join(dir, "state")
	paths.Keyring = filepath.Join(dir, "no-keyring.gpg")

	srv := identitytest.NewServer(t, state)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	if opts.password == "" {
		opts.password = "secret"
	}

	require.NoError(t, os.MkdirAll(paths.ConfDir, 0o755))
	writeFile(t, paths.Identity, fmt.Sprintf(`auth_protocol: http
auth_host: %s
auth_port: "%s"
admin_user: admin
admin_password: %s
admin_tenant_id: t-admin
rabbit_userid: glance
rabbit_password: guest
rabbit_host: broker.example
rabbit_virtual_host: openstack
`, u.Hostname(), u.Port(), opts.password))
	writeFile(t, paths.Mirrors, fmt.Sprintf(`region: RegionOne
cloud_name: test-cloud
content_id_template: "auto.sync.{region}.{cloud_name}"
use_swift: %t
name_prefix: "auto-sync/"
mirror_list:
  - url: http://cloud-images.example/releases/
    path: streams/v1/index.sjson
    max: 1
    item_filters: ["arch~(x86_64|amd64)", "ftype~(disk1.img|disk.img)"]
`, opts.useSwift))
	writeFile(t, paths.Trigger, fastPoll)

	fm := &fakeMirror{}
	fb := &fakeBroker{}
	eng := &SyncEngine{
		Paths:  paths,
		Logger: zaptest.NewLogger(t),
		Dialer: fb.dial,
		NewMirror: func(*identity.Session, *config.Loaded, httpclient.Doer) (mirror.Engine, error) {
			return fm, nil
		},
	}
	return &fixture{paths: paths, srv: srv, mirror: fm, broker: fb, engine: eng}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) triggerPresent(t *testing.T) bool {
	t.Helper()
	_, err := os.Stat(f.paths.Trigger)
	if err == nil {
		return true
	}
	require.True(t, os.IsNotExist(err), "stat trigger: %v", err)
	return false
}

func TestSyncNotReadyMakesNoNetworkCalls(t *testing.T) {
	f := newFixture(t, identitytest.StandardState("RegionOne"), fixtureOptions{})
	require.NoError(t, os.Remove(f.paths.Mirrors))

	doer := &countingDoer{}
	f.engine.HTTPClient = doer

	res, err := f.engine.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, config.IsNotReady(err))
	assert.Equal(t, ExitNotReady, ExitCode(err))
	assert.False(t, res.Locked)

	assert.Zero(t, doer.calls)
	assert.Empty(t, f.srv.Requests())
	assert.Zero(t, f.broker.dials)
	assert.Empty(t, f.mirror.jobs)
	assert.True(t, f.triggerPresent(t))

	rec, err := status.Load(f.paths.StateDir)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = os.Stat(f.paths.Lock)
	assert.True(t, os.IsNotExist(err), "lock file should be released")
}

func TestSyncNullFieldIsNotReady(t *testing.T) {
	f := newFixture(t, identitytest.StandardState("RegionOne"), fixtureOptions{})
	data, err := os.ReadFile(f.paths.Identity)
	require.NoError(t, err)
	writeFile(t, f.paths.Identity, strings.Replace(string(data), "admin_user: admin", "admin_user: ~", 1))

	_, err = f.engine.Sync(context.Background())
	assert.True(t, config.IsNotReady(err))
	assert.Empty(t, f.srv.Requests())
}

func TestSyncLockContention(t *testing.T) {
	f := newFixture(t, identitytest.StandardState("RegionOne"), fixtureOptions{})

	held, err := lock.Acquire(f.paths.Lock)
	require.NoError(t, err)
	defer held.Release()

	res, err := f.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Locked)
	assert.Equal(t, ExitOK, ExitCode(err))

	assert.Empty(t, f.srv.Requests())
	assert.Empty(t, f.mirror.jobs)
	assert.True(t, f.triggerPresent(t))
}

func TestSyncSuccess(t *testing.T) {
	f := newFixture(t, identitytest.StandardState("RegionOne"), fixtureOptions{})

	res, err := f.engine.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Success, res.Outcome)
	assert.NotEmpty(t, res.RunID)
	assert.Nil(t, res.Reconcile, "reconcile runs only with use_swift")
	assert.Zero(t, f.srv.Mutations())

	require.Len(t, f.mirror.jobs, 1)
	job := f.mirror.jobs[0]
	assert.Equal(t, "auto.sync.RegionOne.test-cloud", job.ContentID)
	assert.Equal(t, "streams/v1/index.sjson", job.Path)
	assert.Equal(t, 1, job.MaxItems)
	assert.Equal(t, "auto-sync/", job.NamePrefix)
	assert.Empty(t, job.ObjectStore)

	assert.True(t, res.TriggerRemoved)
	assert.False(t, f.triggerPresent(t))
	assert.Equal(t, []notify.Phase{notify.PhaseStarted, notify.PhaseDone}, f.broker.statuses)

	rec, err := status.Load(f.paths.StateDir)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, status.PhaseComplete, rec.Phase)
	assert.Equal(t, "success", rec.Outcome)
	assert.Equal(t, res.RunID, rec.RunID)
	assert.Equal(t, 1, rec.Completed)
	assert.NotNil(t, rec.FinishedAt)

	_, err = os.Stat(f.paths.Lock)
	assert.True(t, os.IsNotExist(err), "lock file should be released")
}

func TestSyncReconcilesWithSwift(t *testing.T) {
	f := newFixture(t, identitytest.StandardState("RegionOne"), fixtureOptions{useSwift: true})

	res, err := f.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Success, res.Outcome)

	require.NotNil(t, res.Reconcile)
	assert.Equal(t, reconcile.StatusRewritten, res.Reconcile.Status)
	assert.Equal(t, []string{"ep-ps"}, f.srv.Deleted())
	require.Len(t, f.srv.Created(), 1)
	assert.Equal(t, "http://swift.example:8080/v1/AUTH_t-services/simplestreams/data/", f.srv.Created()[0].PublicURL)

	require.Len(t, f.mirror.jobs, 1)
	assert.Equal(t, reconcile.DataDir, f.mirror.jobs[0].ObjectStore)

	rec, err := status.Load(f.paths.StateDir)
	require.NoError(t, err)
	assert.Equal(t, "rewritten", rec.Reconcile)
}

func TestSyncReconcileAmbiguityDoesNotStopMirroring(t *testing.T) {
	state := identitytest.StandardState("RegionOne")
	state.Services = append(state.Services, identity.Service{ID: "svc-swift-2", Name: "swift", Type: "object-store"})
	f := newFixture(t, state, fixtureOptions{useSwift: true})

	res, err := f.engine.Sync(context.Background())
	require.NoError(t, err)

	require.NotNil(t, res.Reconcile)
	assert.Equal(t, reconcile.StatusAmbiguous, res.Reconcile.Status)
	assert.Zero(t, f.srv.Mutations())
	assert.Equal(t, Success, res.Outcome)
	assert.Len(t, f.mirror.jobs, 1)
}

func TestSyncOutcomeDrivesTrigger(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		outcome     Outcome
		triggerKept bool
	}{
		{"unavailable", fmt.Errorf("sstream-mirror-glance exited with status 75: %w", errdefs.ErrUnavailable), ClientTransient, true},
		{"client error", &identity.ClientError{Op: "list services", StatusCode: 503, Err: errors.New("busy")}, ClientTransient, true},
		{"fatal", errors.New("glance rejected image"), Fatal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, identitytest.StandardState("RegionOne"), fixtureOptions{})
			f.mirror.err = tt.err

			res, err := f.engine.Sync(context.Background())
			require.NoError(t, err, "completed runs never fail the process")
			assert.Equal(t, ExitOK, ExitCode(err))

			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.triggerKept, f.triggerPresent(t))
			assert.Equal(t, []notify.Phase{notify.PhaseStarted, notify.PhaseError}, f.broker.statuses)

			rec, err := status.Load(f.paths.StateDir)
			require.NoError(t, err)
			assert.Equal(t, status.PhaseFailed, rec.Phase)
			assert.Equal(t, tt.outcome.String(), rec.Outcome)
			assert.Contains(t, rec.Message, tt.err.Error())
			assert.Equal(t, "http://cloud-images.example/releases/ streams/v1/index.sjson", rec.Failed)
		})
	}
}

func TestSyncEndpointNotFound(t *testing.T) {
	state := identitytest.StandardState("RegionOne")
	state.Catalog = nil
	f := newFixture(t, state, fixtureOptions{})

	res, err := f.engine.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, EndpointNotFoundTransient, res.Outcome)
	assert.True(t, errors.Is(res.Mirrors.Err, identity.ErrEndpointNotFound))
	assert.Empty(t, f.mirror.jobs)
	assert.True(t, f.triggerPresent(t))
}

func TestSyncAuthFailureIsTransient(t *testing.T) {
	f := newFixture(t, identitytest.StandardState("RegionOne"), fixtureOptions{password: "wrong"})

	res, err := f.engine.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ClientTransient, res.Outcome)
	assert.True(t, errors.Is(res.Mirrors.Err, errdefs.ErrUnauthenticated))
	assert.Empty(t, f.mirror.jobs)
	assert.True(t, f.triggerPresent(t))
}

func TestSyncNotifierFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(t, identitytest.StandardState("RegionOne"), fixtureOptions{})
	f.broker.dialErr = errors.New("connection refused")

	res, err := f.engine.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Success, res.Outcome)
	assert.False(t, f.triggerPresent(t))
	assert.GreaterOrEqual(t, f.broker.dials, 2, "every publish retries the connection")
	assert.Empty(t, f.broker.statuses)
}

func TestSyncWritesMetrics(t *testing.T) {
	f := newFixture(t, identitytest.StandardState("RegionOne"), fixtureOptions{})
	f.engine.MetricsFile = filepath.Join(t.TempDir(), "glance_simplestreams_sync.prom")

	_, err := f.engine.Sync(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(f.engine.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `glance_simplestreams_sync_last_run_outcome{outcome="success"} 1`)
	assert.Contains(t, string(data), "glance_simplestreams_sync_last_run_completed_mirrors 1")
}

func TestSyncMirrorFactoryError(t *testing.T) {
	f := newFixture(t, identitytest.StandardState("RegionOne"), fixtureOptions{})
	f.engine.NewMirror = func(*identity.Session, *config.Loaded, httpclient.Doer) (mirror.Engine, error) {
		return nil, errors.New("no engine")
	}

	res, err := f.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Fatal, res.Outcome)
	assert.False(t, f.triggerPresent(t))
}

func TestDefaultMirrorEngine(t *testing.T) {
	f := newFixture(t, identitytest.StandardState("RegionOne"), fixtureOptions{})
	loaded, err := config.LoadAll(f.paths)
	require.NoError(t, err)

	sess, err := identity.Establish(context.Background(), identity.Credentials{
		AuthURL: f.srv.AuthURL(), Username: "admin", Password: "secret", TenantID: "t-admin",
	}, identity.WithHTTPClient(f.srv.Client()))
	require.NoError(t, err)

	e := &SyncEngine{Paths: f.paths, Binary: "/bin/true"}
	eng, err := e.mirrorEngine(sess, loaded, f.srv.Client())
	require.NoError(t, err)
	exec, ok := eng.(*mirror.ExecEngine)
	require.True(t, ok, "got %T", eng)
	assert.Empty(t, exec.Keyring, "missing keyring is not passed")
	assert.Equal(t, "/bin/true", exec.Binary)

	e.Progress = true
	eng, err = e.mirrorEngine(sess, loaded, f.srv.Client())
	require.NoError(t, err)
	_, ok = eng.(mirror.ProgressEngine)
	assert.True(t, ok, "got %T", eng)
}
