// Package engine runs the scheduled job: it takes the run lock, loads the
// configuration, reconciles the image-stream endpoint, mirrors every entry
// and applies the outcome to the fast-poll trigger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bianoble/glance-stream-sync/internal/config"
	"github.com/bianoble/glance-stream-sync/internal/httpclient"
	"github.com/bianoble/glance-stream-sync/internal/identity"
	"github.com/bianoble/glance-stream-sync/internal/lock"
	"github.com/bianoble/glance-stream-sync/internal/metrics"
	"github.com/bianoble/glance-stream-sync/internal/mirror"
	"github.com/bianoble/glance-stream-sync/internal/notify"
	"github.com/bianoble/glance-stream-sync/internal/reconcile"
	"github.com/bianoble/glance-stream-sync/internal/schedule"
	"github.com/bianoble/glance-stream-sync/internal/status"
)

// MirrorFactory builds the mirroring engine for one run.
type MirrorFactory func(sess *identity.Session, loaded *config.Loaded, client httpclient.Doer) (mirror.Engine, error)

// SyncEngine orchestrates one scheduled run.
type SyncEngine struct {
	Paths       config.Paths
	MetricsFile string // empty disables the textfile
	Binary      string // mirror command; empty uses mirror.DefaultBinary
	Progress    bool   // run the dry pass and report per-item progress
	Logger      *zap.Logger

	// HTTPClient overrides the proxy-aware client built from identity.yaml.
	HTTPClient httpclient.Doer
	// Dialer overrides the AMQP dialer.
	Dialer notify.Dialer
	// NewMirror overrides the exec engine.
	NewMirror MirrorFactory
	// Now defaults to time.Now.
	Now func() time.Time
}

// Sync runs the job once. It returns an error only when the run could not
// start: the lock could not be taken for a reason other than contention, or
// the configuration is not ready. Mirror failures are reported through the
// result's Outcome.
func (e *SyncEngine) Sync(ctx context.Context) (*SyncResult, error) {
	logger := e.logger()
	result := &SyncResult{RunID: uuid.NewString()}

	rl, err := lock.Acquire(e.Paths.Lock)
	if errors.Is(err, lock.ErrLocked) {
		pid, _, _ := lock.Holder(e.Paths.Lock)
		logger.Info("another sync is running; exiting", zap.String("lock", e.Paths.Lock), zap.Int("pid", pid))
		result.Locked = true
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	defer func() {
		if err := rl.Release(); err != nil {
			logger.Warn("releasing run lock", zap.Error(err))
		}
	}()

	loaded, err := config.LoadAll(e.Paths)
	if err != nil {
		logger.Info("not all config in place yet; exiting", zap.Error(err))
		return result, err
	}

	result.StartedAt = e.now()
	logger.Info("glance-simplestreams-sync started.", zap.String("run_id", result.RunID))

	rec := &status.Record{Phase: status.PhaseSyncing, RunID: result.RunID, StartedAt: result.StartedAt}
	e.saveRecord(rec)

	client := e.HTTPClient
	if client == nil {
		client = httpclient.New(proxyOptions(loaded.Identity))
	}

	broker, ok := loaded.Identity.Broker()
	nopts := []notify.Option{notify.WithRunID(result.RunID)}
	if e.Dialer != nil {
		nopts = append(nopts, notify.WithDialer(e.Dialer))
	}
	notifier := notify.New(broker, ok, logger.Named("notify"), nopts...)
	defer notifier.Close()

	notifier.Notify(ctx, notify.PhaseStarted, "Sync starting.")

	result.Mirrors = e.run(ctx, loaded, client, notifier, result)
	result.Outcome = result.Mirrors.Outcome
	result.FinishedAt = e.now()

	e.finish(ctx, notifier, result, rec)
	return result, nil
}

func (e *SyncEngine) run(ctx context.Context, loaded *config.Loaded, client httpclient.Doer, notifier *notify.Notifier, result *SyncResult) mirror.Result {
	logger := e.logger()
	id := loaded.Identity

	sess, err := identity.Establish(ctx, identity.Credentials{
		AuthURL:  id.AuthURL(),
		Username: id.AdminUser,
		Password: id.AdminPassword,
		TenantID: id.AdminTenantID,
	}, identity.WithHTTPClient(client))
	if err != nil {
		return failed(fmt.Errorf("establishing identity session: %w", err))
	}

	if loaded.Mirrors.UseSwift {
		rep := reconcile.New(identity.NewClient(sess), logger.Named("reconcile")).Reconcile(ctx, loaded.Mirrors.Region)
		result.Reconcile = &rep
	} else {
		logger.Info("use_swift is not set; leaving the image-stream endpoint alone")
	}

	eng, err := e.mirrorEngine(sess, loaded, client)
	if err != nil {
		return failed(err)
	}

	runner := &mirror.Runner{
		Engine:   eng,
		Catalog:  sess,
		Notifier: notifier,
		Logger:   logger.Named("mirror"),
	}
	return runner.RunAll(ctx, loaded.Mirrors)
}

func failed(err error) mirror.Result {
	return mirror.Result{Outcome: mirror.Classify(err), Err: err}
}

func (e *SyncEngine) mirrorEngine(sess *identity.Session, loaded *config.Loaded, client httpclient.Doer) (mirror.Engine, error) {
	if e.NewMirror != nil {
		return e.NewMirror(sess, loaded, client)
	}

	logger := e.logger().Named("engine")
	exec := &mirror.ExecEngine{
		Binary:      e.Binary,
		Credentials: sess.Env,
		ExtraEnv:    proxyOptions(loaded.Identity).Env(),
		Logger:      logger,
	}

	keyring, ok := loadKeyring(e.Paths.Keyring, logger)
	if ok {
		exec.Keyring = e.Paths.Keyring
	}

	if !e.Progress {
		return exec, nil
	}
	return &mirror.ProgressExecEngine{
		ExecEngine: exec,
		Reader:     newStreamReader(client, keyring),
	}, nil
}

// finish reports the outcome everywhere it needs to go. Nothing here can
// change the outcome.
func (e *SyncEngine) finish(ctx context.Context, notifier *notify.Notifier, result *SyncResult, rec *status.Record) {
	logger := e.logger()
	m := result.Mirrors

	switch {
	case m.Outcome == mirror.Success:
		logger.Info("sync complete", zap.Strings("mirrors", m.Completed))
		notifier.Notify(ctx, notify.PhaseDone, "Sync completed.")
	case m.Outcome.Transient():
		logger.Warn("sync interrupted; will retry on the next poll", zap.Stringer("outcome", m.Outcome), zap.Error(m.Err))
		notifier.Notify(ctx, notify.PhaseError, errorMessage(m.Err))
	default:
		logger.Error("sync failed", zap.String("mirror", m.Failed), zap.Error(m.Err))
		notifier.Notify(ctx, notify.PhaseError, errorMessage(m.Err))
	}

	sched := &schedule.PollScheduler{Trigger: e.Paths.Trigger, Logger: logger.Named("schedule")}
	removed, err := sched.Apply(m.Outcome)
	if err != nil {
		logger.Warn("applying outcome to trigger", zap.Error(err))
	}
	result.TriggerRemoved = removed

	finished := result.FinishedAt
	rec.FinishedAt = &finished
	rec.Outcome = m.Outcome.String()
	rec.Completed = len(m.Completed)
	rec.Failed = m.Failed
	rec.Items = m.Items
	rec.Phase = status.PhaseComplete
	if m.Outcome != mirror.Success {
		rec.Phase = status.PhaseFailed
		rec.Message = errorMessage(m.Err)
	}
	if result.Reconcile != nil {
		rec.Reconcile = result.Reconcile.Status.String()
	}
	e.saveRecord(rec)

	if e.MetricsFile != "" {
		r := metrics.NewRecorder()
		r.Observe(metrics.Run{
			Finished:  result.FinishedAt,
			Duration:  result.FinishedAt.Sub(result.StartedAt),
			Outcome:   m.Outcome,
			Completed: len(m.Completed),
			Items:     m.Items,
		})
		if err := r.WriteTextfile(e.MetricsFile); err != nil {
			logger.Warn("writing metrics", zap.Error(err))
		}
	}

	logger.Info("glance-simplestreams-sync finished.", zap.Stringer("outcome", m.Outcome),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)))
}

func (e *SyncEngine) saveRecord(rec *status.Record) {
	if e.Paths.StateDir == "" {
		return
	}
	if err := status.Save(e.Paths.StateDir, rec); err != nil {
		e.logger().Warn("recording run status", zap.Error(err))
	}
}

func errorMessage(err error) string {
	if err == nil {
		return "Sync failed."
	}
	return err.Error()
}

func proxyOptions(id config.Identity) httpclient.Options {
	return httpclient.Options{
		HTTPProxy:  id.HTTPProxy,
		HTTPSProxy: id.HTTPSProxy,
		NoProxy:    id.NoProxy,
	}
}

func (e *SyncEngine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *SyncEngine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
