// Package streamsync provides the public Go library API for
// glance-stream-sync.
//
// # Basic Usage
//
//	client := streamsync.New(streamsync.Options{
//	    ConfDir: "/etc/glance-simplestreams-sync",
//	    Logger:  logger,
//	})
//
//	// Is the configuration in place yet?
//	check, err := client.Check(ctx)
//
//	// Run one sync exactly as the cron job does.
//	result, err := client.Sync(ctx)
//	if err == nil && result.Outcome.Transient() {
//	    // try again later
//	}
package streamsync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bianoble/glance-stream-sync/internal/config"
	"github.com/bianoble/glance-stream-sync/internal/engine"
)

// Syncer runs one sync.
type Syncer interface {
	Sync(ctx context.Context) (*SyncResult, error)
}

// Checker reports configuration readiness.
type Checker interface {
	Check(ctx context.Context) (*CheckResult, error)
}

// Planner lists what a sync would transfer.
type Planner interface {
	Plan(ctx context.Context) ([]PlanEntry, error)
}

// Options configures a Client. Empty paths take the packaged defaults.
type Options struct {
	// ConfDir holds identity.yaml and mirrors.yaml.
	ConfDir string

	Trigger  string
	StateDir string
	Keyring  string

	// MetricsFile, when set, receives run metrics in textfile format.
	MetricsFile string

	// Binary is the mirror command. Default: sstream-mirror-glance.
	Binary string

	// DisableProgress skips the dry pass before each mirror.
	DisableProgress bool

	Logger *zap.Logger
}

// Client is the main entry point for the library.
// It implements Syncer, Checker and Planner.
type Client struct {
	paths       config.Paths
	metricsFile string
	binary      string
	progress    bool
	logger      *zap.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	p := config.PathsFor(opts.ConfDir)
	if opts.Trigger != "" {
		p.Trigger = opts.Trigger
	}
	if opts.StateDir != "" {
		p.StateDir = opts.StateDir
	}
	if opts.Keyring != "" {
		p.Keyring = opts.Keyring
	}
	p.LogFile = ""

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		paths:       p,
		metricsFile: opts.MetricsFile,
		binary:      opts.Binary,
		progress:    !opts.DisableProgress,
		logger:      logger,
	}
}

// Paths returns the resolved filesystem locations.
func (c *Client) Paths() config.Paths {
	return c.paths
}

// Sync runs one sync. See engine.SyncEngine.Sync for the error contract.
func (c *Client) Sync(ctx context.Context) (*SyncResult, error) {
	eng := &engine.SyncEngine{
		Paths:       c.paths,
		MetricsFile: c.metricsFile,
		Binary:      c.binary,
		Progress:    c.progress,
		Logger:      c.logger,
	}
	return eng.Sync(ctx)
}

// Check reports whether both configuration documents are ready.
func (c *Client) Check(ctx context.Context) (*CheckResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return engine.Check(c.paths)
}

// Plan lists the images each mirror entry would transfer.
func (c *Client) Plan(ctx context.Context) ([]PlanEntry, error) {
	return engine.Plan(ctx, c.paths, nil, c.logger)
}

// Status inspects the lock, the fast-poll trigger and the last-run record.
func (c *Client) Status(ctx context.Context) (*StatusReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return engine.Status(c.paths, time.Now())
}

// IsNotReady reports whether err means the configuration documents are not
// in place yet.
func IsNotReady(err error) bool {
	return config.IsNotReady(err)
}
