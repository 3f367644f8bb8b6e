package mirror

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bianoble/glance-stream-sync/internal/config"
	"github.com/bianoble/glance-stream-sync/internal/identity"
	"github.com/bianoble/glance-stream-sync/internal/notify"
	"github.com/bianoble/glance-stream-sync/internal/reconcile"
	"github.com/bianoble/glance-stream-sync/internal/transform"
)

// ImageServiceType is the catalog type of the image service the engine
// publishes into.
const ImageServiceType = "image"

// EndpointResolver looks up a catalog endpoint. *identity.Session satisfies it.
type EndpointResolver interface {
	EndpointFor(serviceType, region string) (identity.CatalogEndpoint, error)
}

// Notifier receives per-item progress lines.
type Notifier interface {
	Notify(ctx context.Context, phase notify.Phase, message string)
}

// Result is the explicit outcome of RunAll.
type Result struct {
	Outcome   Outcome
	Completed []string // names of entries that finished, in order
	Failed    string   // name of the entry that stopped the run
	Items     int      // items listed by dry passes of completed entries
	Err       error
}

// Runner mirrors entries one at a time.
type Runner struct {
	Engine   Engine
	Catalog  EndpointResolver
	Notifier Notifier
	Logger   *zap.Logger
}

// RunAll processes mirrors.MirrorList in order and stops at the first
// failure. It never panics on engine errors; they are classified into the
// returned Result.
func (r *Runner) RunAll(ctx context.Context, mirrors config.Mirrors) Result {
	logger := r.logger()
	var res Result

	ep, err := r.Catalog.EndpointFor(ImageServiceType, mirrors.Region)
	if err != nil {
		return r.fail(res, "", fmt.Errorf("resolving image endpoint: %w", err))
	}
	logger.Info("image service endpoint", zap.String("region", mirrors.Region), zap.String("url", ep.PublicURL))

	contentID, err := transform.ContentID(mirrors.ContentIDTemplate, mirrors.Region, mirrors.CloudName)
	if err != nil {
		return r.fail(res, "", err)
	}

	for _, entry := range mirrors.MirrorList {
		job := Job{
			Name:       entry.Name(),
			Source:     entry.URL,
			Path:       entry.Path,
			MaxItems:   entry.Max,
			Filters:    entry.ItemFilters,
			Hooks:      entry.Hooks,
			ContentID:  contentID,
			NamePrefix: mirrors.NamePrefix,
			Region:     mirrors.Region,
			CloudName:  mirrors.CloudName,
		}
		if mirrors.UseSwift {
			job.ObjectStore = reconcile.DataDir
		}

		logger.Info("configuring sync", zap.String("mirror", job.Name), zap.Int("max", job.MaxItems),
			zap.Strings("filters", job.Filters))

		progress, planned := r.progressFor(ctx, job)

		if err := r.Engine.Sync(ctx, job, progress); err != nil {
			return r.fail(res, job.Name, fmt.Errorf("mirror %s: %w", job.Name, err))
		}

		res.Completed = append(res.Completed, job.Name)
		res.Items += planned
		logger.Info("mirror complete", zap.String("mirror", job.Name))
	}

	res.Outcome = Success
	return res
}

// progressFor runs the dry pass when the engine supports it. Any failure
// there only disables progress output.
func (r *Runner) progressFor(ctx context.Context, job Job) (ProgressFunc, int) {
	pe, ok := r.Engine.(ProgressEngine)
	if !ok {
		return nil, 0
	}

	items, err := pe.Plan(ctx, job)
	if err != nil {
		r.logger().Warn("dry pass failed; continuing without progress", zap.String("mirror", job.Name), zap.Error(err))
		return nil, 0
	}

	p := NewProgress(items)
	r.logger().Info("dry pass complete", zap.String("mirror", job.Name), zap.String("plan", p.Line()))

	return func(ev ProgressEvent) {
		line := p.Complete(ev)
		r.logger().Info(line, zap.String("mirror", job.Name), zap.String("item", ev.Key))
		if r.Notifier != nil {
			r.Notifier.Notify(ctx, notify.PhaseSyncing, line)
		}
	}, len(items)
}

func (r *Runner) fail(res Result, name string, err error) Result {
	res.Outcome = Classify(err)
	res.Failed = name
	res.Err = err
	return res
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
