package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bianoble/glance-stream-sync/internal/identity"
)

//go:generate mockgen -destination=mocks/mock_catalog.go -package=mocks -source=reconciler.go

// Catalog is the slice of the identity admin API the reconciler needs.
// *identity.Client satisfies it.
type Catalog interface {
	ListServices(ctx context.Context) ([]identity.Service, error)
	ListEndpoints(ctx context.Context, region string) ([]identity.Endpoint, error)
	ListTenants(ctx context.Context) ([]identity.Tenant, error)
	DeleteEndpoint(ctx context.Context, id string) error
	CreateEndpoint(ctx context.Context, ep identity.Endpoint) (identity.Endpoint, error)
}

var _ Catalog = (*identity.Client)(nil)

// Status summarizes what a reconciliation pass did.
type Status int

const (
	// StatusRewritten means the old endpoint was deleted and a new one created.
	StatusRewritten Status = iota
	// StatusAmbiguous means a lookup did not match exactly one record.
	StatusAmbiguous
	// StatusFailed means an error or panic was swallowed.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRewritten:
		return "rewritten"
	case StatusAmbiguous:
		return "ambiguous"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Report is returned by Reconcile for logging and tests. Callers must not
// treat Err as a run failure.
type Report struct {
	Status  Status
	Plan    *Plan
	Created identity.Endpoint
	Err     error
}

// Reconciler applies BuildPlan against a live catalog.
type Reconciler struct {
	catalog Catalog
	logger  *zap.Logger
}

// New returns a Reconciler. A nil logger discards output.
func New(catalog Catalog, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{catalog: catalog, logger: logger}
}

// Reconcile fetches the catalog for region and rewrites the image-stream
// endpoint to point at swift. It never returns an error and never panics.
func (r *Reconciler) Reconcile(ctx context.Context, region string) (rep Report) {
	defer func() {
		if p := recover(); p != nil {
			rep = Report{Status: StatusFailed, Plan: rep.Plan, Err: fmt.Errorf("panic during reconciliation: %v", p)}
			r.logger.Error("endpoint reconciliation panicked",
				zap.String("region", region), zap.Any("panic", p), zap.Stack("stack"))
		}
	}()

	snap, err := r.snapshot(ctx, region)
	if err != nil {
		r.logger.Error("could not read catalog; endpoint left unchanged",
			zap.String("region", region), zap.Error(err))
		return Report{Status: StatusFailed, Err: err}
	}

	plan, err := BuildPlan(snap)
	if err != nil {
		var amb *Ambiguity
		if errors.As(err, &amb) {
			r.logger.Warn("not updating image-stream endpoint",
				zap.String("region", region), zap.Stringer("step", amb.Step), zap.Int("matches", amb.Count))
			return Report{Status: StatusAmbiguous, Err: err}
		}
		r.logger.Error("could not plan endpoint rewrite", zap.String("region", region), zap.Error(err))
		return Report{Status: StatusFailed, Err: err}
	}

	r.logger.Info("updating image-stream endpoint",
		zap.String("region", region),
		zap.String("old", plan.Delete.PublicURL),
		zap.String("public", plan.Create.PublicURL),
		zap.String("internal", plan.Create.InternalURL),
		zap.String("admin", plan.Create.AdminURL))

	if err := r.catalog.DeleteEndpoint(ctx, plan.Delete.ID); err != nil {
		r.logger.Error("deleting image-stream endpoint", zap.String("id", plan.Delete.ID), zap.Error(err))
		return Report{Status: StatusFailed, Plan: plan, Err: fmt.Errorf("deleting endpoint %s: %w", plan.Delete.ID, err)}
	}

	created, err := r.catalog.CreateEndpoint(ctx, plan.Create)
	if err != nil {
		// The old endpoint is already gone and later runs find none to
		// rewrite until it is registered again.
		r.logger.Error("creating image-stream endpoint", zap.Error(err))
		return Report{Status: StatusFailed, Plan: plan, Err: fmt.Errorf("creating endpoint: %w", err)}
	}

	r.logger.Debug("image-stream endpoint created", zap.String("id", created.ID))
	return Report{Status: StatusRewritten, Plan: plan, Created: created}
}

func (r *Reconciler) snapshot(ctx context.Context, region string) (Snapshot, error) {
	services, err := r.catalog.ListServices(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("listing services: %w", err)
	}
	endpoints, err := r.catalog.ListEndpoints(ctx, region)
	if err != nil {
		return Snapshot{}, fmt.Errorf("listing endpoints: %w", err)
	}
	tenants, err := r.catalog.ListTenants(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("listing tenants: %w", err)
	}
	return Snapshot{Region: region, Services: services, Endpoints: endpoints, Tenants: tenants}, nil
}
