// Package reconcile keeps the image-stream service endpoint pointed at the
// object store. BuildPlan is pure; Reconciler fetches the catalog and applies
// the plan.
package reconcile

import (
	"fmt"
	"net/url"
	"path"

	"github.com/bianoble/glance-stream-sync/internal/identity"
)

const (
	// SwiftServiceName is the object store service that hosts the data.
	SwiftServiceName = "swift"

	// StreamServiceName is the logical service consumers resolve streams through.
	StreamServiceName = "image-stream"

	// ServicesTenantName owns the container the mirror writes into.
	ServicesTenantName = "services"

	// DataDir is where simplestreams data lives inside the tenant's account.
	// Consumers look in simplestreams/data/* so this is not configurable.
	DataDir = "simplestreams/data/"
)

// Step identifies which lookup failed to produce exactly one match.
type Step int

const (
	StepSwiftService Step = iota + 1
	StepSwiftEndpoint
	StepStreamService
	StepStreamEndpoint
	StepServicesTenant
)

func (s Step) String() string {
	switch s {
	case StepSwiftService:
		return "swift service"
	case StepSwiftEndpoint:
		return "swift endpoint"
	case StepStreamService:
		return "image-stream service"
	case StepStreamEndpoint:
		return "image-stream endpoint"
	case StepServicesTenant:
		return "services tenant"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Ambiguity reports a lookup that matched zero or several records. It is not
// a failure: the catalog is left alone and the run continues.
type Ambiguity struct {
	Step   Step
	Count  int
	Region string
}

func (a *Ambiguity) Error() string {
	return fmt.Sprintf("found %d %s(s) in region %s, expecting one", a.Count, a.Step, a.Region)
}

// Snapshot is the catalog state a plan is computed from. Endpoints must
// already be filtered to Region.
type Snapshot struct {
	Region    string
	Services  []identity.Service
	Endpoints []identity.Endpoint
	Tenants   []identity.Tenant
}

// Plan replaces one endpoint with another.
type Plan struct {
	Delete identity.Endpoint
	Create identity.Endpoint
}

// BuildPlan computes the endpoint rewrite for snap. It returns *Ambiguity
// when any lookup does not match exactly one record, and a plain error when a
// swift URL cannot be parsed.
func BuildPlan(snap Snapshot) (*Plan, error) {
	swift, err := exactlyOne(snap, StepSwiftService, filterServices(snap.Services, SwiftServiceName))
	if err != nil {
		return nil, err
	}
	swiftEP, err := exactlyOne(snap, StepSwiftEndpoint, filterEndpoints(snap, swift.ID))
	if err != nil {
		return nil, err
	}
	stream, err := exactlyOne(snap, StepStreamService, filterServices(snap.Services, StreamServiceName))
	if err != nil {
		return nil, err
	}
	streamEP, err := exactlyOne(snap, StepStreamEndpoint, filterEndpoints(snap, stream.ID))
	if err != nil {
		return nil, err
	}
	tenant, err := exactlyOne(snap, StepServicesTenant, filterTenants(snap.Tenants, ServicesTenantName))
	if err != nil {
		return nil, err
	}

	dataPath := DataPath(tenant.ID)
	publicURL, err := withPath(swiftEP.PublicURL, dataPath)
	if err != nil {
		return nil, fmt.Errorf("swift public url: %w", err)
	}
	internalURL, err := withPath(swiftEP.InternalURL, dataPath)
	if err != nil {
		return nil, fmt.Errorf("swift internal url: %w", err)
	}

	return &Plan{
		Delete: streamEP,
		Create: identity.Endpoint{
			Region:      snap.Region,
			ServiceID:   stream.ID,
			PublicURL:   publicURL,
			InternalURL: internalURL,
			// Admin access is not customer facing; it keeps the bare swift URL.
			AdminURL: swiftEP.AdminURL,
		},
	}, nil
}

// DataPath is the simplestreams data location inside tenantID's swift account.
func DataPath(tenantID string) string {
	return "/" + path.Join("v1", "AUTH_"+tenantID, DataDir) + "/"
}

func exactlyOne[T any](snap Snapshot, step Step, matches []T) (T, error) {
	if len(matches) != 1 {
		var zero T
		return zero, &Ambiguity{Step: step, Count: len(matches), Region: snap.Region}
	}
	return matches[0], nil
}

func filterServices(services []identity.Service, name string) []identity.Service {
	var out []identity.Service
	for _, s := range services {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

func filterEndpoints(snap Snapshot, serviceID string) []identity.Endpoint {
	var out []identity.Endpoint
	for _, ep := range snap.Endpoints {
		if ep.Region == snap.Region && ep.ServiceID == serviceID {
			out = append(out, ep)
		}
	}
	return out
}

func filterTenants(tenants []identity.Tenant, name string) []identity.Tenant {
	var out []identity.Tenant
	for _, t := range tenants {
		if t.Name == name {
			out = append(out, t)
		}
	}
	return out
}

func withPath(raw, p string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute URL", raw)
	}
	u.Path = p
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
