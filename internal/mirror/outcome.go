package mirror

import (
	"errors"

	"github.com/containerd/errdefs"

	"github.com/bianoble/glance-stream-sync/internal/identity"
)

// Outcome is the single classification of a run. The poll scheduler is its
// only consumer.
type Outcome int

const (
	// Success means every entry completed.
	Success Outcome = iota
	// EndpointNotFoundTransient means the image service has no endpoint in
	// the region yet, which is normal during bring-up.
	EndpointNotFoundTransient
	// ClientTransient means a catalog or storage client failed in a way that
	// is expected to clear up.
	ClientTransient
	// Fatal is every other failure.
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case EndpointNotFoundTransient:
		return "endpoint-not-found"
	case ClientTransient:
		return "client-transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Transient reports whether the fast-poll trigger should be kept.
func (o Outcome) Transient() bool {
	return o == EndpointNotFoundTransient || o == ClientTransient
}

// Classify maps a run error onto an Outcome. A missing endpoint is checked
// before the generic client kinds.
func Classify(err error) Outcome {
	if err == nil {
		return Success
	}
	if errors.Is(err, identity.ErrEndpointNotFound) {
		return EndpointNotFoundTransient
	}
	var ce *identity.ClientError
	if errors.As(err, &ce) || errdefs.IsUnavailable(err) {
		return ClientTransient
	}
	return Fatal
}
