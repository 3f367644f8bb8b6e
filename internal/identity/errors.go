package identity

import (
	"fmt"
	"net/http"

	"github.com/containerd/errdefs"
)

// ErrEndpointNotFound is returned when the token catalog has no endpoint for
// a service type in the requested region. Expected while the cloud is still
// being brought up.
var ErrEndpointNotFound = fmt.Errorf("endpoint not found: %w", errdefs.ErrNotFound)

// ClientError is a failed request to keystone. It unwraps to an errdefs kind
// derived from the response status as well as to the underlying cause.
type ClientError struct {
	Op         string
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *ClientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("identity %s %s: HTTP %d: %s", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("identity %s %s: %s", e.Op, e.URL, e.Err)
}

func (e *ClientError) Unwrap() []error {
	return []error{e.kind(), e.Err}
}

func (e *ClientError) kind() error {
	switch {
	case e.StatusCode == 0:
		return errdefs.ErrUnavailable
	case e.StatusCode == http.StatusUnauthorized:
		return errdefs.ErrUnauthenticated
	case e.StatusCode == http.StatusForbidden:
		return errdefs.ErrPermissionDenied
	case e.StatusCode == http.StatusNotFound:
		return errdefs.ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return errdefs.ErrConflict
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return errdefs.ErrUnavailable
	default:
		return errdefs.ErrInvalidArgument
	}
}
