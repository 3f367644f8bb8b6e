// Package source reads simplestreams metadata from a mirror without
// downloading any image content. The dry pass lists the items a sync would
// transfer so progress can be reported against a known total.
package source

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Reader fetches one metadata file relative to a mirror base.
type Reader interface {
	ReadFile(ctx context.Context, base, relPath string) ([]byte, error)
}

// Policy turns fetched bytes into trusted content. It sees the path so it can
// decide whether a signature is expected.
type Policy func(content []byte, path string) ([]byte, error)

// PassThrough returns content unchanged.
func PassThrough(content []byte, _ string) ([]byte, error) {
	return content, nil
}

// SourceError represents an error associated with reading one mirror.
type SourceError struct {
	Source    string
	Operation string
	Err       error
	Hint      string
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("%s: %s failed: %s", e.Source, e.Operation, e.Err)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Registry maps URL schemes to Reader implementations.
type Registry struct {
	readers map[string]Reader
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{readers: make(map[string]Reader)}
}

// DefaultRegistry serves http and https through u and file URLs and bare
// paths from the local filesystem.
func DefaultRegistry(u *URLReader) *Registry {
	r := NewRegistry()
	r.Register("http", u)
	r.Register("https", u)
	r.Register("file", LocalReader{})
	r.Register("", LocalReader{})
	return r
}

// Register adds a reader for the given scheme.
func (r *Registry) Register(scheme string, reader Reader) {
	r.readers[scheme] = reader
}

// Get returns the reader for the given scheme.
func (r *Registry) Get(scheme string) (Reader, error) {
	res, ok := r.readers[scheme]
	if !ok {
		return nil, fmt.Errorf("unknown mirror scheme '%s'; supported schemes: %s", scheme, r.supportedSchemes())
	}
	return res, nil
}

// ForURL picks the reader for mirrorURL's scheme.
func (r *Registry) ForURL(mirrorURL string) (Reader, error) {
	u, err := url.Parse(mirrorURL)
	if err != nil {
		return nil, fmt.Errorf("parsing mirror url: %w", err)
	}
	return r.Get(strings.ToLower(u.Scheme))
}

func (r *Registry) supportedSchemes() string {
	schemes := make([]string, 0, len(r.readers))
	for s := range r.readers {
		if s != "" {
			schemes = append(schemes, s)
		}
	}
	if len(schemes) == 0 {
		return "(none registered)"
	}
	sort.Strings(schemes)
	return strings.Join(schemes, ", ")
}
