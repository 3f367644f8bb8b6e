// Package identitytest provides an in-memory keystone v2 admin API for tests.
package identitytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bianoble/glance-stream-sync/internal/identity"
)

// Token is the token id the fake hands out.
const Token = "test-token"

// State is the fake catalog contents.
type State struct {
	Services  []identity.Service
	Endpoints []identity.Endpoint
	Tenants   []identity.Tenant
	Catalog   []identity.CatalogEntry
}

// Server is a fake keystone. All recorded fields are guarded by mu.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	state    State
	nextID   int
	requests []string
	deleted  []string
	created  []identity.Endpoint

	// FailPaths maps "METHOD /path" to an HTTP status the fake returns instead.
	FailPaths map[string]int
}

// NewServer starts a fake keystone seeded with state and closes it when the
// test ends.
func NewServer(t *testing.T, state State) *Server {
	t.Helper()
	s := &Server{state: state, FailPaths: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// AuthURL returns the v2.0 base URL.
func (s *Server) AuthURL() string {
	return s.URL + "/v2.0"
}

// Requests returns "METHOD /path" for every request served.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Deleted returns the ids of deleted endpoints.
func (s *Server) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

// Created returns the endpoints created through the API.
func (s *Server) Created() []identity.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]identity.Endpoint(nil), s.created...)
}

// Mutations counts delete and create calls.
func (s *Server) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deleted) + len(s.created)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/v2.0")
	s.requests = append(s.requests, key)

	if status, ok := s.FailPaths[key]; ok {
		http.Error(w, "injected failure", status)
		return
	}

	if key != "POST /tokens" && r.Header.Get("X-Auth-Token") != Token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch {
	case key == "POST /tokens":
		s.token(w, r)
	case key == "GET /OS-KSADM/services":
		writeJSON(w, http.StatusOK, map[string]any{"OS-KSADM:services": s.state.Services})
	case key == "GET /endpoints":
		writeJSON(w, http.StatusOK, map[string]any{"endpoints": s.state.Endpoints})
	case key == "GET /tenants":
		writeJSON(w, http.StatusOK, map[string]any{"tenants": s.state.Tenants})
	case key == "POST /endpoints":
		s.createEndpoint(w, r)
	case strings.HasPrefix(key, "DELETE /endpoints/"):
		s.deleteEndpoint(w, strings.TrimPrefix(key, "DELETE /endpoints/"))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Auth struct {
			PasswordCredentials struct {
				Username string `json:"username"`
				Password string `json:"password"`
			} `json:"passwordCredentials"`
			TenantID string `json:"tenantId"`
		} `json:"auth"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Auth.PasswordCredentials.Password != "secret" {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access": map[string]any{
			"token": map[string]any{
				"id":      Token,
				"expires": "2030-01-01T00:00:00Z",
			},
			"serviceCatalog": s.state.Catalog,
		},
	})
}

func (s *Server) createEndpoint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint identity.Endpoint `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.nextID++
	ep := req.Endpoint
	ep.ID = fmt.Sprintf("created-%d", s.nextID)
	s.state.Endpoints = append(s.state.Endpoints, ep)
	s.created = append(s.created, ep)
	writeJSON(w, http.StatusOK, map[string]any{"endpoint": ep})
}

func (s *Server) deleteEndpoint(w http.ResponseWriter, id string) {
	for i, ep := range s.state.Endpoints {
		if ep.ID == id {
			s.state.Endpoints = append(s.state.Endpoints[:i], s.state.Endpoints[i+1:]...)
			s.deleted = append(s.deleted, id)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	http.Error(w, "endpoint not found", http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StandardState returns a catalog with one swift service and endpoint, one
// image-stream service and endpoint, a services tenant and an image endpoint
// in region.
func StandardState(region string) State {
	return State{
		Services: []identity.Service{
			{ID: "svc-swift", Name: "swift", Type: "object-store"},
			{ID: "svc-glance", Name: "glance", Type: "image"},
			{ID: "svc-ps", Name: "image-stream", Type: "product-streams"},
		},
		Endpoints: []identity.Endpoint{
			{
				ID:          "ep-swift",
				Region:      region,
				ServiceID:   "svc-swift",
				PublicURL:   "http://swift.example:8080/v1/AUTH_$(tenant_id)s",
				InternalURL: "http://swift.internal:8080/v1/AUTH_$(tenant_id)s",
				AdminURL:    "http://swift.admin:8080",
			},
			{
				ID:          "ep-ps",
				Region:      region,
				ServiceID:   "svc-ps",
				PublicURL:   "http://10.0.0.5",
				InternalURL: "http://10.0.0.5",
				AdminURL:    "http://10.0.0.5",
			},
		},
		Tenants: []identity.Tenant{
			{ID: "t-admin", Name: "admin", Enabled: true},
			{ID: "t-services", Name: "services", Enabled: true},
		},
		Catalog: []identity.CatalogEntry{
			{
				Name: "glance",
				Type: "image",
				Endpoints: []identity.CatalogEndpoint{
					{Region: region, PublicURL: "http://glance:9292", InternalURL: "http://glance:9292", AdminURL: "http://glance:9292"},
				},
			},
		},
	}
}
