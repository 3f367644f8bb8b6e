// Package identity talks to the keystone v2 admin API. Establish produces an
// immutable Session once per run; everything that needs credentials or the
// token receives that Session explicitly.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bianoble/glance-stream-sync/internal/httpclient"
)

// Session is an authenticated keystone session. It is never mutated after
// Establish returns.
type Session struct {
	creds   Credentials
	token   string
	expires time.Time
	catalog []CatalogEntry
	http    httpclient.Doer
}

// Option configures Establish.
type Option func(*establishOptions)

type establishOptions struct {
	http httpclient.Doer
}

// WithHTTPClient sets the client used for every keystone request made through
// the session.
func WithHTTPClient(c httpclient.Doer) Option {
	return func(o *establishOptions) {
		o.http = c
	}
}

type tokenRequest struct {
	Auth struct {
		PasswordCredentials struct {
			Username string `json:"username"`
			Password string `json:"password"`
		} `json:"passwordCredentials"`
		TenantID string `json:"tenantId"`
	} `json:"auth"`
}

type tokenResponse struct {
	Access struct {
		Token struct {
			ID      string `json:"id"`
			Expires string `json:"expires"`
		} `json:"token"`
		ServiceCatalog []CatalogEntry `json:"serviceCatalog"`
	} `json:"access"`
}

// Establish authenticates with the admin credentials and returns the session.
func Establish(ctx context.Context, creds Credentials, opts ...Option) (*Session, error) {
	o := establishOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.http == nil {
		o.http = httpclient.New(httpclient.Options{})
	}

	var req tokenRequest
	req.Auth.PasswordCredentials.Username = creds.Username
	req.Auth.PasswordCredentials.Password = creds.Password
	req.Auth.TenantID = creds.TenantID

	var resp tokenResponse
	endpoint := strings.TrimRight(creds.AuthURL, "/") + "/tokens"
	if err := doJSON(ctx, o.http, "authenticate", http.MethodPost, endpoint, "", req, &resp); err != nil {
		return nil, err
	}
	if resp.Access.Token.ID == "" {
		return nil, &ClientError{Op: "authenticate", URL: endpoint, StatusCode: http.StatusUnauthorized, Err: fmt.Errorf("response carried no token")}
	}

	s := &Session{
		creds:   creds,
		token:   resp.Access.Token.ID,
		catalog: resp.Access.ServiceCatalog,
		http:    o.http,
	}
	if exp, err := time.Parse(time.RFC3339, resp.Access.Token.Expires); err == nil {
		s.expires = exp
	}
	return s, nil
}

// AuthURL returns the keystone endpoint the session was established against.
func (s *Session) AuthURL() string { return s.creds.AuthURL }

// Token returns the session's auth token.
func (s *Session) Token() string { return s.token }

// Expires returns the token expiry, or the zero time when keystone did not send one.
func (s *Session) Expires() time.Time { return s.expires }

// EndpointFor returns the token catalog endpoint for serviceType in region.
func (s *Session) EndpointFor(serviceType, region string) (CatalogEndpoint, error) {
	for _, entry := range s.catalog {
		if entry.Type != serviceType {
			continue
		}
		for _, ep := range entry.Endpoints {
			if ep.Region == region {
				return ep, nil
			}
		}
	}
	return CatalogEndpoint{}, fmt.Errorf("%w: no %s endpoint in region %s", ErrEndpointNotFound, serviceType, region)
}

// Env renders the credentials as OS_* variables for a child process that
// authenticates on its own.
func (s *Session) Env(region string) []string {
	return []string{
		"OS_AUTH_URL=" + s.creds.AuthURL,
		"OS_USERNAME=" + s.creds.Username,
		"OS_PASSWORD=" + s.creds.Password,
		"OS_TENANT_ID=" + s.creds.TenantID,
		"OS_REGION_NAME=" + region,
	}
}
