package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bianoble/glance-stream-sync/internal/httpclient"
)

// maxErrorBody caps how much of an error response is kept for the message.
const maxErrorBody = 4096

// Client issues keystone admin API calls with a Session's token.
type Client struct {
	session *Session
}

// NewClient returns a client bound to session.
func NewClient(session *Session) *Client {
	return &Client{session: session}
}

// ListServices returns every registered service.
func (c *Client) ListServices(ctx context.Context) ([]Service, error) {
	var resp struct {
		Services []Service `json:"OS-KSADM:services"`
	}
	if err := c.do(ctx, "list services", http.MethodGet, "/OS-KSADM/services", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Services, nil
}

// ListEndpoints returns the endpoints registered in region.
func (c *Client) ListEndpoints(ctx context.Context, region string) ([]Endpoint, error) {
	var resp struct {
		Endpoints []Endpoint `json:"endpoints"`
	}
	if err := c.do(ctx, "list endpoints", http.MethodGet, "/endpoints", nil, &resp); err != nil {
		return nil, err
	}

	filtered := make([]Endpoint, 0, len(resp.Endpoints))
	for _, ep := range resp.Endpoints {
		if ep.Region == region {
			filtered = append(filtered, ep)
		}
	}
	return filtered, nil
}

// ListTenants returns every tenant visible to the admin user.
func (c *Client) ListTenants(ctx context.Context) ([]Tenant, error) {
	var resp struct {
		Tenants []Tenant `json:"tenants"`
	}
	if err := c.do(ctx, "list tenants", http.MethodGet, "/tenants", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tenants, nil
}

// DeleteEndpoint removes the endpoint with the given id.
func (c *Client) DeleteEndpoint(ctx context.Context, id string) error {
	return c.do(ctx, "delete endpoint", http.MethodDelete, "/endpoints/"+url.PathEscape(id), nil, nil)
}

// CreateEndpoint registers ep and returns the stored record.
func (c *Client) CreateEndpoint(ctx context.Context, ep Endpoint) (Endpoint, error) {
	body := struct {
		Endpoint Endpoint `json:"endpoint"`
	}{Endpoint: ep}
	body.Endpoint.ID = ""

	var resp struct {
		Endpoint Endpoint `json:"endpoint"`
	}
	if err := c.do(ctx, "create endpoint", http.MethodPost, "/endpoints", body, &resp); err != nil {
		return Endpoint{}, err
	}
	return resp.Endpoint, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	endpoint := strings.TrimRight(c.session.creds.AuthURL, "/") + path
	return doJSON(ctx, c.session.http, op, method, endpoint, c.session.token, in, out)
}

func doJSON(ctx context.Context, client httpclient.Doer, op, method, endpoint, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("identity %s: encoding request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("identity %s: creating request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("X-Auth-Token", token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &ClientError{Op: op, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ClientError{
			Op:         op,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(msg))),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Op: op, URL: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
