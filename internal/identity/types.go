package identity

// Service is a keystone service catalog entry.
type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Endpoint is a keystone v2 endpoint record.
type Endpoint struct {
	ID          string `json:"id,omitempty"`
	Region      string `json:"region"`
	ServiceID   string `json:"service_id"`
	PublicURL   string `json:"publicurl"`
	AdminURL    string `json:"adminurl"`
	InternalURL string `json:"internalurl"`
}

// Tenant is a keystone v2 tenant (project).
type Tenant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// CatalogEntry is one service in the token's service catalog.
type CatalogEntry struct {
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Endpoints []CatalogEndpoint `json:"endpoints"`
}

// CatalogEndpoint is a per-region URL set inside a CatalogEntry.
type CatalogEndpoint struct {
	Region      string `json:"region"`
	PublicURL   string `json:"publicURL"`
	InternalURL string `json:"internalURL"`
	AdminURL    string `json:"adminURL"`
}

// Credentials are the admin credentials from identity.yaml.
type Credentials struct {
	AuthURL  string
	Username string
	Password string
	TenantID string
}
