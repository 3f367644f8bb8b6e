package config

import (
	"net"
	"net/url"
)

// Identity represents identity.yaml, written from the identity-service
// relation data.
type Identity struct {
	AuthProtocol  string `yaml:"auth_protocol"`
	AuthHost      string `yaml:"auth_host"`
	AuthPort      string `yaml:"auth_port"`
	AdminUser     string `yaml:"admin_user"`
	AdminPassword string `yaml:"admin_password"`
	AdminTenantID string `yaml:"admin_tenant_id"`

	// Proxy settings applied to outbound HTTP clients and passed to the
	// mirroring engine.
	HTTPProxy  string `yaml:"http_proxy,omitempty"`
	HTTPSProxy string `yaml:"https_proxy,omitempty"`
	NoProxy    string `yaml:"no_proxy,omitempty"`

	// Message broker used for status notifications.
	RabbitUserID      string `yaml:"rabbit_userid,omitempty"`
	RabbitPassword    string `yaml:"rabbit_password,omitempty"`
	RabbitHost        string `yaml:"rabbit_host,omitempty"`
	RabbitVirtualHost string `yaml:"rabbit_virtual_host,omitempty"`
}

// AuthURL composes the keystone v2 endpoint from its parts.
func (i Identity) AuthURL() string {
	u := url.URL{
		Scheme: i.AuthProtocol,
		Host:   net.JoinHostPort(i.AuthHost, i.AuthPort),
		Path:   "/v2.0",
	}
	return u.String()
}

// Broker holds connection parameters for the status exchange.
type Broker struct {
	Host        string
	UserID      string
	Password    string
	VirtualHost string
}

// Broker returns the broker parameters and whether a broker is configured.
func (i Identity) Broker() (Broker, bool) {
	if i.RabbitHost == "" {
		return Broker{}, false
	}
	vhost := i.RabbitVirtualHost
	if vhost == "" {
		vhost = "/"
	}
	return Broker{
		Host:        i.RabbitHost,
		UserID:      i.RabbitUserID,
		Password:    i.RabbitPassword,
		VirtualHost: vhost,
	}, true
}

// Mirrors represents mirrors.yaml, written from the charm config.
type Mirrors struct {
	Region            string        `yaml:"region"`
	CloudName         string        `yaml:"cloud_name"`
	ContentIDTemplate string        `yaml:"content_id_template"`
	UseSwift          bool          `yaml:"use_swift"`
	NamePrefix        string        `yaml:"name_prefix"`
	MirrorList        []MirrorEntry `yaml:"mirror_list"`
}

// MirrorEntry is one simplestreams source to replicate into the catalog.
type MirrorEntry struct {
	URL         string   `yaml:"url"`
	Path        string   `yaml:"path"`
	Max         int      `yaml:"max"`
	ItemFilters []string `yaml:"item_filters,omitempty"`
	Hooks       []string `yaml:"hooks,omitempty"`
}

// Name identifies the entry in logs and status messages.
func (e MirrorEntry) Name() string {
	return e.URL + " " + e.Path
}

// Loaded bundles both documents once they are known to be ready.
type Loaded struct {
	Identity Identity
	Mirrors  Mirrors
}
