// Package httpclient builds the HTTP clients used to reach keystone and the
// stream mirrors. Proxy settings come from configuration, never from the
// process environment.
package httpclient

import (
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http/httpproxy"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 5 * time.Minute

// Doer abstracts HTTP operations for testing.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a client.
type Options struct {
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
	Timeout    time.Duration
}

// New returns a client whose proxy selection follows opts only.
func New(opts Options) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	proxyCfg := httpproxy.Config{
		HTTPProxy:  opts.HTTPProxy,
		HTTPSProxy: opts.HTTPSProxy,
		NoProxy:    opts.NoProxy,
	}
	proxyFunc := proxyCfg.ProxyFunc()
	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		return proxyFunc(req.URL)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{Transport: transport, Timeout: timeout}
}

// Env renders the proxy settings as environment entries for child processes.
func (o Options) Env() []string {
	var env []string
	add := func(key, val string) {
		if val != "" {
			env = append(env, key+"="+val, lowerKey(key)+"="+val)
		}
	}
	add("HTTP_PROXY", o.HTTPProxy)
	add("HTTPS_PROXY", o.HTTPSProxy)
	add("NO_PROXY", o.NoProxy)
	return env
}

func lowerKey(key string) string {
	switch key {
	case "HTTP_PROXY":
		return "http_proxy"
	case "HTTPS_PROXY":
		return "https_proxy"
	default:
		return "no_proxy"
	}
}
