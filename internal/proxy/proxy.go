// Package proxy derives the transport proxy configuration the engine should
// use from stored preferences or the host's system default.
package proxy

import (
	"fmt"
	"net/http"
	"net/url"
)

// Type is the transport proxy protocol
type Type string

const (
	TypeHTTP   Type = "http"
	TypeSOCKS4 Type = "socks4"
	TypeSOCKS5 Type = "socks5"
)

// Mode selects where the proxy settings come from
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

// Preferences are the read-only proxy inputs from configuration
type Preferences struct {
	UseProxy bool
	Mode     string // ModeAuto or ModeManual
	Type     string // "http", "socks4", "socks5"
	Hostname string
	Port     int
	Username string
	Password string
}

// Config is a fully resolved proxy configuration for the engine transport
type Config struct {
	Type     Type
	Hostname string
	Port     int
	Username string
	Password string
}

// URL renders the config as a proxy URL with credentials when both are set
func (c *Config) URL() *url.URL {
	u := &url.URL{
		Scheme: string(c.Type),
		Host:   fmt.Sprintf("%s:%d", c.Hostname, c.Port),
	}
	if c.Username != "" && c.Password != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	return u
}

// SystemProxyFunc reports the host's default proxy for outbound HTTP
// traffic, or nil when the host has none configured.
type SystemProxyFunc func() (*url.URL, error)

// SystemProxy is the default system proxy source. Go daemons inherit the
// host proxy through the standard environment variables.
func SystemProxy() (*url.URL, error) {
	probe, err := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	if err != nil {
		return nil, err
	}
	return http.ProxyFromEnvironment(probe)
}

// Resolve derives the proxy config for prefs. It returns nil when the engine
// should keep its default no-proxy transport: the use-proxy preference is
// off, or AUTO mode found no system proxy (a deliberate soft-fail, not an
// error). systemProxy is only consulted in AUTO mode; passing nil uses
// SystemProxy. Preferences are never mutated.
func Resolve(prefs Preferences, systemProxy SystemProxyFunc) *Config {
	if !prefs.UseProxy {
		return nil
	}

	if systemProxy == nil {
		systemProxy = SystemProxy
	}

	var cfg Config
	if prefs.Mode == ModeAuto {
		u, err := systemProxy()
		if err != nil || u == nil {
			return nil
		}
		port := 0
		if p := u.Port(); p != "" {
			fmt.Sscanf(p, "%d", &port)
		} else if u.Scheme == "https" {
			port = 443
		} else {
			// A proxy URL without an explicit port implies the scheme
			// default.
			port = 80
		}
		// Auto-detected proxies never carry credentials.
		cfg = Config{
			Type:     TypeHTTP,
			Hostname: u.Hostname(),
			Port:     port,
		}
	} else {
		cfg = Config{
			Type:     mapType(prefs.Type),
			Hostname: prefs.Hostname,
			Port:     prefs.Port,
			Username: prefs.Username,
			Password: prefs.Password,
		}
	}

	// Never send a half-set credential pair: both or neither.
	if cfg.Username == "" || cfg.Password == "" {
		cfg.Username = ""
		cfg.Password = ""
	}

	return &cfg
}

// mapType is total over preference tags; anything unrecognized is HTTP
func mapType(tag string) Type {
	switch tag {
	case string(TypeSOCKS4):
		return TypeSOCKS4
	case string(TypeSOCKS5):
		return TypeSOCKS5
	default:
		return TypeHTTP
	}
}
