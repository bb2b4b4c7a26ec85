package proxy

import (
	"errors"
	"net/url"
	"testing"
)

func TestResolveProxyDisabled(t *testing.T) {
	prefs := Preferences{
		UseProxy: false,
		Mode:     ModeManual,
		Type:     "socks5",
		Hostname: "10.0.0.1",
		Port:     1080,
		Username: "u",
		Password: "p",
	}
	if cfg := Resolve(prefs, nil); cfg != nil {
		t.Errorf("use-proxy off must resolve to nil regardless of other prefs, got %+v", cfg)
	}
}

func TestResolveAutoWithSystemProxy(t *testing.T) {
	called := 0
	system := func() (*url.URL, error) {
		called++
		return url.Parse("http://10.0.0.1:8080")
	}

	cfg := Resolve(Preferences{UseProxy: true, Mode: ModeAuto}, system)
	if cfg == nil {
		t.Fatal("Expected a config")
	}
	if cfg.Type != TypeHTTP {
		t.Errorf("auto-detected proxies are always HTTP, got %s", cfg.Type)
	}
	if cfg.Hostname != "10.0.0.1" || cfg.Port != 8080 {
		t.Errorf("Unexpected endpoint %s:%d", cfg.Hostname, cfg.Port)
	}
	if cfg.Username != "" || cfg.Password != "" {
		t.Error("auto-detected proxies never carry credentials")
	}
	if called != 1 {
		t.Errorf("system proxy should be queried exactly once, got %d", called)
	}
}

func TestResolveAutoDefaultsSchemePort(t *testing.T) {
	system := func() (*url.URL, error) { return url.Parse("http://proxy.corp") }
	cfg := Resolve(Preferences{UseProxy: true, Mode: ModeAuto}, system)
	if cfg == nil {
		t.Fatal("Expected a config")
	}
	if cfg.Hostname != "proxy.corp" || cfg.Port != 80 {
		t.Errorf("portless http proxy URL must default to port 80, got %s:%d", cfg.Hostname, cfg.Port)
	}

	system = func() (*url.URL, error) { return url.Parse("https://proxy.corp") }
	if cfg := Resolve(Preferences{UseProxy: true, Mode: ModeAuto}, system); cfg == nil || cfg.Port != 443 {
		t.Errorf("portless https proxy URL must default to port 443, got %+v", cfg)
	}
}

func TestResolveAutoWithoutSystemProxy(t *testing.T) {
	system := func() (*url.URL, error) { return nil, nil }
	if cfg := Resolve(Preferences{UseProxy: true, Mode: ModeAuto}, system); cfg != nil {
		t.Errorf("no system proxy must soft-fail to nil, got %+v", cfg)
	}

	system = func() (*url.URL, error) { return nil, errors.New("lookup failed") }
	if cfg := Resolve(Preferences{UseProxy: true, Mode: ModeAuto}, system); cfg != nil {
		t.Errorf("system lookup failure must soft-fail to nil, got %+v", cfg)
	}
}

func TestResolveManual(t *testing.T) {
	prefs := Preferences{
		UseProxy: true,
		Mode:     ModeManual,
		Type:     "socks5",
		Hostname: "proxy.local",
		Port:     1080,
		Username: "user",
		Password: "pass",
	}
	cfg := Resolve(prefs, nil)
	if cfg == nil {
		t.Fatal("Expected a config")
	}
	if cfg.Type != TypeSOCKS5 || cfg.Hostname != "proxy.local" || cfg.Port != 1080 {
		t.Errorf("Unexpected config %+v", cfg)
	}
	if cfg.Username != "user" || cfg.Password != "pass" {
		t.Error("manual credentials should be carried when both are set")
	}
}

func TestResolveCredentialPairing(t *testing.T) {
	base := Preferences{
		UseProxy: true,
		Mode:     ModeManual,
		Type:     "http",
		Hostname: "proxy.local",
		Port:     3128,
	}

	withUser := base
	withUser.Username = "user"
	if cfg := Resolve(withUser, nil); cfg.Username != "" || cfg.Password != "" {
		t.Error("username without password must clear both credential fields")
	}

	withPass := base
	withPass.Password = "pass"
	if cfg := Resolve(withPass, nil); cfg.Username != "" || cfg.Password != "" {
		t.Error("password without username must clear both credential fields")
	}
}

func TestResolveUnknownTypeDefaultsToHTTP(t *testing.T) {
	prefs := Preferences{
		UseProxy: true,
		Mode:     ModeManual,
		Type:     "socks6",
		Hostname: "proxy.local",
		Port:     3128,
	}
	cfg := Resolve(prefs, nil)
	if cfg == nil || cfg.Type != TypeHTTP {
		t.Errorf("unrecognized type tag must default to HTTP, got %+v", cfg)
	}
}

func TestConfigURL(t *testing.T) {
	cfg := &Config{Type: TypeSOCKS5, Hostname: "proxy.local", Port: 1080, Username: "u", Password: "p"}
	u := cfg.URL()
	if u.String() != "socks5://u:p@proxy.local:1080" {
		t.Errorf("Unexpected URL %s", u)
	}

	cfg = &Config{Type: TypeHTTP, Hostname: "10.0.0.1", Port: 8080}
	if got := cfg.URL().String(); got != "http://10.0.0.1:8080" {
		t.Errorf("Unexpected URL %s", got)
	}
}
