package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if !cfg.Browser.Headless {
		t.Error("headless should default to true")
	}
	if cfg.Navigation.SettleDelay != 2*time.Second {
		t.Errorf("settle delay = %v, want 2s", cfg.Navigation.SettleDelay)
	}
	if len(cfg.Navigation.SlowHosts) != 1 || cfg.Navigation.SlowHosts[0] != "github.com" {
		t.Errorf("slow hosts = %v, want [github.com]", cfg.Navigation.SlowHosts)
	}
	if cfg.Login.PollInterval != 3*time.Second || cfg.Login.Ceiling != 300*time.Second {
		t.Errorf("login poll/ceiling = %v/%v", cfg.Login.PollInterval, cfg.Login.Ceiling)
	}
	if cfg.Login.SessionPath != "login_state.json" {
		t.Errorf("session path = %q", cfg.Login.SessionPath)
	}
	if cfg.History.MaxItems != 200 {
		t.Errorf("history max = %d, want 200", cfg.History.MaxItems)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HARVEST_HEADLESS", "false")
	t.Setenv("HARVEST_LOGIN_CEILING", "9s")
	t.Setenv("HARVEST_SLOW_HOSTS", "github.com, gitlab.com ,")
	t.Setenv("HARVEST_RATE_RPS", "2.5")
	t.Setenv("HARVEST_PUBLIC_URL", "https://harvest.example/")

	cfg := Load()

	if cfg.Browser.Headless {
		t.Error("HARVEST_HEADLESS=false not applied")
	}
	if cfg.Login.Ceiling != 9*time.Second {
		t.Errorf("ceiling = %v, want 9s", cfg.Login.Ceiling)
	}
	if got := cfg.Navigation.SlowHosts; len(got) != 2 || got[1] != "gitlab.com" {
		t.Errorf("slow hosts = %v", got)
	}
	if cfg.RateLimit.RequestsPerSecond != 2.5 {
		t.Errorf("rps = %v", cfg.RateLimit.RequestsPerSecond)
	}
	if cfg.Webhook.PublicURL != "https://harvest.example" {
		t.Errorf("public url = %q, want trailing slash trimmed", cfg.Webhook.PublicURL)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("HARVEST_PORT", "not-a-number")
	t.Setenv("HARVEST_SETTLE_DELAY", "soon")

	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want fallback 8080", cfg.Server.Port)
	}
	if cfg.Navigation.SettleDelay != 2*time.Second {
		t.Errorf("settle = %v, want fallback 2s", cfg.Navigation.SettleDelay)
	}
}
