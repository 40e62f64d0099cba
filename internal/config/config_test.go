package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "GROWTUBE_HTTP_ADDR", "TOKEN", "GROWTUBE_TOKEN", "GROWTUBE_PREFIX",
		"GROWTUBE_LOG_CHANNEL", "GROWTUBE_DEBUG", "GROWTUBE_STORE", "DATABASE_URL",
		"REDIS_URL", "GROWTUBE_MARKET_CHANNEL", "GROWTUBE_INVITE_TIMEOUT",
		"GROWTUBE_CONFIRM_TIMEOUT", "GROWTUBE_RECONCILE_EVERY", "GROWTUBE_OWNERS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadBotDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOKEN", "abc")
	t.Setenv("GROWTUBE_STORE", "memory")

	cfg, err := LoadBotFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Prefix != "g!" || cfg.HTTPAddr != ":8080" || cfg.MarketChannel != "market" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.InviteTimeout != 30*time.Second || cfg.ConfirmTimeout != time.Minute {
		t.Fatalf("unexpected timeouts: %+v", cfg)
	}
}

func TestLoadBotOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROWTUBE_TOKEN", "xyz")
	t.Setenv("DATABASE_URL", "postgres://localhost/growtube")
	t.Setenv("PORT", "9000")
	t.Setenv("GROWTUBE_OWNERS", "1, 2,3")
	t.Setenv("GROWTUBE_INVITE_TIMEOUT", "5s")
	t.Setenv("GROWTUBE_CONFIRM_TIMEOUT", "nonsense")

	cfg, err := LoadBotFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Token != "xyz" || cfg.HTTPAddr != ":9000" || cfg.Store != StorePostgres {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Owners) != 3 || cfg.Owners[2] != 3 {
		t.Fatalf("owners %v", cfg.Owners)
	}
	if cfg.InviteTimeout != 5*time.Second || cfg.ConfirmTimeout != time.Minute {
		t.Fatalf("timeouts %v %v", cfg.InviteTimeout, cfg.ConfirmTimeout)
	}
}

func TestLoadBotErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing token", env: map[string]string{"GROWTUBE_STORE": "memory"}},
		{name: "postgres without url", env: map[string]string{"TOKEN": "t"}},
		{name: "unknown store", env: map[string]string{"TOKEN": "t", "GROWTUBE_STORE": "sqlite"}},
		{name: "bad owner", env: map[string]string{"TOKEN": "t", "GROWTUBE_STORE": "memory", "GROWTUBE_OWNERS": "me"}},
		{name: "tiny reconcile", env: map[string]string{"TOKEN": "t", "GROWTUBE_STORE": "memory", "GROWTUBE_RECONCILE_EVERY": "10ms"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadBotFromEnv(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadWatch(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROWTUBE_API_BASE_URL", "http://bot.local:8080/")
	cfg := LoadWatchFromEnv()
	if cfg.APIBaseURL != "http://bot.local:8080" {
		t.Fatalf("base url %q", cfg.APIBaseURL)
	}
	if cfg.RedisURL == "" || cfg.MarketChannel != "market" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestDatabaseURLFromEnv(t *testing.T) {
	clearEnv(t)
	if _, err := DatabaseURLFromEnv(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
	t.Setenv("DATABASE_URL", " postgres://localhost/growtube ")
	url, err := DatabaseURLFromEnv()
	if err != nil || url != "postgres://localhost/growtube" {
		t.Fatalf("got %q, %v", url, err)
	}
}
