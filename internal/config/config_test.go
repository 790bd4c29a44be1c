package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHubConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.yaml")
	data := []byte("port: 9000\nlog_level: debug\nmetrics_addr: \":9100\"\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("BRIDGE_METRICS_ADDR", ":9200")

	var cfg HubConfig
	cfg.SetDefaults()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.ApplyEnv()

	if cfg.Port != 9000 {
		t.Fatalf("port = %d; want file value 9000", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q; want debug", cfg.LogLevel)
	}
	if cfg.MetricsAddr != ":9200" {
		t.Fatalf("metrics addr = %q; env should override file", cfg.MetricsAddr)
	}
	if cfg.HeartbeatExpiry != 15*time.Second {
		t.Fatalf("heartbeat expiry = %v; want default", cfg.HeartbeatExpiry)
	}
}

func TestHubConfigDefaults(t *testing.T) {
	var cfg HubConfig
	cfg.SetDefaults()
	if cfg.Port != 8390 {
		t.Fatalf("port = %d; want 8390", cfg.Port)
	}
	if cfg.MetricsAddr != ":8390" {
		t.Fatalf("metrics addr = %q; want :8390", cfg.MetricsAddr)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestAgentConfigEnv(t *testing.T) {
	t.Setenv("BRIDGE_HUB_URL", "http://hub:9999")
	t.Setenv("BRIDGE_MAX_RECONNECT_ATTEMPTS", "5")
	t.Setenv("BRIDGE_RECONNECT_DELAY", "250ms")

	var cfg AgentConfig
	cfg.SetDefaults()
	cfg.ApplyEnv()

	if cfg.HubURL != "http://hub:9999" {
		t.Fatalf("hub url = %q", cfg.HubURL)
	}
	if cfg.MaxReconnectAttempts != 5 {
		t.Fatalf("max attempts = %d; want 5", cfg.MaxReconnectAttempts)
	}
	if cfg.ReconnectDelay != 250*time.Millisecond {
		t.Fatalf("delay = %v; want 250ms", cfg.ReconnectDelay)
	}
	if cfg.Kind != "page" {
		t.Fatalf("kind = %q; want default page", cfg.Kind)
	}
}
