package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != DefaultListenAddr {
		t.Fatalf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Server.SendQueue != DefaultSendQueue || cfg.Server.PingInterval != DefaultPingInterval {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if len(cfg.WebRTC.ICEServers) != 1 || cfg.WebRTC.ICEServers[0] != DefaultSTUNServer {
		t.Fatalf("ice servers = %v", cfg.WebRTC.ICEServers)
	}
	if cfg.Summary.Store != "memory" || cfg.Peer.Engine != "pion" {
		t.Fatalf("unexpected defaults %+v %+v", cfg.Summary, cfg.Peer)
	}
	if cfg.Summary.SaveTimeout != DefaultSaveTimeout {
		t.Fatalf("save timeout = %s", cfg.Summary.SaveTimeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGENTCALL_SERVER_LISTEN", ":9999")
	t.Setenv("AGENTCALL_PEER_ROLE", "agent")
	t.Setenv("AGENTCALL_SERVER_SHUTDOWN_TIMEOUT", "2s")
	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":9999" {
		t.Fatalf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Peer.Role != "agent" {
		t.Fatalf("role = %q", cfg.Peer.Role)
	}
	if cfg.Server.ShutdownTimeout != 2*time.Second {
		t.Fatalf("shutdown timeout = %s", cfg.Server.ShutdownTimeout)
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentcall.yaml")
	body := `
server:
  listen: ":4000"
  allowed_origins: ["https://app.example.com"]
summary:
  store: redis
redis:
  addr: "redis:6379"
  db: 2
webrtc:
  ice_servers: ["stun:stun.example.com:3478", "turn:turn.example.com:3478"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":4000" || len(cfg.Server.AllowedOrigins) != 1 {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Summary.Store != "redis" || cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("unexpected store config %+v %+v", cfg.Summary, cfg.Redis)
	}
	if len(cfg.WebRTC.ICEServers) != 2 {
		t.Fatalf("ice servers = %v", cfg.WebRTC.ICEServers)
	}
}

func TestMissingConfigFile(t *testing.T) {
	if _, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	base, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cases := map[string]func(*Config){
		"peer.role":         func(c *Config) { c.Peer.Role = "observer" },
		"log.format":        func(c *Config) { c.Log.Format = "xml" },
		"summary.store":     func(c *Config) { c.Summary.Store = "s3" },
		"save_timeout":      func(c *Config) { c.Summary.SaveTimeout = 0 },
		"shutdown_timeout":  func(c *Config) { c.Server.ShutdownTimeout = 0 },
		"idle_timeout":      func(c *Config) { c.Server.IdleTimeout = c.Server.PingInterval },
		"peer.engine":       func(c *Config) { c.Peer.Engine = "gstreamer" },
		"redis.addr":        func(c *Config) { c.Summary.Store = "redis"; c.Redis.Addr = "" },
		"server.send_queue": func(c *Config) { c.Server.SendQueue = 0 },
		"max_message_bytes": func(c *Config) { c.Server.MaxMessageBytes = -1 },
		"server.listen":     func(c *Config) { c.Server.Listen = " " },
	}
	for want, mutate := range cases {
		cfg := base
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("%s: expected validation error, got %v", want, err)
		}
	}
}
