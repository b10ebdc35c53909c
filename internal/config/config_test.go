package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mesh.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, `
peer:
  relayUrl: wss://relay.example.com/ws
  peerType: laptop
  dataChannelId: 4
debug: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Peer.RelayURL != "wss://relay.example.com/ws" || cfg.Peer.PeerType != "laptop" || cfg.Peer.DataChannelID != 4 {
		t.Fatalf("peer = %+v", cfg.Peer)
	}
	if !cfg.Debug {
		t.Fatal("debug not loaded")
	}
	if !cfg.Peer.EnableDataChannel || cfg.Peer.DataChannelLabel != "mesh" {
		t.Fatalf("data channel defaults lost: %+v", cfg.Peer)
	}
	if !slices.Equal(cfg.Peer.ICEServers, DefaultICEServers) {
		t.Fatalf("ICE servers = %v, want defaults", cfg.Peer.ICEServers)
	}
	if cfg.Relay.Listen != ":8080" {
		t.Fatalf("listen = %q, want :8080", cfg.Relay.Listen)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
peer:
  iceServers: ["turn:turn.example.com:3478"]
  enableDataChannel: false
relay:
  listen: 127.0.0.1:9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !slices.Equal(cfg.Peer.ICEServers, []string{"turn:turn.example.com:3478"}) {
		t.Fatalf("ICE servers = %v", cfg.Peer.ICEServers)
	}
	if cfg.Peer.EnableDataChannel {
		t.Fatal("enableDataChannel: false ignored")
	}
	if cfg.Relay.Listen != "127.0.0.1:9000" {
		t.Fatalf("listen = %q", cfg.Relay.Listen)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load of a missing file succeeded")
	}
	if _, err := Load(writeConfig(t, "peer: [not, a, map]")); err == nil {
		t.Fatal("Load of malformed YAML succeeded")
	}
}

func TestDefaultDoesNotShareICEServers(t *testing.T) {
	cfg := Default()
	cfg.Peer.ICEServers[0] = "stun:changed"
	if DefaultICEServers[0] == "stun:changed" {
		t.Fatal("Default aliases DefaultICEServers")
	}
}

func TestValidatePeer(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing relay", func(c *Config) { c.Peer.RelayURL = "" }, true},
		{"relay without host", func(c *Config) { c.Peer.RelayURL = "wss:///ws" }, true},
		{"empty label", func(c *Config) { c.Peer.DataChannelLabel = "" }, true},
		{"empty label without channel", func(c *Config) {
			c.Peer.DataChannelLabel = ""
			c.Peer.EnableDataChannel = false
		}, false},
		{"bad ICE server", func(c *Config) { c.Peer.ICEServers = []string{"not a url"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Peer.RelayURL = "wss://relay.example.com/ws"
			tt.mutate(&cfg)

			err := cfg.ValidatePeer()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatePeer() = %v, wantErr %t", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRelay(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateRelay(); err != nil {
		t.Fatalf("default relay config invalid: %v", err)
	}
	cfg.Relay.Listen = ""
	if err := cfg.ValidateRelay(); err == nil {
		t.Fatal("empty listen address accepted")
	}
}
