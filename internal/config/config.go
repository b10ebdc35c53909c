// Package config holds the configuration shared by the mesh peer and relay
// binaries. Values come from an optional YAML file; command-line flags in
// cmd/ override them.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultICEServers are the STUN servers used when none are configured.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config is the root of the YAML file.
type Config struct {
	Peer  Peer  `yaml:"peer"`
	Relay Relay `yaml:"relay"`
	Debug bool  `yaml:"debug"`
}

// Peer configures one mesh participant.
type Peer struct {
	RelayURL          string   `yaml:"relayUrl"`   // WebSocket URL of the relay
	PeerID            string   `yaml:"peerId"`     // empty: the peer generates one
	PeerType          string   `yaml:"peerType"`   // informational, forwarded to other peers
	ICEServers        []string `yaml:"iceServers"` // STUN/TURN URLs
	EnableDataChannel bool     `yaml:"enableDataChannel"`
	DataChannelID     uint16   `yaml:"dataChannelId"`
	DataChannelLabel  string   `yaml:"dataChannelLabel"`
}

// Relay configures the signaling relay.
type Relay struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Peer: Peer{
			ICEServers:        append([]string(nil), DefaultICEServers...),
			EnableDataChannel: true,
			DataChannelLabel:  "mesh",
		},
		Relay: Relay{Listen: ":8080"},
	}
}

// Load reads a YAML file on top of Default. Keys missing from the file keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ValidatePeer checks the fields a mesh peer needs.
func (c Config) ValidatePeer() error {
	var errs []error

	if c.Peer.RelayURL == "" {
		errs = append(errs, errors.New("relay URL is required"))
	} else if u, err := url.Parse(c.Peer.RelayURL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid relay URL: %s", c.Peer.RelayURL))
	}
	if c.Peer.EnableDataChannel && c.Peer.DataChannelLabel == "" {
		errs = append(errs, errors.New("data channel label must not be empty"))
	}
	for _, s := range c.Peer.ICEServers {
		if u, err := url.Parse(s); err != nil || u.Scheme == "" {
			errs = append(errs, fmt.Errorf("invalid ICE server: %s", s))
		}
	}
	return errors.Join(errs...)
}

// ValidateRelay checks the fields the relay needs.
func (c Config) ValidateRelay() error {
	if c.Relay.Listen == "" {
		return errors.New("relay listen address is required")
	}
	return nil
}
