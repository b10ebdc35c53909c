// Meshpeer: CLI entry point for one member of a WebRTC full mesh.
//
// The peer joins a signaling relay, negotiates a PeerConnection with every
// other member using perfect negotiation, and exchanges greetings over a
// negotiated DataChannel. Settings come from an optional YAML file
// (--config) and can be overridden by flags (--relay, --id, --type, --ice,
// --datachannel, --channel-id, --channel-label).
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"
	flag "github.com/spf13/pflag"

	"github.com/1ureka/p2pmesh/internal/config"
	"github.com/1ureka/p2pmesh/internal/negotiation"
	"github.com/1ureka/p2pmesh/internal/signaling"
	"github.com/1ureka/p2pmesh/internal/transport"
	"github.com/1ureka/p2pmesh/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	configPath := flag.StringP("config", "c", "", "Path to a YAML config file")
	relayURL := flag.StringP("relay", "r", "", "Relay WebSocket URL (e.g. wss://relay.example.com)")
	peerID := flag.String("id", "", "Peer id announced to the mesh (random if empty)")
	peerType := flag.String("type", "", "Peer type announced to the mesh")
	iceServers := flag.StringSlice("ice", nil, "STUN/TURN server URLs")
	dataChannel := flag.Bool("datachannel", true, "Open a negotiated DataChannel with every peer")
	channelID := flag.Uint16("channel-id", 0, "Negotiated DataChannel id")
	channelLabel := flag.String("channel-label", "mesh", "Negotiated DataChannel label")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Explicit flags win over the file.
	if flag.CommandLine.Changed("relay") {
		cfg.Peer.RelayURL = *relayURL
	}
	if flag.CommandLine.Changed("id") {
		cfg.Peer.PeerID = *peerID
	}
	if flag.CommandLine.Changed("type") {
		cfg.Peer.PeerType = *peerType
	}
	if flag.CommandLine.Changed("ice") {
		cfg.Peer.ICEServers = *iceServers
	}
	if flag.CommandLine.Changed("datachannel") {
		cfg.Peer.EnableDataChannel = *dataChannel
	}
	if flag.CommandLine.Changed("channel-id") {
		cfg.Peer.DataChannelID = *channelID
	}
	if flag.CommandLine.Changed("channel-label") {
		cfg.Peer.DataChannelLabel = *channelLabel
	}
	if *debugMode {
		cfg.Debug = true
	}

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Meshpeer — v%s", version))
	pterm.Println()

	// No relay configured → ask for one.
	if cfg.Peer.RelayURL == "" {
		cfg.Peer.RelayURL = askURL()
	}
	if cfg.Peer.PeerID == "" {
		cfg.Peer.PeerID = uuid.NewString()
	}

	if err := cfg.ValidatePeer(); err != nil {
		util.LogError("invalid configuration: %v", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg.Peer); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("left the mesh")
}

// run joins the mesh and blocks until the relay connection ends.
func run(ctx context.Context, p config.Peer) error {
	wsURL, err := relayEndpoint(p.RelayURL, p.PeerID, p.PeerType)
	if err != nil {
		return err
	}

	client, err := signaling.Dial(ctx, wsURL)
	if err != nil {
		return err
	}

	bridge := signaling.NewBridge(client)
	coord := negotiation.NewCoordinator(ctx, transport.NewFactory(p.ICEServers), bridge, negotiation.Options{
		LocalID:            p.PeerID,
		LocalType:          p.PeerType,
		EnableDataChannel:  p.EnableDataChannel,
		DataChannelID:      p.DataChannelID,
		DataChannelLabel:   p.DataChannelLabel,
		DataChannelHandler: greet,
	})
	bridge.Bind(coord)

	util.StartStatsReporter(ctx, 5*time.Second)
	util.LogSuccess("joined the mesh as %s", p.PeerID)

	if err := client.Run(ctx); err != nil {
		return fmt.Errorf("relay connection lost: %w", err)
	}
	return nil
}

// greet sends a hello once the channel opens and logs everything received.
func greet(ourID, ourType string, s *negotiation.Session) error {
	dc := s.DataChannel()
	peer := s.PeerID()

	dc.OnOpen(func() {
		util.LogSuccess("[%s] DataChannel %q open", peer, dc.Label())
		if err := dc.SendText(fmt.Sprintf("hello from %s (%s)", ourID, ourType)); err != nil {
			util.LogWarning("[%s] failed to send greeting: %v", peer, err)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		util.LogInfo("[%s] %s", peer, string(msg.Data))
	})
	return nil
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// relayEndpoint validates a raw relay URL and returns the WebSocket endpoint
// carrying this peer's identity.
func relayEndpoint(raw, id, peerType string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid relay URL: %s", raw)
	}

	scheme := "wss"
	switch u.Scheme {
	case "ws", "wss":
		scheme = u.Scheme
	case "http":
		scheme = "ws"
	}

	q := url.Values{}
	q.Set("id", id)
	if peerType != "" {
		q.Set("type", peerType)
	}

	endpoint := url.URL{Scheme: scheme, Host: u.Host, Path: "/ws", RawQuery: q.Encode()}
	return endpoint.String(), nil
}

// askURL prompts the user for a relay URL until a valid one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Relay URL (e.g. wss://relay.example.com)").
			Show()

		if _, err := relayEndpoint(raw, "probe", ""); err == nil {
			pterm.Println()
			return strings.TrimSpace(raw)
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}
