package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/p2pmesh/internal/negotiation"
	"github.com/1ureka/p2pmesh/internal/util"
)

// NewFactory returns a negotiation.ConnectionFactory that creates pion
// PeerConnections sharing one API instance. Pion's internal logging is
// routed through the pterm logger. With no ICE servers only host candidates
// are gathered.
func NewFactory(iceServers []string) negotiation.ConnectionFactory {
	se := webrtc.SettingEngine{LoggerFactory: util.PionLoggerFactory{}}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}

	return func(peerID string) (negotiation.Connection, error) {
		pc, err := api.NewPeerConnection(config)
		if err != nil {
			return nil, err
		}
		util.LogDebug("[%s] PeerConnection created", peerID)
		return newConnection(peerID, pc), nil
	}
}

// newDataChannel creates a pre-negotiated, ordered DataChannel on the given
// PeerConnection. Negotiated mode with a shared id lets both sides create
// the channel independently without relying on OnDataChannel.
func newDataChannel(pc *webrtc.PeerConnection, label string, id uint16) (*webrtc.DataChannel, error) {
	negotiated := true

	return pc.CreateDataChannel(label, &webrtc.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
	})
}
