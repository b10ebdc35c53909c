package signaling

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/p2pmesh/internal/negotiation"
	"github.com/1ureka/p2pmesh/internal/util"
)

// Relay is the part of the relay client the bridge depends on.
type Relay interface {
	SendTo(peerID string, p Payload) error
	OnMessage(fn func(Message))
	OnDisconnect(fn func(error))
}

// Dispatcher receives translated relay events.
type Dispatcher interface {
	Dispatch(from string, ev negotiation.Event)
	RemoveAll() error
}

// Compile-time interface checks.
var (
	_ Relay                = (*Client)(nil)
	_ Dispatcher           = (*negotiation.Coordinator)(nil)
	_ negotiation.Outbound = (*Bridge)(nil)
)

// Bridge translates between relay messages and coordinator events in both
// directions.
type Bridge struct {
	relay Relay
}

// NewBridge creates a bridge sending through relay. Call Bind to start
// feeding inbound messages to a dispatcher.
func NewBridge(relay Relay) *Bridge {
	return &Bridge{relay: relay}
}

// Bind routes inbound relay messages to d and tears every session down when
// the relay connection is lost.
func (b *Bridge) Bind(d Dispatcher) {
	b.relay.OnMessage(func(msg Message) {
		d.Dispatch(msg.From, toEvent(msg.Payload))
	})
	b.relay.OnDisconnect(func(err error) {
		if err != nil {
			util.LogWarning("relay connection lost: %v", err)
		}
		if err := d.RemoveAll(); err != nil {
			util.LogWarning("error while tearing down sessions: %v", err)
		}
	})
}

// SendDescription implements negotiation.Outbound.
func (b *Bridge) SendDescription(peerID string, desc webrtc.SessionDescription) error {
	return b.relay.SendTo(peerID, Payload{Action: ActionSDP, SDP: &desc})
}

// SendCandidate implements negotiation.Outbound.
func (b *Bridge) SendCandidate(peerID string, candidate *webrtc.ICECandidateInit) error {
	return b.relay.SendTo(peerID, Payload{Action: ActionICE, ICE: candidate})
}

// toEvent converts a relay payload into a coordinator event. Unknown actions
// are passed through for the coordinator to reject.
func toEvent(p Payload) negotiation.Event {
	ev := negotiation.Event{
		Kind:        negotiation.EventKind(p.Action),
		Polite:      p.BePolite,
		Description: p.SDP,
		Candidate:   p.ICE,
	}
	for _, c := range p.Connections {
		ev.Connections = append(ev.Connections, negotiation.PeerInfo{
			ID:     c.PeerID,
			Type:   c.PeerType,
			Polite: c.BePolite,
		})
	}
	return ev
}
