// Package signaling connects the negotiation core to the WebSocket relay:
// the wire message format, a relay client, and the bridge translating
// between relay messages and coordinator events.
package signaling

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Action identifies the kind of relay payload.
type Action string

const (
	ActionOpen  Action = "open"
	ActionClose Action = "close"
	ActionSDP   Action = "sdp"
	ActionICE   Action = "ice"
)

// Connection is one roster entry of an open payload.
type Connection struct {
	PeerID   string `json:"peerId"`
	PeerType string `json:"peerType,omitempty"`
	BePolite *bool  `json:"bePolite,omitempty"`
}

// Payload is the body of a relay message.
type Payload struct {
	Action      Action                     `json:"action"`
	Connections []Connection               `json:"connections,omitempty"`
	BePolite    bool                       `json:"bePolite,omitempty"`
	SDP         *webrtc.SessionDescription `json:"sdp,omitempty"`
	ICE         *webrtc.ICECandidateInit   `json:"ice,omitempty"`
}

// MarshalJSON always writes the ice key for ice payloads, since a null
// candidate is the end-of-candidates marker.
func (p Payload) MarshalJSON() ([]byte, error) {
	type alias Payload
	if p.Action != ActionICE {
		return json.Marshal(alias(p))
	}
	return json.Marshal(struct {
		alias
		ICE *webrtc.ICECandidateInit `json:"ice"`
	}{alias(p), p.ICE})
}

// Message is the JSON envelope exchanged with the relay. Peers fill To; the
// relay stamps From before forwarding.
type Message struct {
	From    string  `json:"from,omitempty"`
	To      string  `json:"to,omitempty"`
	Payload Payload `json:"payload"`
}
