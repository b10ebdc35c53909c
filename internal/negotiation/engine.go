package negotiation

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

// ErrRollbackUnsupported is returned by engines that cannot roll back a
// pending description. A polite session then replaces the connection
// through its ConnectionFactory before applying the peer's offer.
var ErrRollbackUnsupported = errors.New("engine cannot roll back a pending description")

// Connection is what a PeerSession needs from the media/transport engine.
// Session descriptions and candidates are passed through untouched.
//
// Callbacks may fire on any goroutine; the session only enqueues from them.
type Connection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	// RestartICE requests new ICE credentials on the next negotiation.
	RestartICE() error

	// CreateDataChannel opens a pre-negotiated channel with a fixed id, so
	// both ends can create it without an in-band announcement.
	CreateDataChannel(label string, id uint16) (DataChannel, error)

	SignalingState() webrtc.SignalingState
	ICEConnectionState() webrtc.ICEConnectionState

	OnNegotiationNeeded(fn func())
	// OnICECandidate receives nil once gathering is complete.
	OnICECandidate(fn func(*webrtc.ICECandidateInit))
	OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState))

	Close() error
}

// DataChannel is the application-facing side of a negotiated channel.
type DataChannel interface {
	Label() string
	OnOpen(fn func())
	OnMessage(fn func(webrtc.DataChannelMessage))
	SendText(text string) error
	Close() error
}

// ConnectionFactory creates a fresh engine connection for a remote peer.
type ConnectionFactory func(peerID string) (Connection, error)

// Outbound carries a session's negotiation messages to the relay.
type Outbound interface {
	SendDescription(peerID string, desc webrtc.SessionDescription) error
	// SendCandidate sends nil as the end-of-candidates marker.
	SendCandidate(peerID string, candidate *webrtc.ICECandidateInit) error
}

// DataChannelHandler is invoked once for every data channel a session
// creates. Errors and panics are logged and never reach negotiation.
type DataChannelHandler func(ourID, ourType string, session *Session) error
