package negotiation

import "github.com/pion/webrtc/v4"

// EventKind identifies an inbound signaling event.
type EventKind string

const (
	EventOpen  EventKind = "open"  // roster of peers to connect to
	EventClose EventKind = "close" // the sender left the mesh
	EventSDP   EventKind = "sdp"   // remote session description
	EventICE   EventKind = "ice"   // remote ICE candidate, nil for end-of-candidates
)

// PeerInfo names one member of an open roster.
type PeerInfo struct {
	ID   string
	Type string

	// Polite overrides Event.Polite for this peer when set.
	Polite *bool
}

// Event is an inbound signaling event, already decoded from the relay's
// wire format.
type Event struct {
	Kind EventKind

	// EventOpen
	Connections []PeerInfo
	Polite      bool

	// EventSDP
	Description *webrtc.SessionDescription

	// EventICE
	Candidate *webrtc.ICECandidateInit
}

// sessionEventKind enumerates everything that can move a PeerSession.
type sessionEventKind uint8

const (
	eventNegotiationNeeded sessionEventKind = iota + 1
	eventRemoteDescription
	eventRemoteCandidate
	eventLocalCandidate
	eventICEStateChange
	eventBarrier
)

func (k sessionEventKind) String() string {
	switch k {
	case eventNegotiationNeeded:
		return "negotiation-needed"
	case eventRemoteDescription:
		return "remote-description"
	case eventRemoteCandidate:
		return "remote-candidate"
	case eventLocalCandidate:
		return "local-candidate"
	case eventICEStateChange:
		return "ice-state-change"
	case eventBarrier:
		return "barrier"
	default:
		return "unknown"
	}
}

type sessionEvent struct {
	kind        sessionEventKind
	gen         uint64 // engine connection that raised it; 0 for relay events
	description webrtc.SessionDescription
	candidate   *webrtc.ICECandidateInit
	iceState    webrtc.ICEConnectionState
	reached     chan struct{} // eventBarrier
}
