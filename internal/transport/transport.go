// Package transport adapts pion PeerConnections to the negotiation core.
package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/p2pmesh/internal/negotiation"
	"github.com/1ureka/p2pmesh/internal/util"
)

// Compile-time interface check.
var _ negotiation.Connection = (*Connection)(nil)

// Connection wraps a single PeerConnection for one remote peer.
//
// Pion has no restartIce(); RestartICE instead marks the next offer as an
// ICE restart and raises negotiation-needed, which is what a browser does.
type Connection struct {
	peerID string
	pc     *webrtc.PeerConnection

	mu                  sync.Mutex
	restartPending      bool
	onNegotiationNeeded func()
	channels            []*DataChannel
}

func newConnection(peerID string, pc *webrtc.PeerConnection) *Connection {
	c := &Connection{peerID: peerID, pc: pc}

	// Informational only.
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("[%s] PeerConnection state: %s", peerID, state.String())
	})

	return c
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer, requesting new ICE credentials if a
// restart is pending.
func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	c.mu.Lock()
	restart := c.restartPending
	c.restartPending = false
	c.mu.Unlock()

	if restart {
		return c.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	}
	return c.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (c *Connection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP. Pion has no rollback transition
// from any signaling state, so a rollback is refused with
// negotiation.ErrRollbackUnsupported before it reaches the engine.
func (c *Connection) SetLocalDescription(sdp webrtc.SessionDescription) error {
	if sdp.Type == webrtc.SDPTypeRollback {
		return fmt.Errorf("%w (state %s)", negotiation.ErrRollbackUnsupported, c.pc.SignalingState())
	}
	return c.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (c *Connection) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sdp)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (c *Connection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

// RestartICE schedules an ICE restart for the next offer. A polite session
// never offers, so on its side the flag stays set until the connection closes.
func (c *Connection) RestartICE() error {
	if c.pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return webrtc.ErrConnectionClosed
	}

	c.mu.Lock()
	c.restartPending = true
	fn := c.onNegotiationNeeded
	c.mu.Unlock()

	if fn != nil {
		go fn()
	}
	return nil
}

// SignalingState returns the current signaling state.
func (c *Connection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

// ICEConnectionState returns the current ICE connection state.
func (c *Connection) ICEConnectionState() webrtc.ICEConnectionState {
	return c.pc.ICEConnectionState()
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// OnNegotiationNeeded registers the negotiation-needed callback.
func (c *Connection) OnNegotiationNeeded(fn func()) {
	c.mu.Lock()
	c.onNegotiationNeeded = fn
	c.mu.Unlock()
	c.pc.OnNegotiationNeeded(fn)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (c *Connection) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			fn(nil)
			return
		}
		init := candidate.ToJSON()
		fn(&init)
	})
}

// OnICEConnectionStateChange registers the ICE state callback.
func (c *Connection) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	c.pc.OnICEConnectionStateChange(fn)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// CreateDataChannel creates a negotiated DataChannel with a fixed id.
func (c *Connection) CreateDataChannel(label string, id uint16) (negotiation.DataChannel, error) {
	raw, err := newDataChannel(c.pc, label, id)
	if err != nil {
		return nil, err
	}
	dc := newChannel(raw)

	c.mu.Lock()
	c.channels = append(c.channels, dc)
	c.mu.Unlock()
	return dc, nil
}

// Close shuts down every DataChannel and the PeerConnection.
func (c *Connection) Close() error {
	c.mu.Lock()
	channels := c.channels
	c.channels = nil
	c.mu.Unlock()

	errs := make([]error, 0, len(channels)+1)
	for _, dc := range channels {
		errs = append(errs, dc.Close())
	}
	errs = append(errs, c.pc.Close())
	return errors.Join(errs...)
}
