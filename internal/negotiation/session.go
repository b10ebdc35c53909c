package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/p2pmesh/internal/util"
)

// ErrSessionClosed is returned by operations on a removed session.
var ErrSessionClosed = errors.New("session closed")

// State is the diagnostic connection state of a session. It is derived from
// engine callbacks and never consulted by collision handling.
type State string

const (
	StateNew         State = "new"
	StateNegotiating State = "negotiating"
	StateConnected   State = "connected"
	StateFailed      State = "failed"
	StateClosed      State = "closed"
)

// Session holds the perfect-negotiation state for one remote peer and the
// engine connection bound to it.
//
// All transitions run on a single goroutine fed by an event queue, so
// descriptions and candidates for one peer are applied strictly in arrival
// order while different peers progress independently.
type Session struct {
	peerID   string
	peerType string
	polite   bool

	cfg sessionConfig
	out Outbound

	// conn and channel are replaced only on the run goroutine, under mu.
	conn    Connection
	channel DataChannel

	queue  *eventQueue
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	makingOffer atomic.Bool
	ignoreOffer atomic.Bool

	// owned by the run goroutine
	gen                 uint64
	endOfCandidatesSent bool

	mu    sync.RWMutex
	state State

	closeOnce sync.Once
	closeErr  error
}

// sessionConfig carries the construction-time options a session needs.
type sessionConfig struct {
	peerID   string
	peerType string
	polite   bool

	enableDataChannel bool
	dataChannelLabel  string
	dataChannelID     uint16

	// factory rebuilds the connection when the engine cannot roll back.
	factory ConnectionFactory

	localID   string
	localType string
	handler   DataChannelHandler
}

// newSession wires the engine callbacks, optionally creates the negotiated
// data channel and starts the event loop.
func newSession(ctx context.Context, cfg sessionConfig, conn Connection, out Outbound) (*Session, error) {
	sCtx, cancel := context.WithCancel(ctx)

	s := &Session{
		peerID:   cfg.peerID,
		peerType: cfg.peerType,
		polite:   cfg.polite,
		cfg:      cfg,
		out:      out,
		conn:     conn,
		queue:    newEventQueue(),
		ctx:      sCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		gen:      1,
		state:    StateNew,
	}

	dc, err := s.attach(conn, s.gen)
	if err != nil {
		cancel()
		return nil, errors.Join(err, conn.Close())
	}
	s.channel = dc

	go s.run()

	return s, nil
}

// attach wires the callbacks of conn, tagging their events with gen, and
// creates the negotiated data channel when enabled.
func (s *Session) attach(conn Connection, gen uint64) (DataChannel, error) {
	// Callbacks must be in place before the data channel exists: creating it
	// is what raises the first negotiation-needed.
	conn.OnNegotiationNeeded(func() {
		s.queue.push(sessionEvent{kind: eventNegotiationNeeded, gen: gen})
	})
	conn.OnICECandidate(func(c *webrtc.ICECandidateInit) {
		s.queue.push(sessionEvent{kind: eventLocalCandidate, gen: gen, candidate: c})
	})
	conn.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.queue.push(sessionEvent{kind: eventICEStateChange, gen: gen, iceState: state})
	})

	if !s.cfg.enableDataChannel {
		return nil, nil
	}
	dc, err := conn.CreateDataChannel(s.cfg.dataChannelLabel, s.cfg.dataChannelID)
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	return dc, nil
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (s *Session) PeerID() string   { return s.peerID }
func (s *Session) PeerType() string { return s.peerType }
func (s *Session) Polite() bool     { return s.polite }

// DataChannel returns the negotiated channel, or nil when data channels are
// disabled. A replaced connection comes with a new channel.
func (s *Session) DataChannel() DataChannel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channel
}

// MakingOffer reports whether a local offer is being created right now.
func (s *Session) MakingOffer() bool { return s.makingOffer.Load() }

// IgnoringOffer reports whether the last remote offer was dropped due to a
// collision.
func (s *Session) IgnoringOffer() bool { return s.ignoreOffer.Load() }

// State returns the last derived connection state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SignalingState queries the engine's current signaling state.
func (s *Session) SignalingState() webrtc.SignalingState {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	return conn.SignalingState()
}

// Done is closed once the session's event loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.state == state {
		return
	}
	util.LogDebug("[%s] state %s → %s", s.peerID, s.state, state)
	s.state = state
}

// ---------------------------------------------------------------------------
// Event loop
// ---------------------------------------------------------------------------

// enqueue hands an event to the session loop. It never blocks.
func (s *Session) enqueue(ev sessionEvent) {
	s.queue.push(ev)
}

// flush blocks until every event queued before the call has been handled.
func (s *Session) flush(ctx context.Context) error {
	reached := make(chan struct{})
	s.enqueue(sessionEvent{kind: eventBarrier, reached: reached})

	select {
	case <-reached:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.queue.ready():
			for _, ev := range s.queue.drain() {
				if s.ctx.Err() != nil {
					return
				}
				s.handle(ev)
			}
		}
	}
}

func (s *Session) handle(ev sessionEvent) {
	if ev.gen != 0 && ev.gen != s.gen {
		util.LogDebug("[%s] dropping %s from a replaced connection", s.peerID, ev.kind)
		return
	}

	switch ev.kind {
	case eventNegotiationNeeded:
		s.handleNegotiationNeeded()
	case eventRemoteDescription:
		s.handleRemoteDescription(ev.description)
	case eventRemoteCandidate:
		s.handleRemoteCandidate(ev.candidate)
	case eventLocalCandidate:
		s.handleLocalCandidate(ev.candidate)
	case eventICEStateChange:
		s.handleICEStateChange(ev.iceState)
	case eventBarrier:
		close(ev.reached)
	default:
		util.LogWarning("[%s] dropping unknown session event %s", s.peerID, ev.kind)
	}
}

// ---------------------------------------------------------------------------
// Transitions
// ---------------------------------------------------------------------------

// handleNegotiationNeeded makes a local offer. Only the impolite side
// offers; the polite side waits to be offered to.
func (s *Session) handleNegotiationNeeded() {
	if s.polite {
		util.LogDebug("[%s] negotiation needed, waiting for the impolite peer to offer", s.peerID)
		return
	}

	s.makingOffer.Store(true)
	defer s.makingOffer.Store(false)

	if err := s.sendOffer(); err != nil && s.ctx.Err() == nil {
		s.reportf("failed to send offer: %v", err)
	}
}

func (s *Session) sendOffer() error {
	offer, err := s.conn.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.conn.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}

	// Removed while the engine was busy: nobody is left to talk to.
	if s.ctx.Err() != nil {
		return nil
	}

	s.setState(StateNegotiating)
	if err := s.out.SendDescription(s.peerID, offer); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	util.Stats.AddOffer()
	util.LogDebug("[%s] offer sent", s.peerID)
	return nil
}

// handleRemoteDescription applies an offer or answer from the peer,
// resolving offer collisions by role: the impolite side drops the incoming
// offer, the polite side rolls back its own and accepts.
func (s *Session) handleRemoteDescription(desc webrtc.SessionDescription) {
	isOffer := desc.Type == webrtc.SDPTypeOffer
	offerCollision := isOffer &&
		(s.makingOffer.Load() || s.conn.SignalingState() != webrtc.SignalingStateStable)

	ignore := !s.polite && offerCollision
	s.ignoreOffer.Store(ignore)
	if ignore {
		util.Stats.AddIgnoredOffer()
		util.LogDebug("[%s] offer collision, keeping our own offer", s.peerID)
		return
	}

	if err := s.applyRemoteDescription(desc, offerCollision); err != nil && s.ctx.Err() == nil {
		s.reportf("failed to apply remote %s: %v", desc.Type, err)
	}
}

func (s *Session) applyRemoteDescription(desc webrtc.SessionDescription, rollback bool) error {
	if rollback {
		err := s.conn.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
		switch {
		case errors.Is(err, ErrRollbackUnsupported):
			if err := s.replaceConnection(); err != nil {
				return fmt.Errorf("replace connection: %w", err)
			}
		case err != nil:
			return fmt.Errorf("roll back local offer: %w", err)
		default:
			util.Stats.AddRollback()
			util.LogDebug("[%s] offer collision, rolled back our offer", s.peerID)
		}
	}

	if err := s.conn.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	if desc.Type != webrtc.SDPTypeOffer {
		return nil
	}

	answer, err := s.conn.CreateAnswer()
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := s.conn.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}

	if s.ctx.Err() != nil {
		return nil
	}

	s.setState(StateNegotiating)
	if err := s.out.SendDescription(s.peerID, answer); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	util.Stats.AddAnswer()
	util.LogDebug("[%s] answer sent", s.peerID)
	return nil
}

// handleRemoteCandidate applies a trickled candidate. A nil or empty
// candidate marks the end of the peer's candidates and is not applied.
func (s *Session) handleRemoteCandidate(c *webrtc.ICECandidateInit) {
	if c == nil || c.Candidate == "" {
		util.LogDebug("[%s] remote end of candidates", s.peerID)
		return
	}

	if err := s.conn.AddICECandidate(*c); err != nil {
		// Candidates belonging to an offer we just dropped are expected to fail.
		if s.ignoreOffer.Load() {
			return
		}
		s.reportf("failed to add ICE candidate: %v", err)
		return
	}
	util.Stats.AddCandidateApplied()
}

// handleLocalCandidate forwards a gathered candidate. The nil end marker is
// sent once per gathering round.
func (s *Session) handleLocalCandidate(c *webrtc.ICECandidateInit) {
	if c == nil {
		if s.endOfCandidatesSent {
			return
		}
		s.endOfCandidatesSent = true
	} else {
		s.endOfCandidatesSent = false
	}

	if err := s.out.SendCandidate(s.peerID, c); err != nil {
		s.reportf("failed to send ICE candidate: %v", err)
		return
	}
	util.Stats.AddCandidateSent()
}

// handleICEStateChange tracks connectivity and restarts ICE on failure.
// Failure is recoverable; the session is never torn down here.
func (s *Session) handleICEStateChange(state webrtc.ICEConnectionState) {
	util.LogDebug("[%s] ICE connection state: %s", s.peerID, state)

	switch state {
	case webrtc.ICEConnectionStateChecking:
		s.setState(StateNegotiating)
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		s.setState(StateConnected)
	case webrtc.ICEConnectionStateFailed:
		s.setState(StateFailed)
		util.Stats.AddICERestart()
		if s.polite {
			// The restart offer has to come from the impolite peer; ours
			// stays pending and is never sent.
			util.LogWarning("[%s] ICE failed, waiting for the impolite peer to restart", s.peerID)
		} else {
			util.LogWarning("[%s] ICE failed, restarting", s.peerID)
		}
		if err := s.conn.RestartICE(); err != nil {
			s.reportf("failed to restart ICE: %v", err)
		}
	case webrtc.ICEConnectionStateClosed:
		s.setState(StateClosed)
	}
}

// reportf logs a transient negotiation failure. The session stays usable.
func (s *Session) reportf(format string, args ...interface{}) {
	util.Stats.AddFailure()
	util.LogWarning("[%s] %s", s.peerID, fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// replaceConnection swaps in a fresh engine connection built by the
// factory. A polite session uses it when the engine refuses a rollback: the
// new connection has no pending offer, so the peer's offer applies cleanly.
// Events still raised by the old connection are dropped by generation.
func (s *Session) replaceConnection() error {
	if s.cfg.factory == nil {
		return ErrRollbackUnsupported
	}

	conn, err := s.cfg.factory(s.peerID)
	if err != nil {
		return fmt.Errorf("create connection: %w", err)
	}
	gen := s.gen + 1
	dc, err := s.attach(conn, gen)
	if err != nil {
		return errors.Join(err, conn.Close())
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return errors.Join(ErrSessionClosed, closeEngine(dc, conn))
	}
	oldConn, oldChannel := s.conn, s.channel
	s.conn, s.channel = conn, dc
	s.gen = gen
	s.mu.Unlock()

	s.endOfCandidatesSent = false
	if err := closeEngine(oldChannel, oldConn); err != nil {
		util.LogDebug("[%s] error while closing the replaced connection: %v", s.peerID, err)
	}

	util.Stats.AddReplacement()
	util.LogInfo("[%s] offer collision, engine cannot roll back; replaced the connection", s.peerID)

	s.runDataChannelHandler()
	return nil
}

// runDataChannelHandler invokes the application hook for the current
// channel, containing any error or panic it produces.
func (s *Session) runDataChannelHandler() {
	if s.cfg.handler == nil || s.DataChannel() == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			util.LogError("[%s] data channel handler panicked: %v", s.peerID, r)
		}
	}()

	if err := s.cfg.handler(s.cfg.localID, s.cfg.localType, s); err != nil {
		util.LogError("[%s] data channel handler failed: %v", s.peerID, err)
	}
}

// close stops the event loop and releases the data channel and connection.
// Only the first call does anything.
func (s *Session) close() error {
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		conn, dc := s.conn, s.channel
		s.state = StateClosed
		s.mu.Unlock()

		s.closeErr = closeEngine(dc, conn)
	})
	return s.closeErr
}

func closeEngine(dc DataChannel, conn Connection) error {
	var dcErr error
	if dc != nil {
		dcErr = dc.Close()
	}
	return errors.Join(dcErr, conn.Close())
}
