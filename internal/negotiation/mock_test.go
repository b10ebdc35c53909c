package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

// Compile-time interface checks.
var (
	_ Connection  = (*mockConnection)(nil)
	_ DataChannel = (*mockChannel)(nil)
	_ Outbound    = (*recordingOutbound)(nil)
)

var errMockClosed = errors.New("mock connection closed")

// mockConnection implements Connection with a minimal signaling state
// machine, enough to exercise offer/answer/rollback ordering without a real
// WebRTC stack.
type mockConnection struct {
	owner  string // local peer that owns this connection
	peerID string // remote peer it talks to

	mu        sync.Mutex
	signaling webrtc.SignalingState
	remoteSet bool
	local     webrtc.SessionDescription
	remote    webrtc.SessionDescription
	offers    int
	calls     []string
	added     []webrtc.ICECandidateInit
	restarts  int
	closes    int
	closed    bool
	channel   *mockChannel

	failCreateOffer error
	blockOffer      chan struct{}
	rejectRollback  bool // behave like an engine without rollback support

	onNegotiationNeeded func()
	onICECandidate      func(*webrtc.ICECandidateInit)
	onICEState          func(webrtc.ICEConnectionState)
}

func newMockConnection(owner, peerID string) *mockConnection {
	return &mockConnection{owner: owner, peerID: peerID, signaling: webrtc.SignalingStateStable}
}

func (m *mockConnection) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *mockConnection) CreateOffer() (webrtc.SessionDescription, error) {
	m.mu.Lock()
	block := m.blockOffer
	m.mu.Unlock()
	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateOffer")
	if m.failCreateOffer != nil {
		return webrtc.SessionDescription{}, m.failCreateOffer
	}
	m.offers++
	return webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  fmt.Sprintf("offer %s→%s #%d", m.owner, m.peerID, m.offers),
	}, nil
}

func (m *mockConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateAnswer")
	if m.signaling != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer in state %s", m.signaling)
	}
	return webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  fmt.Sprintf("answer %s→%s to [%s]", m.owner, m.peerID, m.remote.SDP),
	}, nil
}

func (m *mockConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetLocalDescription(" + desc.Type.String() + ")")
	if m.closed {
		return errMockClosed
	}

	switch desc.Type {
	case webrtc.SDPTypeOffer:
		if m.signaling != webrtc.SignalingStateStable && m.signaling != webrtc.SignalingStateHaveLocalOffer {
			return fmt.Errorf("set local offer in state %s", m.signaling)
		}
		m.signaling = webrtc.SignalingStateHaveLocalOffer
		m.local = desc
	case webrtc.SDPTypeAnswer, webrtc.SDPTypePranswer:
		if m.signaling != webrtc.SignalingStateHaveRemoteOffer {
			return fmt.Errorf("set local answer in state %s", m.signaling)
		}
		m.signaling = webrtc.SignalingStateStable
		m.local = desc
	case webrtc.SDPTypeRollback:
		if m.rejectRollback {
			return ErrRollbackUnsupported
		}
		if m.signaling != webrtc.SignalingStateHaveLocalOffer {
			return fmt.Errorf("rollback in state %s", m.signaling)
		}
		m.signaling = webrtc.SignalingStateStable
		m.local = webrtc.SessionDescription{}
	default:
		return fmt.Errorf("unsupported local description type %s", desc.Type)
	}
	return nil
}

func (m *mockConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetRemoteDescription(" + desc.Type.String() + ")")
	if m.closed {
		return errMockClosed
	}

	switch desc.Type {
	case webrtc.SDPTypeOffer:
		if m.signaling != webrtc.SignalingStateStable {
			return fmt.Errorf("set remote offer in state %s", m.signaling)
		}
		m.signaling = webrtc.SignalingStateHaveRemoteOffer
	case webrtc.SDPTypeAnswer, webrtc.SDPTypePranswer:
		if m.signaling != webrtc.SignalingStateHaveLocalOffer {
			return fmt.Errorf("set remote answer in state %s", m.signaling)
		}
		m.signaling = webrtc.SignalingStateStable
	default:
		return fmt.Errorf("unsupported remote description type %s", desc.Type)
	}
	m.remote = desc
	m.remoteSet = true
	return nil
}

func (m *mockConnection) AddICECandidate(c webrtc.ICECandidateInit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("AddICECandidate")
	if !m.remoteSet {
		return errors.New("remote description not set")
	}
	m.added = append(m.added, c)
	return nil
}

func (m *mockConnection) RestartICE() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts++
	return nil
}

func (m *mockConnection) CreateDataChannel(label string, id uint16) (DataChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channel = &mockChannel{label: label, id: id}
	return m.channel, nil
}

func (m *mockConnection) SignalingState() webrtc.SignalingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signaling
}

func (m *mockConnection) ICEConnectionState() webrtc.ICEConnectionState {
	return webrtc.ICEConnectionStateNew
}

func (m *mockConnection) OnNegotiationNeeded(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onNegotiationNeeded = fn
}

func (m *mockConnection) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onICECandidate = fn
}

func (m *mockConnection) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onICEState = fn
}

func (m *mockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	m.closed = true
	return nil
}

// fire* simulate engine callbacks.

func (m *mockConnection) fireNegotiationNeeded() {
	m.mu.Lock()
	fn := m.onNegotiationNeeded
	m.mu.Unlock()
	fn()
}

func (m *mockConnection) fireICECandidate(c *webrtc.ICECandidateInit) {
	m.mu.Lock()
	fn := m.onICECandidate
	m.mu.Unlock()
	fn(c)
}

func (m *mockConnection) fireICEState(state webrtc.ICEConnectionState) {
	m.mu.Lock()
	fn := m.onICEState
	m.mu.Unlock()
	fn(state)
}

// mockState is a copy of the fields tests assert on.
type mockState struct {
	signaling webrtc.SignalingState
	remoteSet bool
	local     webrtc.SessionDescription
	remote    webrtc.SessionDescription
	calls     []string
	added     []webrtc.ICECandidateInit
	restarts  int
	closes    int
}

func (m *mockConnection) snapshot() mockState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return mockState{
		signaling: m.signaling,
		remoteSet: m.remoteSet,
		local:     m.local,
		remote:    m.remote,
		calls:     append([]string(nil), m.calls...),
		added:     append([]webrtc.ICECandidateInit(nil), m.added...),
		restarts:  m.restarts,
		closes:    m.closes,
	}
}

type mockChannel struct {
	label string
	id    uint16

	mu     sync.Mutex
	closes int
	sent   []string
}

func (c *mockChannel) Label() string                             { return c.label }
func (c *mockChannel) OnOpen(func())                             {}
func (c *mockChannel) OnMessage(func(webrtc.DataChannelMessage)) {}

func (c *mockChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *mockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

// mockFactory hands out mockConnections and remembers them by peer id.
type mockFactory struct {
	owner string

	mu             sync.Mutex
	conns          map[string]*mockConnection // latest per peer
	created        int
	err            error
	rejectRollback bool
}

func newMockFactory(owner string) *mockFactory {
	return &mockFactory{owner: owner, conns: make(map[string]*mockConnection)}
}

func (f *mockFactory) create(peerID string) (Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	conn := newMockConnection(f.owner, peerID)
	conn.rejectRollback = f.rejectRollback
	f.conns[peerID] = conn
	f.created++
	return conn, nil
}

func (f *mockFactory) conn(t *testing.T, peerID string) *mockConnection {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.conns[peerID]
	if !ok {
		t.Fatalf("no connection created for %s", peerID)
	}
	return conn
}

// sentMessage is one outbound negotiation message.
type sentMessage struct {
	to          string
	description *webrtc.SessionDescription
	candidate   *webrtc.ICECandidateInit
	isCandidate bool
}

// recordingOutbound captures outbound messages instead of sending them.
type recordingOutbound struct {
	mu   sync.Mutex
	msgs []sentMessage
}

func (r *recordingOutbound) SendDescription(peerID string, desc webrtc.SessionDescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sentMessage{to: peerID, description: &desc})
	return nil
}

func (r *recordingOutbound) SendCandidate(peerID string, c *webrtc.ICECandidateInit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sentMessage{to: peerID, candidate: c, isCandidate: true})
	return nil
}

// take removes and returns everything recorded so far.
func (r *recordingOutbound) take() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.msgs
	r.msgs = nil
	return msgs
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// newTestCoordinator builds a coordinator for local peer id backed by mocks.
func newTestCoordinator(t *testing.T, id string, opts Options) (*Coordinator, *mockFactory, *recordingOutbound) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	factory := newMockFactory(id)
	out := &recordingOutbound{}
	opts.LocalID = id
	c := NewCoordinator(ctx, factory.create, out, opts)
	t.Cleanup(func() {
		_ = c.RemoveAll()
		cancel()
	})
	return c, factory, out
}

// flush waits until the session for peerID has handled everything queued.
func flush(t *testing.T, c *Coordinator, peerID string) {
	t.Helper()
	s, ok := c.Session(peerID)
	if !ok {
		t.Fatalf("no session for %s", peerID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.flush(ctx); err != nil {
		t.Fatalf("flush %s: %v", peerID, err)
	}
}

// relay dispatches recorded messages as if the relay delivered them from
// sender to the target coordinator, then waits for them to be handled.
func relay(t *testing.T, sender string, msgs []sentMessage, to *Coordinator) {
	t.Helper()
	for _, msg := range msgs {
		if msg.isCandidate {
			to.Dispatch(sender, Event{Kind: EventICE, Candidate: msg.candidate})
		} else {
			to.Dispatch(sender, Event{Kind: EventSDP, Description: msg.description})
		}
	}
	flush(t, to, sender)
}
