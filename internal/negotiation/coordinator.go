// Package negotiation implements perfect negotiation for a full mesh of
// WebRTC peers: one Session per remote peer, and a Coordinator that owns the
// sessions and routes inbound signaling events to them.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/1ureka/p2pmesh/internal/util"
)

// Options configures a Coordinator.
type Options struct {
	// LocalID and LocalType describe this peer; they are handed to the
	// DataChannelHandler.
	LocalID   string
	LocalType string

	// EnableDataChannel creates a negotiated channel with DataChannelID on
	// every session. Both ends must agree on the id.
	EnableDataChannel  bool
	DataChannelID      uint16
	DataChannelLabel   string
	DataChannelHandler DataChannelHandler
}

// Coordinator owns the session registry of one mesh member.
type Coordinator struct {
	ctx     context.Context
	factory ConnectionFactory
	out     Outbound
	opts    Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewCoordinator creates an empty coordinator. Sessions are bound to ctx and
// stop when it is cancelled.
func NewCoordinator(ctx context.Context, factory ConnectionFactory, out Outbound, opts Options) *Coordinator {
	if opts.DataChannelLabel == "" {
		opts.DataChannelLabel = "mesh"
	}
	return &Coordinator{
		ctx:      ctx,
		factory:  factory,
		out:      out,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// AddPeer creates a session for peerID with a fixed role. A duplicate join
// for a live session is logged and ignored.
func (c *Coordinator) AddPeer(peerID, peerType string, polite bool) error {
	if peerID == "" {
		return errors.New("empty peer id")
	}
	if peerID == c.opts.LocalID {
		util.LogDebug("ignoring roster entry for ourselves (%s)", peerID)
		return nil
	}

	c.mu.Lock()
	if _, exists := c.sessions[peerID]; exists {
		c.mu.Unlock()
		util.LogWarning("[%s] session already exists, ignoring duplicate join", peerID)
		return nil
	}

	conn, err := c.factory(peerID)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("create connection for %s: %w", peerID, err)
	}

	s, err := newSession(c.ctx, sessionConfig{
		peerID:            peerID,
		peerType:          peerType,
		polite:            polite,
		enableDataChannel: c.opts.EnableDataChannel,
		dataChannelLabel:  c.opts.DataChannelLabel,
		dataChannelID:     c.opts.DataChannelID,
		factory:           c.factory,
		localID:           c.opts.LocalID,
		localType:         c.opts.LocalType,
		handler:           c.opts.DataChannelHandler,
	}, conn, c.out)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("create session for %s: %w", peerID, err)
	}
	c.sessions[peerID] = s
	c.mu.Unlock()

	util.LogInfo("[%s] peer added (type=%q, polite=%t)", peerID, peerType, polite)

	s.runDataChannelHandler()
	return nil
}

// RemovePeer tears down the session for peerID. Removing an unknown or
// already removed peer is a no-op.
func (c *Coordinator) RemovePeer(peerID string) error {
	c.mu.Lock()
	s, ok := c.sessions[peerID]
	delete(c.sessions, peerID)
	c.mu.Unlock()

	if !ok {
		return nil
	}

	util.LogInfo("[%s] peer removed", peerID)
	return s.close()
}

// RemoveAll tears down every session. It is used when the relay connection
// is lost, since no negotiation can make progress without it.
func (c *Coordinator) RemoveAll() error {
	c.mu.Lock()
	sessions := c.sessions
	c.sessions = make(map[string]*Session)
	c.mu.Unlock()

	var errs []error
	for peerID, s := range sessions {
		if err := s.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", peerID, err))
		}
	}
	if len(sessions) > 0 {
		util.LogInfo("removed all %d peer sessions", len(sessions))
	}
	return errors.Join(errs...)
}

// Dispatch routes an inbound signaling event from the given peer. Unknown
// kinds and events for peers without a session are dropped.
func (c *Coordinator) Dispatch(from string, ev Event) {
	switch ev.Kind {
	case EventOpen:
		for _, p := range ev.Connections {
			polite := ev.Polite
			if p.Polite != nil {
				polite = *p.Polite
			}
			if err := c.AddPeer(p.ID, p.Type, polite); err != nil {
				util.LogError("failed to add peer: %v", err)
			}
		}

	case EventClose:
		if err := c.RemovePeer(from); err != nil {
			util.LogWarning("[%s] error while closing session: %v", from, err)
		}

	case EventSDP:
		if ev.Description == nil {
			util.LogWarning("[%s] sdp event without a description", from)
			return
		}
		c.deliver(from, sessionEvent{kind: eventRemoteDescription, description: *ev.Description})

	case EventICE:
		c.deliver(from, sessionEvent{kind: eventRemoteCandidate, candidate: ev.Candidate})

	default:
		util.LogWarning("[%s] ignoring unknown signaling action %q", from, ev.Kind)
	}
}

// deliver enqueues ev on the session for peerID. The lookup and the enqueue
// happen under the registry lock so a concurrent removal cannot interleave.
func (c *Coordinator) deliver(peerID string, ev sessionEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[peerID]
	if !ok {
		return false
	}
	s.enqueue(ev)
	return true
}

// Session returns the live session for peerID.
func (c *Coordinator) Session(peerID string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[peerID]
	return s, ok
}

// Peers returns the ids of all live sessions, sorted.
func (c *Coordinator) Peers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
