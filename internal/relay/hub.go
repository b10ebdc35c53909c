// Package relay implements the signaling relay: it keeps the mesh roster,
// assigns a polite/impolite role to every pair, and forwards negotiation
// messages between peers.
package relay

import (
	"errors"
	"slices"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/p2pmesh/internal/signaling"
	"github.com/1ureka/p2pmesh/internal/util"
)

// ErrDuplicatePeer is returned when a peer id is already connected.
var ErrDuplicatePeer = errors.New("peer id already connected")

// member is one connected peer.
type member struct {
	id       string
	peerType string
	conn     *websocket.Conn
	mu       sync.Mutex
}

// send writes a message to the member, guarded by a mutex.
func (m *member) send(msg signaling.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn.WriteJSON(msg)
}

// Hub tracks connected peers and routes messages between them.
type Hub struct {
	mu      sync.Mutex
	members map[string]*member
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{members: make(map[string]*member)}
}

// join registers m and announces it. Existing members are told first and
// become polite toward the newcomer; the newcomer then receives the roster
// and is impolite toward everyone on it, so it makes the offers.
func (h *Hub) join(m *member) error {
	h.mu.Lock()
	if _, exists := h.members[m.id]; exists {
		h.mu.Unlock()
		return ErrDuplicatePeer
	}
	existing := h.sortedMembersLocked()
	h.members[m.id] = m
	h.mu.Unlock()

	util.LogInfo("[%s] joined (type=%q, %d existing peers)", m.id, m.peerType, len(existing))

	newcomer := signaling.Connection{PeerID: m.id, PeerType: m.peerType}
	roster := make([]signaling.Connection, 0, len(existing))
	for _, e := range existing {
		roster = append(roster, signaling.Connection{PeerID: e.id, PeerType: e.peerType})
		if err := e.send(signaling.Message{Payload: signaling.Payload{
			Action:      signaling.ActionOpen,
			Connections: []signaling.Connection{newcomer},
			BePolite:    true,
		}}); err != nil {
			util.LogWarning("[%s] failed to announce %s: %v", e.id, m.id, err)
		}
	}

	return m.send(signaling.Message{Payload: signaling.Payload{
		Action:      signaling.ActionOpen,
		Connections: roster,
		BePolite:    false,
	}})
}

// leave unregisters m and tells the remaining members it is gone.
func (h *Hub) leave(m *member) {
	h.mu.Lock()
	if h.members[m.id] != m {
		h.mu.Unlock()
		return
	}
	delete(h.members, m.id)
	remaining := h.sortedMembersLocked()
	h.mu.Unlock()

	util.LogInfo("[%s] left", m.id)

	for _, r := range remaining {
		if err := r.send(signaling.Message{
			From:    m.id,
			Payload: signaling.Payload{Action: signaling.ActionClose},
		}); err != nil {
			util.LogWarning("[%s] failed to announce departure of %s: %v", r.id, m.id, err)
		}
	}
}

// forward relays a negotiation message from one member to its addressee,
// stamping the sender. Anything else is dropped.
func (h *Hub) forward(from *member, msg signaling.Message) {
	switch msg.Payload.Action {
	case signaling.ActionSDP, signaling.ActionICE:
	default:
		util.LogWarning("[%s] dropping %q message, peers may only send sdp and ice", from.id, msg.Payload.Action)
		return
	}

	h.mu.Lock()
	to, ok := h.members[msg.To]
	h.mu.Unlock()
	if !ok {
		util.LogDebug("[%s] dropping %s for unknown peer %q", from.id, msg.Payload.Action, msg.To)
		return
	}

	msg.From = from.id
	msg.To = ""
	if err := to.send(msg); err != nil {
		util.LogWarning("[%s] failed to forward %s from %s: %v", to.id, msg.Payload.Action, from.id, err)
	}
}

// Members returns the ids of connected peers, sorted.
func (h *Hub) Members() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.members))
	for id := range h.members {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// CloseAll disconnects every member. Their read loops then run leave.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	members := h.sortedMembersLocked()
	h.mu.Unlock()

	for _, m := range members {
		m.mu.Lock()
		_ = m.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"))
		m.mu.Unlock()
		_ = m.conn.Close()
	}
}

func (h *Hub) sortedMembersLocked() []*member {
	members := make([]*member, 0, len(h.members))
	for _, m := range h.members {
		members = append(members, m)
	}
	slices.SortFunc(members, func(a, b *member) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return members
}
