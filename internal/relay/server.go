package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/p2pmesh/internal/signaling"
	"github.com/1ureka/p2pmesh/internal/util"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewRouter exposes the hub over HTTP:
//
//	GET /ws?id=<peerId>&type=<peerType>  WebSocket signaling endpoint
//	GET /healthz                          connected peer count
func NewRouter(h *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.serveHealth)
	r.Get("/ws", h.ServeWS)

	return r
}

func (h *Hub) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"members":%d}`, len(h.Members()))
}

// ServeWS upgrades the request and serves one peer until it disconnects.
// Peers without an id query parameter are assigned a random one.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		id = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.LogWarning("failed to upgrade %s: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	m := &member{id: id, peerType: r.URL.Query().Get("type"), conn: conn}
	if !h.admit(m) {
		return
	}
	defer h.leave(m)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				util.LogWarning("[%s] connection error: %v", id, err)
			}
			return
		}

		var msg signaling.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			util.LogWarning("[%s] dropping malformed message: %v", id, err)
			continue
		}
		h.forward(m, msg)
	}
}

// admit joins m to the hub. A duplicate id is turned away with a policy
// close frame; a newcomer that cannot take its roster is dropped again.
func (h *Hub) admit(m *member) bool {
	err := h.join(m)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrDuplicatePeer):
		util.LogWarning("[%s] rejected: %v", m.id, err)
		m.mu.Lock()
		_ = m.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		m.mu.Unlock()
	default:
		util.LogWarning("[%s] failed to send roster: %v", m.id, err)
		h.leave(m)
	}
	return false
}
