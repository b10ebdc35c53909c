package signaling

import (
	"sync"

	"github.com/gorilla/websocket"
)

// sender serializes outgoing messages to the WebSocket; gorilla allows only
// one concurrent writer.
type sender struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// send writes a message to the WebSocket, guarded by a mutex.
func (s *sender) send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// closeGracefully sends a close frame before the connection is torn down.
func (s *sender) closeGracefully() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
