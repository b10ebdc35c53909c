package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/1ureka/p2pmesh/internal/util"
)

// receiver reads relay messages until the connection fails.
type receiver struct {
	conn *websocket.Conn
}

// watch decodes messages in arrival order and hands each to fn. Malformed
// messages are skipped; it returns the error that ended the read loop.
func (r *receiver) watch(fn func(Message)) error {
	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read WS message: %w", err)
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			util.LogWarning("dropping malformed relay message: %v", err)
			continue
		}
		fn(msg)
	}
}
