package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrClientClosed is returned by SendTo after the relay connection ended.
var ErrClientClosed = errors.New("relay connection closed")

// Client is a connection to the signaling relay. Handlers registered with
// OnMessage and OnDisconnect run on the read goroutine.
type Client struct {
	conn     *websocket.Conn
	sender   *sender
	receiver *receiver

	mu           sync.Mutex
	onMessage    func(Message)
	onDisconnect func(error)

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay WebSocket URL, e.g.
//
//	wss://relay.example.com/ws?id=alice&type=desktop
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established WebSocket connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:     conn,
		sender:   &sender{conn: conn},
		receiver: &receiver{conn: conn},
		done:     make(chan struct{}),
	}
}

// OnMessage registers the handler for inbound relay messages.
func (c *Client) OnMessage(fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// OnDisconnect registers the handler invoked once when the read loop ends.
func (c *Client) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
}

// Run reads relay messages until the connection fails or ctx is cancelled,
// then fires the disconnect handler. It returns the read error, or nil after
// a local shutdown.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	err := c.receiver.watch(func(msg Message) {
		c.mu.Lock()
		fn := c.onMessage
		c.mu.Unlock()
		if fn != nil {
			fn(msg)
		}
	})

	select {
	case <-c.done:
		err = nil
	default:
	}
	_ = c.Close()

	c.mu.Lock()
	fn := c.onDisconnect
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
	return err
}

// SendTo sends a payload to peerID through the relay.
func (c *Client) SendTo(peerID string, p Payload) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	return c.sender.send(Message{To: peerID, Payload: p})
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and closes the WebSocket. Safe to call multiple
// times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sender.closeGracefully()
		err = c.conn.Close()
	})
	return err
}
