package transport

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/p2pmesh/internal/negotiation"
)

const (
	highWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
)

// Compile-time interface check.
var _ negotiation.DataChannel = (*DataChannel)(nil)

// DataChannel wraps a pion DataChannel with send-side backpressure.
type DataChannel struct {
	raw       *webrtc.DataChannel
	sendReady chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// newChannel wraps raw and installs the low-water callback.
func newChannel(raw *webrtc.DataChannel) *DataChannel {
	dc := &DataChannel{
		raw:       raw,
		sendReady: make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}

	raw.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	raw.OnBufferedAmountLow(func() {
		select {
		case dc.sendReady <- struct{}{}:
		default:
		}
	})

	return dc
}

// SendText sends a text message. It blocks while the buffered amount is above
// the high-water mark, until it drains or the channel is closed.
func (c *DataChannel) SendText(text string) error {
	if c.raw.BufferedAmount() > uint64(highWaterMark) {
		select {
		case <-c.sendReady:
		case <-c.closed:
			return webrtc.ErrConnectionClosed
		}
	}
	return c.raw.SendText(text)
}

// Close closes the underlying DataChannel once.
func (c *DataChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.raw.Close()
	})
	return err
}

// Label / OnOpen / OnMessage proxy the underlying channel.
func (c *DataChannel) Label() string                                { return c.raw.Label() }
func (c *DataChannel) OnOpen(fn func())                             { c.raw.OnOpen(fn) }
func (c *DataChannel) OnMessage(fn func(webrtc.DataChannelMessage)) { c.raw.OnMessage(fn) }
