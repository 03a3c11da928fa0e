// Package transport maintains the websocket connection to the agent server.
// It owns a single read pump so inbound events reach the consumer in the
// exact order the server sent them, and serializes writes so concurrent
// senders never interleave frames.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tether/internal/protocol"
)

// ErrClosed is returned by Send after the connection has shut down.
var ErrClosed = errors.New("transport: connection closed")

const (
	defaultPingInterval = 30 * time.Second
	writeTimeout        = 10 * time.Second
	handshakeTimeout    = 10 * time.Second
)

// Conn is a live connection to the agent server. Frames arrive on Frames()
// in server order; the channel closes when the connection dies for any
// reason, and Err() reports why.
type Conn struct {
	ws     *websocket.Conn
	frames chan []byte

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}

	errMu sync.Mutex
	err   error
}

// Options tunes a connection. The zero value is usable.
type Options struct {
	// PingInterval is how often a ping message is written to keep
	// intermediaries from dropping the idle connection. Zero means the
	// default, negative disables pings.
	PingInterval time.Duration
}

// Dial connects to the server at url (ws:// or wss://) and starts the read
// and ping pumps. The context bounds the handshake only; the connection
// outlives it.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Conn{
		ws:     ws,
		frames: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go c.readPump()

	interval := opts.PingInterval
	if interval == 0 {
		interval = defaultPingInterval
	}
	if interval > 0 {
		go c.pingPump(interval)
	}
	return c, nil
}

// Frames returns the inbound frame channel. It is closed on disconnect.
// Consume it from a single goroutine to preserve event ordering.
func (c *Conn) Frames() <-chan []byte {
	return c.frames
}

// Send marshals v and writes it as one text frame. Safe for concurrent use.
func (c *Conn) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.shutdown(err)
		return err
	}
	return nil
}

// Close tears down the connection. Idempotent.
func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

// Err reports why the connection ended. Nil until Frames() is closed, and
// nil after a clean local Close.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		return nil
	}
	var closeErr *websocket.CloseError
	if errors.As(c.err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
		return nil
	}
	return c.err
}

func (c *Conn) readPump() {
	defer close(c.frames)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		select {
		case c.frames <- data:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) pingPump(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// The server speaks ping as an in-band message, not a
			// websocket control frame.
			if err := c.Send(protocol.PingMessage()); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}
