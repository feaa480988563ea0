package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the bidirectional room link. Frames are delivered through the
// onMessage callback passed at dial time; onClose fires exactly once when
// the link dies, with the close code when one is known.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// Dialer opens room links. The default dialer speaks websocket; tests swap
// in an in-memory implementation.
type Dialer interface {
	Dial(url string, onMessage func(data []byte), onClose func(code int)) (Conn, error)
}

// wsDialer dials with gorilla/websocket.
type wsDialer struct {
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
}

func newWSDialer(handshakeTimeout, writeTimeout time.Duration) *wsDialer {
	return &wsDialer{handshakeTimeout: handshakeTimeout, writeTimeout: writeTimeout}
}

func (d *wsDialer) Dial(url string, onMessage func([]byte), onClose func(code int)) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	ws, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}

	conn := &wsConn{ws: ws, writeTimeout: d.writeTimeout}
	go conn.readPump(onMessage, onClose)
	return conn, nil
}

// wsConn wraps a websocket connection with serialized writes.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrNoConnection
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("client: write frame: %w", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.ws.Close()
}

// readPump delivers frames until the connection dies, then reports the
// close code. It runs on its own goroutine; onMessage must not block on the
// dispatch loop completing other work from this goroutine.
func (c *wsConn) readPump(onMessage func([]byte), onClose func(code int)) {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			code := -1
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
			}
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			c.ws.Close()
			onClose(code)
			return
		}
		onMessage(msg)
	}
}
