package transport

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quizmesh/signalrelay/internal/protocol"
)

// WSConn is a WebSocket-backed Conn.
type WSConn struct {
	id     string
	ws     *websocket.Conn
	config Config

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSConn wraps an upgraded WebSocket connection and starts its keepalive
// pinger. The caller owns the read loop.
func NewWSConn(ws *websocket.Conn, config Config) *WSConn {
	c := &WSConn{
		id:     uuid.New().String(),
		ws:     ws,
		config: config,
		done:   make(chan struct{}),
	}

	ws.SetReadLimit(config.MaxMessageSize)
	ws.SetReadDeadline(time.Now().Add(config.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(config.PongTimeout))
	})
	go c.keepalive()

	return c
}

// ID returns the connection identifier.
func (c *WSConn) ID() string {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *WSConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// SendEvent encodes and writes one event frame.
func (c *WSConn) SendEvent(event string, data any) error {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// ReadEnvelope reads and decodes the next inbound frame.
func (c *WSConn) ReadEnvelope() (*protocol.Envelope, error) {
	_, frame, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.Decode(frame)
}

// Close sends a close frame with the given reason and tears the socket down.
// Safe to call more than once.
func (c *WSConn) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		deadline := time.Now().Add(c.config.WriteTimeout)
		c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		err = c.ws.Close()
	})
	return err
}

// keepalive pings the peer until the connection closes. WriteControl is safe
// to call concurrently with SendEvent.
func (c *WSConn) keepalive() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
