package transport

import (
	"io"
	"sync"

	"github.com/quizmesh/signalrelay/internal/protocol"
)

// MockConn is a mock Conn implementation for testing.
type MockConn struct {
	id string

	mu          sync.Mutex
	sent        []MockEvent
	inbound     chan *protocol.Envelope
	closed      bool
	closeReason string
}

// MockEvent records one sent event.
type MockEvent struct {
	Event string
	Data  any
}

// NewMockConn creates a mock connection with a fixed id.
func NewMockConn(id string) *MockConn {
	return &MockConn{
		id:      id,
		inbound: make(chan *protocol.Envelope, 16),
	}
}

// ID returns the fixed mock id.
func (c *MockConn) ID() string {
	return c.id
}

// RemoteAddr returns a placeholder address.
func (c *MockConn) RemoteAddr() string {
	return "mock:" + c.id
}

// SendEvent records the event as sent.
func (c *MockConn) SendEvent(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, MockEvent{Event: event, Data: data})
	return nil
}

// ReadEnvelope returns the next simulated inbound event, or io.EOF once the
// connection is closed.
func (c *MockConn) ReadEnvelope() (*protocol.Envelope, error) {
	env, ok := <-c.inbound
	if !ok {
		return nil, io.EOF
	}
	return env, nil
}

// Close records the close reason.
func (c *MockConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.closeReason = reason
	close(c.inbound)
	return nil
}

// --- Test helpers ---

// SimulateEvent queues an inbound event as if the client sent it.
func (c *MockConn) SimulateEvent(event string, data []byte) {
	c.inbound <- &protocol.Envelope{Event: event, Data: data}
}

// Sent returns a copy of all sent events.
func (c *MockConn) Sent() []MockEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]MockEvent{}, c.sent...)
}

// SentNamed returns sent events filtered by event name.
func (c *MockConn) SentNamed(event string) []MockEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []MockEvent
	for _, e := range c.sent {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (c *MockConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseReason returns the reason passed to Close.
func (c *MockConn) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

// Clear drops all recorded events.
func (c *MockConn) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = c.sent[:0]
}
