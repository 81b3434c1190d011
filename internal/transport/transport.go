// Package transport abstracts a live client connection.
// This allows swapping WebSocket or mock implementations without changing relay logic.
package transport

import (
	"time"

	"github.com/quizmesh/signalrelay/internal/protocol"
)

// Conn is a single framed, ordered connection to one client.
type Conn interface {
	// ID returns the unique identifier for this connection.
	ID() string

	// RemoteAddr returns the peer address for diagnostics.
	RemoteAddr() string

	// SendEvent sends a named event with a JSON payload. Delivery is
	// best-effort; callers never retry.
	SendEvent(event string, data any) error

	// ReadEnvelope blocks for the next inbound event. It returns
	// protocol.ErrMalformedEnvelope for frames that do not decode; the
	// connection stays usable in that case.
	ReadEnvelope() (*protocol.Envelope, error)

	// Close shuts down the connection with a reason string.
	Close(reason string) error
}

// Config holds transport tuning knobs.
type Config struct {
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		PongTimeout:    60 * time.Second,
		PingPeriod:     54 * time.Second, // must be less than PongTimeout
		MaxMessageSize: 64 * 1024,
	}
}
