// Package relay forwards WebRTC negotiation payloads between peers and
// fans game events out to a room. It never inspects payload contents and
// every delivery is fire-and-forget.
package relay

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quizmesh/signalrelay/internal/protocol"
	"github.com/quizmesh/signalrelay/internal/transport"
)

// Directory resolves connection ids to live connections. The gateway
// implements it; lookups take its read lock, sends happen afterwards.
type Directory interface {
	// Peer returns the connection for an admitted peer id.
	Peer(connID string) (transport.Conn, bool)

	// RoomPeers returns the connections of the other members in the
	// sender's room, or false when the sender is not in a room.
	RoomPeers(senderID string) ([]transport.Conn, bool)
}

// Router is the stateless signaling pass-through.
type Router struct {
	dir Directory
	log *logrus.Logger
	now func() time.Time
}

// NewRouter creates a router over the given directory.
func NewRouter(dir Directory, log *logrus.Logger) *Router {
	return &Router{dir: dir, log: log, now: time.Now}
}

// RelayOffer forwards an SDP offer to the target peer.
func (r *Router) RelayOffer(senderID, target string, sdp json.RawMessage) {
	r.relaySDP(protocol.EventOffer, senderID, target, sdp)
}

// RelayAnswer forwards an SDP answer to the target peer.
func (r *Router) RelayAnswer(senderID, target string, sdp json.RawMessage) {
	r.relaySDP(protocol.EventAnswer, senderID, target, sdp)
}

func (r *Router) relaySDP(event, senderID, target string, sdp json.RawMessage) {
	if target == "" || len(sdp) == 0 {
		r.drop(event, senderID, target, "missing target or sdp")
		return
	}
	conn, ok := r.dir.Peer(target)
	if !ok {
		r.drop(event, senderID, target, "unknown target")
		return
	}
	if err := conn.SendEvent(event, protocol.NewSDP(senderID, sdp)); err != nil {
		r.drop(event, senderID, target, err.Error())
	}
}

// RelayCandidate forwards an ICE candidate to the target peer.
func (r *Router) RelayCandidate(senderID, target string, candidate json.RawMessage) {
	if target == "" || len(candidate) == 0 {
		r.drop(protocol.EventICECandidate, senderID, target, "missing target or candidate")
		return
	}
	conn, ok := r.dir.Peer(target)
	if !ok {
		r.drop(protocol.EventICECandidate, senderID, target, "unknown target")
		return
	}
	if err := conn.SendEvent(protocol.EventICECandidate, protocol.NewCandidate(senderID, candidate)); err != nil {
		r.drop(protocol.EventICECandidate, senderID, target, err.Error())
	}
}

// BroadcastGameEvent forwards an opaque payload to every other member of
// the sender's room, annotated with the sender id and a server timestamp.
// Senders outside any room are dropped.
func (r *Router) BroadcastGameEvent(senderID string, payload json.RawMessage) {
	peers, ok := r.dir.RoomPeers(senderID)
	if !ok {
		r.drop(protocol.EventGameEvent, senderID, "", "sender not in a room")
		return
	}

	event := protocol.NewGameEvent(senderID, r.now().UnixMilli(), payload)
	for _, conn := range peers {
		if err := conn.SendEvent(protocol.EventGameEvent, event); err != nil {
			r.drop(protocol.EventGameEvent, senderID, conn.ID(), err.Error())
		}
	}
}

func (r *Router) drop(event, senderID, target, reason string) {
	r.log.WithFields(logrus.Fields{
		"event":  event,
		"sender": senderID,
		"target": target,
		"reason": reason,
	}).Debug("dropped relay message")
}
