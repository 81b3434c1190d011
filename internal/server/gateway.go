// Package server is the connection gateway: it admits WebSocket clients,
// dispatches their events to the room engine and signaling router, and
// cleans up on disconnect.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/quizmesh/signalrelay/internal/config"
	"github.com/quizmesh/signalrelay/internal/identity"
	"github.com/quizmesh/signalrelay/internal/protocol"
	"github.com/quizmesh/signalrelay/internal/relay"
	"github.com/quizmesh/signalrelay/internal/room"
	"github.com/quizmesh/signalrelay/internal/transport"
)

// Gateway owns all mutable relay state. Every mutation of rooms,
// identities or the connection table happens under mu, so no handler can
// observe a half-applied change. Recipient sets are computed under the
// lock; the actual sends happen after it is released.
type Gateway struct {
	mu     sync.RWMutex
	conns  map[string]transport.Conn
	ids    *identity.Registry
	engine *room.Engine

	router      *relay.Router
	log         *logrus.Logger
	upgrader    websocket.Upgrader
	wsConfig    transport.Config
	sweepPeriod time.Duration
}

// outEvent is one pending delivery, resolved under the lock and sent after.
type outEvent struct {
	conn  transport.Conn
	event string
	data  any
}

// New creates a gateway with an empty room store and identity registry.
func New(cfg config.Config, log *logrus.Logger) *Gateway {
	g := &Gateway{
		conns:  make(map[string]transport.Conn),
		ids:    identity.NewRegistry(),
		engine: room.NewEngine(cfg.RoomTTL),
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		wsConfig:    transport.DefaultConfig(),
		sweepPeriod: cfg.SweepPeriod,
	}
	g.router = relay.NewRouter(g, log)
	return g
}

// HandleWS upgrades the connection, admits the claimed identity and runs
// the dispatch loop until the client disconnects.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	conn := transport.NewWSConn(ws, g.wsConfig)
	nickname := r.URL.Query().Get("nickname")
	deviceID := r.URL.Query().Get("deviceId")

	if !g.admit(conn, nickname, deviceID) {
		return
	}

	g.log.WithFields(logrus.Fields{
		"conn":     conn.ID(),
		"nickname": nickname,
		"addr":     conn.RemoteAddr(),
	}).Info("client connected")

	reason := g.Serve(conn)

	g.log.WithFields(logrus.Fields{
		"conn":   conn.ID(),
		"reason": reason,
	}).Info("client disconnected")
}

// admit binds the identity and registers the connection atomically. A
// failed admission closes the connection immediately: no valid session
// exists without one.
func (g *Gateway) admit(conn transport.Conn, nickname, deviceID string) bool {
	g.mu.Lock()
	err := g.ids.Admit(conn.ID(), nickname, deviceID)
	if err == nil {
		g.conns[conn.ID()] = conn
	}
	g.mu.Unlock()

	if err == nil {
		return true
	}
	if errors.Is(err, identity.ErrNameInUse) {
		conn.SendEvent(protocol.EventNicknameTaken, err.Error())
	} else {
		conn.SendEvent(protocol.EventRoomError, err.Error())
	}
	conn.Close(err.Error())
	return false
}

// Serve reads and dispatches events until the connection fails, then runs
// disconnect cleanup. It returns the disconnect reason. Exposed for tests
// driving a mock connection.
func (g *Gateway) Serve(conn transport.Conn) string {
	reason := "connection closed"
	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedEnvelope) {
				g.log.WithField("conn", conn.ID()).Debug("ignoring malformed frame")
				continue
			}
			reason = err.Error()
			break
		}
		g.dispatch(conn, env)
	}

	g.disconnect(conn)
	return reason
}

// dispatch routes one inbound event. A panic in a handler is contained
// here: it is logged and reported to the caller without touching state
// mid-mutation, since handlers only mutate under the gateway lock.
func (g *Gateway) dispatch(conn transport.Conn, env *protocol.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			g.log.WithFields(logrus.Fields{
				"conn":  conn.ID(),
				"event": env.Event,
				"panic": rec,
			}).Errorf("handler panic\n%s", debug.Stack())
			conn.SendEvent(protocol.EventRoomError, "internal error")
		}
	}()

	if protocol.IsSignalEvent(env.Event) {
		g.handleSignal(conn, env.Event, env.Data)
		return
	}

	switch env.Event {
	case protocol.EventCreateRoom:
		g.handleCreateRoom(conn, env.Data)
	case protocol.EventJoinRoom:
		g.handleJoinRoom(conn, env.Data)
	case protocol.EventGetPublicRooms:
		g.handleGetPublicRooms(conn)
	case protocol.EventLeaveRoom:
		g.handleLeaveRoom(conn)
	case protocol.EventStartGame:
		g.handleStartGame(conn)
	case protocol.EventGameEvent:
		g.router.BroadcastGameEvent(conn.ID(), env.Data)
	default:
		g.log.WithFields(logrus.Fields{
			"conn":  conn.ID(),
			"event": env.Event,
		}).Debug("unknown event")
	}
}

func (g *Gateway) handleCreateRoom(conn transport.Conn, data json.RawMessage) {
	var req protocol.CreateRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.SendEvent(protocol.EventRoomError, "malformed create-room payload")
		return
	}

	g.mu.Lock()
	out, err := g.engine.CreateRoom(conn.ID(), req.Settings, req.RoomID)
	var notices []outEvent
	if err == nil && out.PriorLeave != nil {
		notices = g.leaveNotices(out.PriorLeave, conn.ID())
	}
	g.mu.Unlock()

	if err != nil {
		conn.SendEvent(protocol.EventRoomError, err.Error())
		return
	}
	g.deliver(notices)
	conn.SendEvent(protocol.EventRoomCreated, protocol.NewRoomCreated(out.Code))
	conn.SendEvent(protocol.EventExistingUsers, []protocol.UserInfo{})

	g.log.WithFields(logrus.Fields{
		"conn": conn.ID(),
		"room": out.Code,
	}).Info("room created")
}

func (g *Gateway) handleJoinRoom(conn transport.Conn, data json.RawMessage) {
	var req protocol.JoinRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.SendEvent(protocol.EventRoomError, "malformed join-room payload")
		return
	}

	g.mu.Lock()
	out, err := g.engine.JoinRoom(conn.ID(), req.RoomID, req.Password)
	var notices []outEvent
	var roster []protocol.UserInfo
	if err == nil {
		if out.PriorLeave != nil {
			notices = g.leaveNotices(out.PriorLeave, conn.ID())
		}
		roster = g.userInfos(out.Existing)
		joiner := g.userInfo(conn.ID())
		for _, id := range out.Existing {
			if peer, ok := g.conns[id]; ok {
				notices = append(notices, outEvent{peer, protocol.EventUserJoined, joiner})
			}
		}
	}
	g.mu.Unlock()

	if err != nil {
		if errors.Is(err, room.ErrPasswordRequired) {
			conn.SendEvent(protocol.EventPasswordRequired, req.RoomID)
			return
		}
		conn.SendEvent(protocol.EventRoomError, err.Error())
		return
	}

	conn.SendEvent(protocol.EventRoomJoined, protocol.NewRoomJoined(out.Code, out.Host, out.Settings, out.Started))
	conn.SendEvent(protocol.EventExistingUsers, roster)
	g.deliver(notices)

	g.log.WithFields(logrus.Fields{
		"conn": conn.ID(),
		"room": out.Code,
	}).Info("joined room")
}

func (g *Gateway) handleGetPublicRooms(conn transport.Conn) {
	g.mu.RLock()
	summaries := g.engine.ListPublicRooms()
	g.mu.RUnlock()

	conn.SendEvent(protocol.EventPublicRooms, summaries)
}

func (g *Gateway) handleLeaveRoom(conn transport.Conn) {
	g.mu.Lock()
	out, left := g.engine.LeaveRoom(conn.ID())
	var notices []outEvent
	if left {
		notices = g.leaveNotices(out, conn.ID())
	}
	g.mu.Unlock()

	g.deliver(notices)
	if left {
		g.log.WithFields(logrus.Fields{
			"conn": conn.ID(),
			"room": out.Code,
		}).Info("left room")
	}
}

func (g *Gateway) handleStartGame(conn transport.Conn) {
	g.mu.Lock()
	out, err := g.engine.StartGame(conn.ID())
	var notices []outEvent
	if err == nil {
		for _, id := range out.Others {
			if peer, ok := g.conns[id]; ok {
				notices = append(notices, outEvent{peer, protocol.EventGameStarted, nil})
			}
		}
	}
	g.mu.Unlock()

	if err != nil {
		conn.SendEvent(protocol.EventRoomError, err.Error())
		return
	}
	g.deliver(notices)

	g.log.WithFields(logrus.Fields{
		"conn": conn.ID(),
		"room": out.Code,
	}).Info("game started")
}

// handleSignal forwards offer/answer/ice-candidate. Malformed payloads are
// dropped silently, matching the relay's best-effort contract.
func (g *Gateway) handleSignal(conn transport.Conn, event string, data json.RawMessage) {
	var p protocol.SignalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.log.WithFields(logrus.Fields{
			"conn":  conn.ID(),
			"event": event,
		}).Debug("dropping malformed signal payload")
		return
	}

	switch event {
	case protocol.EventOffer:
		g.router.RelayOffer(conn.ID(), p.Target, p.SDP)
	case protocol.EventAnswer:
		g.router.RelayAnswer(conn.ID(), p.Target, p.SDP)
	case protocol.EventICECandidate:
		g.router.RelayCandidate(conn.ID(), p.Target, p.Candidate)
	}
}

// disconnect releases the identity, removes the connection from its room
// and drops it from the table, all in one critical section.
func (g *Gateway) disconnect(conn transport.Conn) {
	g.mu.Lock()
	g.ids.Release(conn.ID())
	out, left := g.engine.LeaveRoom(conn.ID())
	var notices []outEvent
	if left {
		notices = g.leaveNotices(out, conn.ID())
	}
	delete(g.conns, conn.ID())
	g.mu.Unlock()

	g.deliver(notices)
	conn.Close("")
}

// leaveNotices resolves the fan-out for a membership removal. Callers must
// hold mu. Each remaining member is told about a host change before the
// departure itself.
func (g *Gateway) leaveNotices(out *room.LeaveOutcome, leftID string) []outEvent {
	var notices []outEvent
	for _, id := range out.Remaining {
		peer, ok := g.conns[id]
		if !ok {
			continue
		}
		if out.NewHost != "" {
			notices = append(notices, outEvent{peer, protocol.EventNewHost, out.NewHost})
		}
		notices = append(notices, outEvent{peer, protocol.EventUserLeft, leftID})
	}
	return notices
}

// userInfo resolves the public identity of a connection. Callers must hold mu.
func (g *Gateway) userInfo(connID string) protocol.UserInfo {
	info := protocol.UserInfo{ID: connID}
	if ident, ok := g.ids.Get(connID); ok {
		info.Nickname = ident.Nickname
		info.DeviceID = ident.DeviceID
	}
	return info
}

// userInfos resolves a set of connection ids. Callers must hold mu.
func (g *Gateway) userInfos(connIDs []string) []protocol.UserInfo {
	infos := make([]protocol.UserInfo, 0, len(connIDs))
	for _, id := range connIDs {
		infos = append(infos, g.userInfo(id))
	}
	return infos
}

// deliver performs queued sends. Never called with mu held.
func (g *Gateway) deliver(notices []outEvent) {
	for _, n := range notices {
		if err := n.conn.SendEvent(n.event, n.data); err != nil {
			g.log.WithFields(logrus.Fields{
				"conn":  n.conn.ID(),
				"event": n.event,
			}).WithError(err).Debug("send failed")
		}
	}
}

// --- relay.Directory ---

// Peer returns a connected peer by id.
func (g *Gateway) Peer(connID string) (transport.Conn, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	conn, ok := g.conns[connID]
	return conn, ok
}

// RoomPeers returns the connections of the other members of the sender's room.
func (g *Gateway) RoomPeers(senderID string) ([]transport.Conn, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids, ok := g.engine.Peers(senderID)
	if !ok {
		return nil, false
	}
	conns := make([]transport.Conn, 0, len(ids))
	for _, id := range ids {
		if conn, found := g.conns[id]; found {
			conns = append(conns, conn)
		}
	}
	return conns, true
}
