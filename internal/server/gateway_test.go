package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quizmesh/signalrelay/internal/config"
	"github.com/quizmesh/signalrelay/internal/protocol"
	"github.com/quizmesh/signalrelay/internal/transport"
)

func newTestGateway() *Gateway {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(config.Config{RoomTTL: time.Hour, SweepPeriod: time.Minute}, log)
}

// connect admits a mock connection or fails the test.
func connect(t *testing.T, g *Gateway, id, nickname, deviceID string) *transport.MockConn {
	t.Helper()
	conn := transport.NewMockConn(id)
	if !g.admit(conn, nickname, deviceID) {
		t.Fatalf("admission failed for %s (%s)", id, nickname)
	}
	return conn
}

// send dispatches one inbound event as if read from the wire.
func send(g *Gateway, conn *transport.MockConn, event, payload string) {
	env := &protocol.Envelope{Event: event}
	if payload != "" {
		env.Data = json.RawMessage(payload)
	}
	g.dispatch(conn, env)
}

// createRoom drives create-room and returns the assigned code.
func createRoom(t *testing.T, g *Gateway, conn *transport.MockConn, settings string) string {
	t.Helper()
	send(g, conn, protocol.EventCreateRoom, `{"settings":`+settings+`}`)
	created := conn.SentNamed(protocol.EventRoomCreated)
	if len(created) != 1 {
		t.Fatalf("expected room-created, got %v", conn.Sent())
	}
	payload := created[0].Data.(protocol.RoomCreated)
	if !payload.Success {
		t.Fatal("expected success=true")
	}
	rosters := conn.SentNamed(protocol.EventExistingUsers)
	if len(rosters) != 1 || len(rosters[0].Data.([]protocol.UserInfo)) != 0 {
		t.Fatalf("expected empty existing-users for creator, got %v", rosters)
	}
	conn.Clear()
	return payload.RoomID
}

const twoPlayerSettings = `{"maxUsers":2,"answerTime":30,"questionCount":5,"isPrivate":false,"roomName":"Quiz"}`

func TestAdmissionNicknameTaken(t *testing.T) {
	g := newTestGateway()
	connect(t, g, "conn-1", "Ann", "device-a")

	second := transport.NewMockConn("conn-2")
	if g.admit(second, "Ann", "device-b") {
		t.Fatal("expected admission to fail")
	}
	if len(second.SentNamed(protocol.EventNicknameTaken)) != 1 {
		t.Errorf("expected nickname-taken event, got %v", second.Sent())
	}
	if !second.Closed() {
		t.Error("expected failed admission to close the connection")
	}

	// Same device reclaiming a new nickname succeeds.
	third := transport.NewMockConn("conn-3")
	if !g.admit(third, "Annie", "device-a") {
		t.Error("expected reconnect-with-rename to succeed")
	}
}

func TestAdmissionMalformedCredentials(t *testing.T) {
	g := newTestGateway()

	conn := transport.NewMockConn("conn-1")
	if g.admit(conn, "", "device-a") {
		t.Fatal("expected admission to fail")
	}
	if len(conn.SentNamed(protocol.EventRoomError)) != 1 {
		t.Errorf("expected room-error, got %v", conn.Sent())
	}
	if !conn.Closed() {
		t.Error("expected connection closed")
	}
}

func TestCreateJoinHostDisconnectScenario(t *testing.T) {
	g := newTestGateway()
	host := connect(t, g, "conn-a", "Ann", "device-a")
	guest := connect(t, g, "conn-b", "Ben", "device-b")

	code := createRoom(t, g, host, twoPlayerSettings)
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}

	send(g, guest, protocol.EventJoinRoom, `{"roomId":"`+code+`"}`)

	joined := guest.SentNamed(protocol.EventRoomJoined)
	if len(joined) != 1 {
		t.Fatalf("expected room-joined, got %v", guest.Sent())
	}
	payload := joined[0].Data.(protocol.RoomJoined)
	if payload.RoomID != code || payload.Host != "conn-a" || payload.GameStarted {
		t.Errorf("unexpected room-joined payload: %+v", payload)
	}

	existing := guest.SentNamed(protocol.EventExistingUsers)
	if len(existing) != 1 {
		t.Fatalf("expected existing-users, got %v", guest.Sent())
	}
	roster := existing[0].Data.([]protocol.UserInfo)
	if len(roster) != 1 || roster[0].ID != "conn-a" || roster[0].Nickname != "Ann" || roster[0].DeviceID != "device-a" {
		t.Errorf("unexpected roster: %+v", roster)
	}

	joinedNotice := host.SentNamed(protocol.EventUserJoined)
	if len(joinedNotice) != 1 {
		t.Fatalf("expected user-joined at host, got %v", host.Sent())
	}
	joiner := joinedNotice[0].Data.(protocol.UserInfo)
	if joiner.ID != "conn-b" || joiner.Nickname != "Ben" {
		t.Errorf("unexpected user-joined payload: %+v", joiner)
	}

	// Host disconnects: guest sees new-host naming itself, then user-left.
	guest.Clear()
	g.disconnect(host)

	events := guest.Sent()
	if len(events) != 2 {
		t.Fatalf("expected 2 events after host disconnect, got %v", events)
	}
	if events[0].Event != protocol.EventNewHost || events[0].Data != "conn-b" {
		t.Errorf("expected new-host conn-b first, got %+v", events[0])
	}
	if events[1].Event != protocol.EventUserLeft || events[1].Data != "conn-a" {
		t.Errorf("expected user-left conn-a second, got %+v", events[1])
	}

	// Exactly one new-host notification total.
	if n := len(guest.SentNamed(protocol.EventNewHost)); n != 1 {
		t.Errorf("expected exactly 1 new-host, got %d", n)
	}

	// The freed nickname is claimable again.
	late := transport.NewMockConn("conn-c")
	if !g.admit(late, "Ann", "device-c") {
		t.Error("expected nickname released on disconnect")
	}
}

func TestJoinNonexistentRoom(t *testing.T) {
	g := newTestGateway()
	conn := connect(t, g, "conn-1", "Ann", "device-a")

	send(g, conn, protocol.EventJoinRoom, `{"roomId":"000000"}`)

	errs := conn.SentNamed(protocol.EventRoomError)
	if len(errs) != 1 {
		t.Fatalf("expected room-error, got %v", conn.Sent())
	}
	if errs[0].Data != "room not found" {
		t.Errorf("unexpected reason: %v", errs[0].Data)
	}
}

func TestJoinBareStringForm(t *testing.T) {
	g := newTestGateway()
	host := connect(t, g, "conn-1", "Ann", "device-a")
	guest := connect(t, g, "conn-2", "Ben", "device-b")

	code := createRoom(t, g, host, twoPlayerSettings)
	send(g, guest, protocol.EventJoinRoom, `"`+code+`"`)

	if len(guest.SentNamed(protocol.EventRoomJoined)) != 1 {
		t.Errorf("expected room-joined for bare-string join, got %v", guest.Sent())
	}
}

func TestPrivateRoomPasswordFlow(t *testing.T) {
	g := newTestGateway()
	host := connect(t, g, "conn-1", "Ann", "device-a")
	guest := connect(t, g, "conn-2", "Ben", "device-b")

	code := createRoom(t, g, host,
		`{"maxUsers":4,"answerTime":30,"questionCount":5,"isPrivate":true,"password":"abcde","roomName":"Secret"}`)

	// No password: a distinct prompt-able signal, not a generic error.
	send(g, guest, protocol.EventJoinRoom, `{"roomId":"`+code+`"}`)
	prompts := guest.SentNamed(protocol.EventPasswordRequired)
	if len(prompts) != 1 || prompts[0].Data != code {
		t.Fatalf("expected password-required with room id, got %v", guest.Sent())
	}
	if len(guest.SentNamed(protocol.EventRoomError)) != 0 {
		t.Error("missing password must not produce room-error")
	}

	send(g, guest, protocol.EventJoinRoom, `{"roomId":"`+code+`","password":"wrong"}`)
	if len(guest.SentNamed(protocol.EventRoomError)) != 1 {
		t.Errorf("expected room-error for wrong password, got %v", guest.Sent())
	}

	send(g, guest, protocol.EventJoinRoom, `{"roomId":"`+code+`","password":"abcde"}`)
	if len(guest.SentNamed(protocol.EventRoomJoined)) != 1 {
		t.Errorf("expected room-joined with correct password, got %v", guest.Sent())
	}
}

func TestLeaveRoomIdempotentNoNotifications(t *testing.T) {
	g := newTestGateway()
	conn := connect(t, g, "conn-1", "Ann", "device-a")
	other := connect(t, g, "conn-2", "Ben", "device-b")

	send(g, conn, protocol.EventLeaveRoom, "")
	send(g, conn, protocol.EventLeaveRoom, "")

	if len(conn.Sent()) != 0 {
		t.Errorf("expected no events to the leaver, got %v", conn.Sent())
	}
	if len(other.Sent()) != 0 {
		t.Errorf("expected no notifications, got %v", other.Sent())
	}
}

func TestStartGameFlow(t *testing.T) {
	g := newTestGateway()
	host := connect(t, g, "conn-1", "Ann", "device-a")
	guest := connect(t, g, "conn-2", "Ben", "device-b")

	code := createRoom(t, g, host, twoPlayerSettings)
	send(g, guest, protocol.EventJoinRoom, `{"roomId":"`+code+`"}`)
	host.Clear()
	guest.Clear()

	// Non-host cannot start.
	send(g, guest, protocol.EventStartGame, "")
	if len(guest.SentNamed(protocol.EventRoomError)) != 1 {
		t.Fatalf("expected room-error for non-host, got %v", guest.Sent())
	}
	if len(host.SentNamed(protocol.EventGameStarted)) != 0 {
		t.Error("non-host start must not broadcast game-started")
	}

	send(g, host, protocol.EventStartGame, "")
	if len(guest.SentNamed(protocol.EventGameStarted)) != 1 {
		t.Errorf("expected game-started at guest, got %v", guest.Sent())
	}

	// Started rooms reject new joins.
	late := connect(t, g, "conn-3", "Cal", "device-c")
	send(g, late, protocol.EventJoinRoom, `{"roomId":"`+code+`"}`)
	if len(late.SentNamed(protocol.EventRoomError)) != 1 {
		t.Errorf("expected room-error joining started game, got %v", late.Sent())
	}
}

func TestGetPublicRooms(t *testing.T) {
	g := newTestGateway()
	host := connect(t, g, "conn-1", "Ann", "device-a")
	viewer := connect(t, g, "conn-2", "Ben", "device-b")

	code := createRoom(t, g, host, twoPlayerSettings)
	send(g, viewer, protocol.EventGetPublicRooms, "")

	lists := viewer.SentNamed(protocol.EventPublicRooms)
	if len(lists) != 1 {
		t.Fatalf("expected public-rooms, got %v", viewer.Sent())
	}
	summaries := lists[0].Data.([]protocol.RoomSummary)
	if len(summaries) != 1 || summaries[0].RoomID != code {
		t.Errorf("unexpected summaries: %+v", summaries)
	}
	if summaries[0].UserCount != 1 || summaries[0].MaxUsers != 2 {
		t.Errorf("unexpected counts: %+v", summaries[0])
	}
}

func TestOfferRelayedToTarget(t *testing.T) {
	g := newTestGateway()
	caller := connect(t, g, "conn-1", "Ann", "device-a")
	callee := connect(t, g, "conn-2", "Ben", "device-b")

	send(g, caller, protocol.EventOffer, `{"target":"conn-2","sdp":{"type":"offer","sdp":"v=0"}}`)

	offers := callee.SentNamed(protocol.EventOffer)
	if len(offers) != 1 {
		t.Fatalf("expected forwarded offer, got %v", callee.Sent())
	}
	payload := offers[0].Data.(protocol.SignalPayload)
	if payload.From != "conn-1" {
		t.Errorf("expected from conn-1, got %s", payload.From)
	}

	// Unknown target: silent drop, no error back to the sender.
	send(g, caller, protocol.EventOffer, `{"target":"conn-9","sdp":{"type":"offer"}}`)
	if len(caller.SentNamed(protocol.EventRoomError)) != 0 {
		t.Errorf("relay drop must not surface an error, got %v", caller.Sent())
	}
}

func TestGameEventBroadcast(t *testing.T) {
	g := newTestGateway()
	host := connect(t, g, "conn-1", "Ann", "device-a")
	guest := connect(t, g, "conn-2", "Ben", "device-b")
	outsider := connect(t, g, "conn-3", "Cal", "device-c")

	code := createRoom(t, g, host, twoPlayerSettings)
	send(g, guest, protocol.EventJoinRoom, `{"roomId":"`+code+`"}`)
	host.Clear()
	guest.Clear()

	send(g, host, protocol.EventGameEvent, `{"answer":3}`)

	events := guest.SentNamed(protocol.EventGameEvent)
	if len(events) != 1 {
		t.Fatalf("expected game-event at guest, got %v", guest.Sent())
	}
	event := events[0].Data.(protocol.GameEvent)
	if event.From != "conn-1" || event.Timestamp == 0 {
		t.Errorf("expected annotated event, got %+v", event)
	}
	if len(outsider.Sent()) != 0 {
		t.Errorf("outsider must not receive room broadcasts, got %v", outsider.Sent())
	}

	// Sender outside any room is dropped.
	send(g, outsider, protocol.EventGameEvent, `{"answer":1}`)
	if len(host.SentNamed(protocol.EventGameEvent)) != 0 {
		t.Error("broadcast from roomless sender must be dropped")
	}
}

func TestSweepEvictsAndNotifies(t *testing.T) {
	g := newTestGateway()
	host := connect(t, g, "conn-1", "Ann", "device-a")
	guest := connect(t, g, "conn-2", "Ben", "device-b")

	code := createRoom(t, g, host, twoPlayerSettings)
	send(g, guest, protocol.EventJoinRoom, `{"roomId":"`+code+`"}`)
	host.Clear()
	guest.Clear()

	g.sweep(time.Now().Add(2 * time.Hour))

	for _, conn := range []*transport.MockConn{host, guest} {
		errs := conn.SentNamed(protocol.EventRoomError)
		if len(errs) != 1 || errs[0].Data != "room expired" {
			t.Errorf("expected eviction notice on %s, got %v", conn.ID(), conn.Sent())
		}
	}

	// Room is gone; rejoin fails.
	guest.Clear()
	send(g, guest, protocol.EventJoinRoom, `{"roomId":"`+code+`"}`)
	if len(guest.SentNamed(protocol.EventRoomError)) != 1 {
		t.Errorf("expected room not found after eviction, got %v", guest.Sent())
	}
}

func TestServeLoopCleansUpOnClose(t *testing.T) {
	g := newTestGateway()
	host := connect(t, g, "conn-1", "Ann", "device-a")
	guest := connect(t, g, "conn-2", "Ben", "device-b")

	code := createRoom(t, g, host, twoPlayerSettings)

	done := make(chan string, 1)
	go func() { done <- g.Serve(guest) }()

	guest.SimulateEvent(protocol.EventJoinRoom, []byte(`{"roomId":"`+code+`"}`))
	guest.SimulateEvent(protocol.EventLeaveRoom, nil)
	guest.Close("going away")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after close")
	}

	// Identity released, connection dropped, nickname claimable.
	late := transport.NewMockConn("conn-3")
	if !g.admit(late, "Ben", "device-c") {
		t.Error("expected nickname released after Serve cleanup")
	}
	if _, ok := g.Peer("conn-2"); ok {
		t.Error("expected connection removed from table")
	}
}

func TestMalformedPayloadsAreSurvivable(t *testing.T) {
	g := newTestGateway()
	conn := connect(t, g, "conn-1", "Ann", "device-a")

	send(g, conn, protocol.EventCreateRoom, `{"settings":`) // invalid JSON
	if len(conn.SentNamed(protocol.EventRoomError)) != 1 {
		t.Errorf("expected room-error for malformed payload, got %v", conn.Sent())
	}

	conn.Clear()
	send(g, conn, "no-such-event", `{}`)
	if len(conn.Sent()) != 0 {
		t.Errorf("unknown events should be ignored, got %v", conn.Sent())
	}
}

func TestStatusCounts(t *testing.T) {
	g := newTestGateway()
	host := connect(t, g, "conn-1", "Ann", "device-a")
	connect(t, g, "conn-2", "Ben", "device-b")
	createRoom(t, g, host, twoPlayerSettings)

	rec := httptest.NewRecorder()
	g.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var status StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Status != "ok" {
		t.Errorf("expected status ok, got %q", status.Status)
	}
	if status.Rooms != 1 || status.Connections != 2 || status.Identities != 2 {
		t.Errorf("unexpected counts: %+v", status)
	}
}
