// Package protocol defines the relay's wire vocabulary: named events with
// JSON payloads, plus helpers for encoding/decoding the envelope.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEnvelope is returned by Decode for frames that are not a
// well-formed event envelope.
var ErrMalformedEnvelope = errors.New("malformed event envelope")

// Envelope frames every message on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode serializes an event with its payload.
func Encode(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode deserializes bytes to an Envelope.
func Decode(data []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedEnvelope)
	}
	return env, nil
}

// Settings are the immutable room parameters supplied at creation.
type Settings struct {
	MaxUsers      int    `json:"maxUsers"`
	AnswerTime    int    `json:"answerTime"`
	QuestionCount int    `json:"questionCount"`
	IsPrivate     bool   `json:"isPrivate"`
	Password      string `json:"password,omitempty"`
	RoomName      string `json:"roomName"`
}

// CreateRoomRequest is the create-room payload. RoomID is optional; when
// empty the relay assigns a code.
type CreateRoomRequest struct {
	RoomID   string   `json:"roomId,omitempty"`
	Settings Settings `json:"settings"`
}

// JoinRoomRequest is the join-room payload. Clients may send either an
// object or a bare room code string.
type JoinRoomRequest struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password,omitempty"`
}

// UnmarshalJSON accepts both `{"roomId":"123456"}` and `"123456"`.
func (r *JoinRoomRequest) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err == nil {
		r.RoomID = code
		r.Password = ""
		return nil
	}
	type plain JoinRoomRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = JoinRoomRequest(p)
	return nil
}

// SignalPayload carries a targeted offer, answer or ICE candidate. The
// relay never looks inside SDP or Candidate. From is filled in by the relay
// before forwarding.
type SignalPayload struct {
	Target    string          `json:"target,omitempty"`
	From      string          `json:"from,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// UserInfo is the public identity of a room member.
type UserInfo struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	DeviceID string `json:"deviceId"`
}

// RoomCreated is the response to create-room.
type RoomCreated struct {
	Success bool   `json:"success"`
	RoomID  string `json:"roomId"`
}

// RoomJoined is sent to a connection that entered a room.
type RoomJoined struct {
	Settings    Settings `json:"settings"`
	GameStarted bool     `json:"gameStarted"`
	Host        string   `json:"host"`
	RoomID      string   `json:"roomId"`
}

// RoomSummary describes one joinable public room.
type RoomSummary struct {
	RoomID        string `json:"roomId"`
	RoomName      string `json:"roomName"`
	UserCount     int    `json:"userCount"`
	MaxUsers      int    `json:"maxUsers"`
	AnswerTime    int    `json:"answerTime"`
	QuestionCount int    `json:"questionCount"`
}

// GameEvent is an opaque room broadcast, annotated by the relay with the
// sender and a server-assigned timestamp (unix milliseconds).
type GameEvent struct {
	From      string          `json:"from"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewRoomCreated builds the success payload for room-created.
func NewRoomCreated(roomID string) RoomCreated {
	return RoomCreated{Success: true, RoomID: roomID}
}

// NewRoomJoined builds the room-joined payload.
func NewRoomJoined(roomID, host string, settings Settings, started bool) RoomJoined {
	return RoomJoined{
		Settings:    settings,
		GameStarted: started,
		Host:        host,
		RoomID:      roomID,
	}
}

// NewSDP builds a forwarded offer or answer payload.
func NewSDP(from string, sdp json.RawMessage) SignalPayload {
	return SignalPayload{From: from, SDP: sdp}
}

// NewCandidate builds a forwarded ice-candidate payload.
func NewCandidate(from string, candidate json.RawMessage) SignalPayload {
	return SignalPayload{From: from, Candidate: candidate}
}

// NewGameEvent builds an annotated game-event broadcast.
func NewGameEvent(from string, timestamp int64, data json.RawMessage) GameEvent {
	return GameEvent{From: from, Timestamp: timestamp, Data: data}
}
