package protocol

// Inbound event names (client -> relay).
const (
	EventCreateRoom     = "create-room"
	EventJoinRoom       = "join-room"
	EventGetPublicRooms = "get-public-rooms"
	EventLeaveRoom      = "leave-room"
	EventStartGame      = "start-game"
	EventOffer          = "offer"
	EventAnswer         = "answer"
	EventICECandidate   = "ice-candidate"
	EventGameEvent      = "game-event"
)

// Outbound event names (relay -> client).
const (
	EventRoomCreated      = "room-created"
	EventRoomJoined       = "room-joined"
	EventExistingUsers    = "existing-users"
	EventUserJoined       = "user-joined"
	EventUserLeft         = "user-left"
	EventNewHost          = "new-host"
	EventPasswordRequired = "password-required"
	EventPublicRooms      = "public-rooms"
	EventGameStarted      = "game-started"
	EventRoomError        = "room-error"
	EventNicknameTaken    = "nickname-taken"
)

// IsSignalEvent reports whether the event carries a targeted WebRTC
// negotiation payload that the relay forwards without inspection.
func IsSignalEvent(event string) bool {
	switch event {
	case EventOffer, EventAnswer, EventICECandidate:
		return true
	}
	return false
}
