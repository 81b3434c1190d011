package room

import "github.com/quizmesh/signalrelay/internal/protocol"

// Validation bounds for room settings. All ranges are inclusive.
const (
	MinUsers = 2
	MaxUsers = 10

	MinAnswerTime = 5
	MaxAnswerTime = 60

	MinQuestions = 1
	MaxQuestions = 50

	MinRoomNameLen = 3
	MaxRoomNameLen = 30

	PasswordLen = 5
)

// ValidateSettings checks every bound; a single violation rejects the
// settings as a whole. A password is required, and must be exactly
// PasswordLen characters, iff the room is private.
func ValidateSettings(s protocol.Settings) bool {
	if s.MaxUsers < MinUsers || s.MaxUsers > MaxUsers {
		return false
	}
	if s.AnswerTime < MinAnswerTime || s.AnswerTime > MaxAnswerTime {
		return false
	}
	if s.QuestionCount < MinQuestions || s.QuestionCount > MaxQuestions {
		return false
	}
	if len(s.RoomName) < MinRoomNameLen || len(s.RoomName) > MaxRoomNameLen {
		return false
	}
	if s.IsPrivate {
		return len(s.Password) == PasswordLen
	}
	return s.Password == ""
}
