// Package room owns the room store and the membership state machine:
// creation, joining, host election, game start and age-based eviction.
package room

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/quizmesh/signalrelay/internal/protocol"
)

// CodeLen is the fixed length of a room code: 6 ASCII digits.
const CodeLen = 6

// Room is one game room. Fields are mutated only through the Engine.
type Room struct {
	Code      string
	Host      string
	Members   map[string]struct{} // connection ids
	Settings  protocol.Settings
	Started   bool
	CreatedAt time.Time
}

// ValidCode reports whether a code matches the fixed 6-digit format.
func ValidCode(code string) bool {
	if len(code) != CodeLen {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// generateCode creates a uniformly random 6-digit room code.
func generateCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		// crypto/rand failing means the process is in no shape to run.
		panic(err)
	}
	return fmt.Sprintf("%06d", n.Int64())
}

// MemberIDs returns the member connection ids in unspecified order.
func (r *Room) MemberIDs() []string {
	ids := make([]string, 0, len(r.Members))
	for id := range r.Members {
		ids = append(ids, id)
	}
	return ids
}

// IsMember reports whether the connection is in the room.
func (r *Room) IsMember(connID string) bool {
	_, ok := r.Members[connID]
	return ok
}

// Summary produces the public listing entry for the room.
func (r *Room) Summary() protocol.RoomSummary {
	return protocol.RoomSummary{
		RoomID:        r.Code,
		RoomName:      r.Settings.RoomName,
		UserCount:     len(r.Members),
		MaxUsers:      r.Settings.MaxUsers,
		AnswerTime:    r.Settings.AnswerTime,
		QuestionCount: r.Settings.QuestionCount,
	}
}
