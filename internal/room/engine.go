package room

import (
	"sort"
	"time"

	"github.com/quizmesh/signalrelay/internal/protocol"
)

// codeAttempts bounds collision retries when generating a room code. After
// the last attempt the generated value is used as-is; at 6 random digits a
// lingering collision is vanishingly unlikely and the engine must not loop
// unboundedly.
const codeAttempts = 10

// Engine is the room lifecycle state machine. It owns the Store and is the
// only path for mutating membership. Callers serialize all calls behind a
// single mutation lock; methods return notification sets so the actual
// sends can happen after that lock is released.
type Engine struct {
	store *Store
	ttl   time.Duration
	now   func() time.Time
}

// NewEngine creates an engine whose rooms are evicted once older than ttl.
func NewEngine(ttl time.Duration) *Engine {
	return &Engine{
		store: NewStore(),
		ttl:   ttl,
		now:   time.Now,
	}
}

// CreateOutcome reports a successful room creation.
type CreateOutcome struct {
	Code string

	// PriorLeave is set when the creator was still in another room and was
	// removed from it first.
	PriorLeave *LeaveOutcome
}

// JoinOutcome reports a successful join.
type JoinOutcome struct {
	Code     string
	Settings protocol.Settings
	Started  bool
	Host     string

	// Existing are the connection ids that were members before this join.
	Existing []string

	// PriorLeave is set when the joiner was still in another room.
	PriorLeave *LeaveOutcome
}

// LeaveOutcome reports a membership removal.
type LeaveOutcome struct {
	Code    string
	Deleted bool

	// NewHost is the re-elected host connection id, or empty when the host
	// did not change (or the room was deleted).
	NewHost string

	// Remaining are the member connection ids left in the room.
	Remaining []string
}

// StartOutcome reports a successful game start.
type StartOutcome struct {
	Code   string
	Others []string
}

// Evicted describes one room removed by the janitor sweep.
type Evicted struct {
	Code    string
	Members []string
}

// CreateRoom validates settings, assigns a code and creates the room with
// the caller as sole member and host. A requested code must match the fixed
// format and be free; with no request a random code is generated with a
// bounded number of collision retries.
func (e *Engine) CreateRoom(connID string, settings protocol.Settings, requested string) (*CreateOutcome, error) {
	// Code problems are reported regardless of settings validity.
	code := requested
	if code != "" {
		if !ValidCode(code) {
			return nil, ErrMalformedCode
		}
		if e.store.Exists(code) {
			return nil, ErrCodeTaken
		}
	}
	if !ValidateSettings(settings) {
		return nil, ErrInvalidSettings
	}

	if code == "" {
		for i := 0; i < codeAttempts; i++ {
			code = generateCode()
			if !e.store.Exists(code) {
				break
			}
		}
	}

	out := &CreateOutcome{Code: code}

	// A connection belongs to at most one room.
	if prior, left := e.LeaveRoom(connID); left {
		out.PriorLeave = prior
	}

	r := &Room{
		Code:      code,
		Host:      connID,
		Members:   map[string]struct{}{connID: {}},
		Settings:  settings,
		CreatedAt: e.now(),
	}
	e.store.Put(r)
	return out, nil
}

// JoinRoom adds a connection to a room after the privacy, capacity and
// state checks. The returned outcome carries the roster the joiner needs
// and the ids to notify.
func (e *Engine) JoinRoom(connID, code, password string) (*JoinOutcome, error) {
	r, ok := e.store.Get(code)
	if !ok {
		return nil, ErrNotFound
	}
	if r.Settings.IsPrivate {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if password != r.Settings.Password {
			return nil, ErrWrongPassword
		}
	}
	if r.Started {
		return nil, ErrAlreadyStarted
	}
	if len(r.Members) == r.Settings.MaxUsers {
		return nil, ErrRoomFull
	}
	if r.IsMember(connID) {
		return nil, ErrAlreadyMember
	}

	out := &JoinOutcome{
		Code:     code,
		Settings: r.Settings,
		Started:  r.Started,
		Host:     r.Host,
		Existing: r.MemberIDs(),
	}

	if prior, left := e.LeaveRoom(connID); left {
		out.PriorLeave = prior
	}
	e.store.AddMember(r, connID)
	return out, nil
}

// LeaveRoom removes the connection from whatever room it is in. The second
// return is false when the connection was not a member of any room; calling
// it again is a no-op.
func (e *Engine) LeaveRoom(connID string) (*LeaveOutcome, bool) {
	code, ok := e.store.CodeOf(connID)
	if !ok {
		return nil, false
	}
	r, ok := e.store.Get(code)
	if !ok {
		return nil, false
	}
	return e.removeMember(r, connID), true
}

// removeMember is the primitive behind leave, disconnect and eviction. An
// empty room is deleted; otherwise a departing host is replaced by the
// remaining member with the lowest connection id, which keeps re-election
// deterministic.
func (e *Engine) removeMember(r *Room, connID string) *LeaveOutcome {
	e.store.DropMember(r, connID)

	out := &LeaveOutcome{Code: r.Code, Remaining: r.MemberIDs()}
	if len(r.Members) == 0 {
		e.store.Delete(r.Code)
		out.Deleted = true
		return out
	}

	if r.Host == connID {
		sort.Strings(out.Remaining)
		r.Host = out.Remaining[0]
		out.NewHost = r.Host
	}
	return out
}

// StartGame flips the started flag. Only the host may start, only once, and
// only with at least two members present.
func (e *Engine) StartGame(connID string) (*StartOutcome, error) {
	code, ok := e.store.CodeOf(connID)
	if !ok {
		return nil, ErrNotFound
	}
	r, _ := e.store.Get(code)
	if r.Host != connID {
		return nil, ErrNotHost
	}
	if r.Started {
		return nil, ErrAlreadyStarted
	}
	if len(r.Members) < MinUsers {
		return nil, ErrInsufficientPlayers
	}

	r.Started = true
	out := &StartOutcome{Code: code}
	for id := range r.Members {
		if id != connID {
			out.Others = append(out.Others, id)
		}
	}
	return out, nil
}

// ListPublicRooms summarizes every room that is neither private nor
// started. Order follows store iteration.
func (e *Engine) ListPublicRooms() []protocol.RoomSummary {
	summaries := make([]protocol.RoomSummary, 0)
	e.store.Each(func(r *Room) {
		if !r.Settings.IsPrivate && !r.Started {
			summaries = append(summaries, r.Summary())
		}
	})
	return summaries
}

// Peers returns the other members of the sender's room, or false when the
// sender is not in a room.
func (e *Engine) Peers(connID string) ([]string, bool) {
	code, ok := e.store.CodeOf(connID)
	if !ok {
		return nil, false
	}
	r, ok := e.store.Get(code)
	if !ok {
		return nil, false
	}
	peers := make([]string, 0, len(r.Members)-1)
	for id := range r.Members {
		if id != connID {
			peers = append(peers, id)
		}
	}
	return peers, true
}

// CodeOf returns the room code the connection belongs to.
func (e *Engine) CodeOf(connID string) (string, bool) {
	return e.store.CodeOf(connID)
}

// RoomCount returns the number of live rooms.
func (e *Engine) RoomCount() int {
	return e.store.Count()
}

// Sweep deletes every room whose age exceeds the TTL, regardless of
// activity, and reports the evicted rooms with their former members.
func (e *Engine) Sweep(now time.Time) []Evicted {
	var evicted []Evicted
	for _, code := range e.store.ExpiredCodes(now, e.ttl) {
		r, ok := e.store.Get(code)
		if !ok {
			continue
		}
		evicted = append(evicted, Evicted{Code: code, Members: r.MemberIDs()})
		e.store.Delete(code)
	}
	return evicted
}
