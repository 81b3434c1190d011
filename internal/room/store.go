package room

import "time"

// Store maps room codes to rooms and keeps the reverse index from member
// connection to room code. Like the identity registry, it is not
// self-locking: all access happens under the gateway's mutation lock, so a
// membership change and its index update are always observed together.
type Store struct {
	rooms      map[string]*Room
	memberRoom map[string]string // connection id -> room code
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		rooms:      make(map[string]*Room),
		memberRoom: make(map[string]string),
	}
}

// Get retrieves a room by code.
func (s *Store) Get(code string) (*Room, bool) {
	r, ok := s.rooms[code]
	return r, ok
}

// Exists reports whether a code is taken.
func (s *Store) Exists(code string) bool {
	_, ok := s.rooms[code]
	return ok
}

// Put inserts a room and indexes its current members.
func (s *Store) Put(r *Room) {
	s.rooms[r.Code] = r
	for id := range r.Members {
		s.memberRoom[id] = r.Code
	}
}

// Delete removes a room and all membership back-references for its members.
func (s *Store) Delete(code string) {
	r, ok := s.rooms[code]
	if !ok {
		return
	}
	for id := range r.Members {
		delete(s.memberRoom, id)
	}
	delete(s.rooms, code)
}

// AddMember places a connection in a room and updates the reverse index.
func (s *Store) AddMember(r *Room, connID string) {
	r.Members[connID] = struct{}{}
	s.memberRoom[connID] = r.Code
}

// DropMember removes a connection from a room and the reverse index.
func (s *Store) DropMember(r *Room, connID string) {
	delete(r.Members, connID)
	delete(s.memberRoom, connID)
}

// CodeOf returns the room code a connection currently belongs to.
func (s *Store) CodeOf(connID string) (string, bool) {
	code, ok := s.memberRoom[connID]
	return code, ok
}

// Each calls fn for every room. Iteration order is unspecified.
func (s *Store) Each(fn func(*Room)) {
	for _, r := range s.rooms {
		fn(r)
	}
}

// ExpiredCodes returns the codes of rooms older than ttl at the given time.
func (s *Store) ExpiredCodes(now time.Time, ttl time.Duration) []string {
	var codes []string
	for code, r := range s.rooms {
		if now.Sub(r.CreatedAt) > ttl {
			codes = append(codes, code)
		}
	}
	return codes
}

// Count returns the total number of rooms.
func (s *Store) Count() int {
	return len(s.rooms)
}
