// Package session keeps the per-room outbound group sessions that the
// forwarding policy consults. It only tracks session metadata (IDs and
// indices); the actual ratchet state and cryptography live with the caller.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"roomkeyshare/internal/policy"
)

// Store is an in-memory table of active outbound sessions, one per room.
type Store struct {
	mu    sync.Mutex
	rooms map[string]policy.OutboundSession
}

func NewStore() *Store {
	return &Store{rooms: map[string]policy.OutboundSession{}}
}

// Active returns a snapshot of the room's active outbound session, or nil
// if the room has none.
func (s *Store) Active(roomID string) *policy.OutboundSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	return &sess
}

// Create establishes a new outbound session for a room with a freshly
// minted session ID. The earliest known index and current index both start
// at earliest. Fails if the room already has an active session; rotate it
// instead.
func (s *Store) Create(roomID string, earliest uint32) (policy.OutboundSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; ok {
		return policy.OutboundSession{}, fmt.Errorf("session: room %s already has an active session", roomID)
	}
	sess := policy.OutboundSession{
		SessionID:          uuid.NewString(),
		RoomID:             roomID,
		EarliestKnownIndex: earliest,
		CurrentIndex:       earliest,
	}
	s.rooms[roomID] = sess
	return sess, nil
}

// Advance bumps the session's current index by one, reflecting a message
// encrypted with it, and returns the new index.
func (s *Store) Advance(roomID string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.rooms[roomID]
	if !ok {
		return 0, fmt.Errorf("session: room %s has no active session", roomID)
	}
	sess.CurrentIndex++
	s.rooms[roomID] = sess
	return sess.CurrentIndex, nil
}

// Rotate replaces the room's session wholesale with a fresh one starting at
// index zero. It returns the retired session (nil if the room had none) so
// the caller can cascade the retirement, e.g. by invalidating the retired
// session's sharing records. History never carries over to the replacement.
func (s *Store) Rotate(roomID string) (retired *policy.OutboundSession, fresh policy.OutboundSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.rooms[roomID]; ok {
		retired = &old
	}
	fresh = policy.OutboundSession{
		SessionID: uuid.NewString(),
		RoomID:    roomID,
	}
	s.rooms[roomID] = fresh
	return retired, fresh
}
