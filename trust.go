package roomkeyshare

import (
	"fmt"
	"sync"
)

// StaticTrust is a TrustOracle backed by explicit device sets. It suits
// tests and callers that resolve trust ahead of time; production callers
// typically implement TrustOracle over their device store instead.
type StaticTrust struct {
	mu       sync.RWMutex
	own      map[string]bool
	verified map[string]bool
}

var _ TrustOracle = (*StaticTrust)(nil)

func NewStaticTrust() *StaticTrust {
	return &StaticTrust{
		own:      map[string]bool{},
		verified: map[string]bool{},
	}
}

func deviceKey(userID, deviceID string) string {
	return fmt.Sprintf("%s:%s", userID, deviceID)
}

// AddOwn marks a device as one of the caller's own, verified or not.
func (s *StaticTrust) AddOwn(userID, deviceID string, verified bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := deviceKey(userID, deviceID)
	s.own[k] = true
	if verified {
		s.verified[k] = true
	}
}

// SetVerified marks a device as cryptographically verified.
func (s *StaticTrust) SetVerified(userID, deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified[deviceKey(userID, deviceID)] = true
}

func (s *StaticTrust) IsOwnDevice(userID, deviceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.own[deviceKey(userID, deviceID)]
}

func (s *StaticTrust) IsVerified(userID, deviceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verified[deviceKey(userID, deviceID)]
}
