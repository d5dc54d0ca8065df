// Package registry tracks which devices a group session has been shared
// with, and at which message index. Records are write-once: a session must
// never be re-shared from an earlier index than already granted, and the
// identity key observed at share time must never be overwritten.
package registry

import (
	"errors"
	"sync"

	"roomkeyshare/internal/policy"
)

// ErrAlreadyRecorded is returned by RecordShare when a record already exists
// for the key. It signals a lost race, not a failure: callers must re-Lookup
// and defer to the winning record rather than overwrite it.
var ErrAlreadyRecorded = errors.New("registry: share already recorded")

// Key identifies a sharing record.
type Key struct {
	SessionID string
	UserID    string
	DeviceID  string
}

// Registry is the sharing-history store consulted by the decision engine.
type Registry interface {
	// Lookup returns the record for the key, or nil if none exists.
	Lookup(k Key) (*policy.SharingRecord, error)

	// RecordShare inserts a record if and only if none exists for the key.
	// Returns ErrAlreadyRecorded otherwise, leaving the existing record
	// untouched.
	RecordShare(k Key, sharedAtIndex uint32, identityKey string) error

	// InvalidateSession discards all records for a rotated or retired
	// session. A rotated session starts with a clean trust slate.
	InvalidateSession(sessionID string) error

	Close() error
}

// Memory is an in-memory Registry.
type Memory struct {
	mu      sync.Mutex
	records map[Key]policy.SharingRecord
}

var _ Registry = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: map[Key]policy.SharingRecord{}}
}

func (m *Memory) Lookup(k Key) (*policy.SharingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[k]
	if !ok {
		return nil, nil
	}
	// Return a copy so the caller owns it.
	return &rec, nil
}

func (m *Memory) RecordShare(k Key, sharedAtIndex uint32, identityKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[k]; ok {
		return ErrAlreadyRecorded
	}
	m.records[k] = policy.SharingRecord{
		SessionID:     k.SessionID,
		UserID:        k.UserID,
		DeviceID:      k.DeviceID,
		SharedAtIndex: sharedAtIndex,
		IdentityKey:   identityKey,
	}
	return nil
}

func (m *Memory) InvalidateSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.records {
		if k.SessionID == sessionID {
			delete(m.records, k)
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }
