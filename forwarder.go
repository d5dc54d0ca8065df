// Package roomkeyshare decides whether, and from which message index, a
// room's group-encryption session key may be forwarded to a requesting
// device. It combines a pure decision procedure with a write-once sharing
// history; the cryptography, wire encoding and transport of the resulting
// share or refusal belong to the caller.
package roomkeyshare

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"roomkeyshare/internal/policy"
	"roomkeyshare/internal/registry"
	"roomkeyshare/internal/session"
)

// DeviceRequest describes an inbound key request.
type DeviceRequest = policy.DeviceRequest

// Decision is the outcome of evaluating a key request.
type Decision = policy.Decision

// TrustFacts is a snapshot of trust-oracle answers for a device.
type TrustFacts = policy.TrustFacts

// OutboundSession is the sender-side session state for a room.
type OutboundSession = policy.OutboundSession

// SharingRecord proves a device was granted access starting at an index.
type SharingRecord = policy.SharingRecord

// Decision outcomes and refusal reasons.
const (
	ShareFull      = policy.ShareFull
	ShareFromIndex = policy.ShareFromIndex
	Refuse         = policy.Refuse

	RefuseChangedIdentityKey = policy.RefuseChangedIdentityKey
	RefuseNeverShared        = policy.RefuseNeverShared
	RefuseUntrustedOwnDevice = policy.RefuseUntrustedOwnDevice
	RefuseNoOutboundSession  = policy.RefuseNoOutboundSession
)

// Decide is the pure decision procedure; see policy.Decide. Most callers
// want Forwarder.HandleRequest, which also consults and maintains the
// sharing history.
func Decide(req DeviceRequest, trust TrustFacts, sess *OutboundSession, rec *SharingRecord) Decision {
	return policy.Decide(req, trust, sess, rec)
}

// TrustOracle answers device-trust questions. Implemented by the caller's
// device store; this package never manages device identities itself.
type TrustOracle interface {
	IsOwnDevice(userID, deviceID string) bool
	IsVerified(userID, deviceID string) bool
}

// Forwarder ties the decision procedure to an outbound-session store and a
// sharing-history registry, serializing the lookup-decide-record sequence
// per (session, user, device) key.
type Forwarder struct {
	trust    TrustOracle
	sessions *session.Store
	registry registry.Registry
	logger   *log.Logger

	mu    sync.Mutex
	locks map[registry.Key]*sync.Mutex

	// rotateMu excludes session rotation from the lookup-decide-record
	// sequence: a record written concurrently with a rotation could land
	// under an already-invalidated session ID and outlive its retirement.
	// Held for reading by HandleRequest/MarkShared, for writing by
	// RotateSession; requests on distinct keys still run in parallel.
	rotateMu sync.RWMutex
}

// Option configures a Forwarder.
type Option func(*Forwarder) error

// WithLogger sets the logger for decision diagnostics.
// If not set, logging is disabled.
func WithLogger(l *log.Logger) Option {
	return func(f *Forwarder) error { f.logger = l; return nil }
}

// WithDBPath backs the sharing history with a SQLite database at the given
// path instead of the default in-memory registry, so history survives
// restarts for as long as its session stays active.
func WithDBPath(path string) Option {
	return func(f *Forwarder) error {
		r, err := registry.OpenSQLite(path)
		if err != nil {
			return err
		}
		f.registry = r
		return nil
	}
}

// New creates a Forwarder consulting the given trust oracle. By default the
// sharing history is kept in memory; see WithDBPath.
func New(oracle TrustOracle, opts ...Option) (*Forwarder, error) {
	f := &Forwarder{
		trust:    oracle,
		sessions: session.NewStore(),
		registry: registry.NewMemory(),
		locks:    map[registry.Key]*sync.Mutex{},
	}
	for _, o := range opts {
		if err := o(f); err != nil {
			return nil, fmt.Errorf("forwarder: %w", err)
		}
	}
	return f, nil
}

// Close releases the underlying registry.
func (f *Forwarder) Close() error {
	return f.registry.Close()
}

// logf logs a message if the logger is non-nil.
func logf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}

// lockKey acquires the per-key mutex for the lookup-decide-record critical
// section. Requests on distinct keys proceed in parallel.
func (f *Forwarder) lockKey(k registry.Key) func() {
	f.mu.Lock()
	l, ok := f.locks[k]
	if !ok {
		l = &sync.Mutex{}
		f.locks[k] = l
	}
	f.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// dropSessionLocks discards per-key mutexes of a retired session.
func (f *Forwarder) dropSessionLocks(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.locks {
		if k.SessionID == sessionID {
			delete(f.locks, k)
		}
	}
}

// HandleRequest evaluates a key request and, when the decision grants
// material to a device with no prior record, records the share so later
// re-requests are extended from exactly the same index. The whole
// lookup-decide-record sequence runs under a per-key critical section.
//
// The returned error reports registry I/O failures only; every policy
// outcome, including all refusals, is carried by the Decision itself.
func (f *Forwarder) HandleRequest(req DeviceRequest) (Decision, error) {
	trust := TrustFacts{
		OwnDevice: f.trust.IsOwnDevice(req.UserID, req.DeviceID),
		Verified:  f.trust.IsVerified(req.UserID, req.DeviceID),
	}

	f.rotateMu.RLock()
	defer f.rotateMu.RUnlock()

	sess := f.sessions.Active(req.RoomID)

	// History is keyed by the active session when one exists: a request
	// naming a rotated session must not resurrect the old trust slate.
	key := registry.Key{SessionID: req.SessionID, UserID: req.UserID, DeviceID: req.DeviceID}
	if sess != nil {
		key.SessionID = sess.SessionID
	}

	unlock := f.lockKey(key)
	defer unlock()

	rec, err := f.registry.Lookup(key)
	if err != nil {
		return Decision{}, fmt.Errorf("forwarder: lookup history: %w", err)
	}

	d := policy.Decide(req, trust, sess, rec)

	if d.Shares() && rec == nil && sess != nil {
		// A share with no prior record is a full share from the earliest
		// known index; ShareFromIndex always has a record behind it.
		err := f.registry.RecordShare(key, sess.EarliestKnownIndex, req.IdentityKey)
		switch {
		case err == nil:
		case errors.Is(err, registry.ErrAlreadyRecorded):
			// Another process committed the canonical record between our
			// lookup and write. The decision already issued is still valid
			// for this call; the winner governs future ones.
			logf(f.logger, "share for %s/%s/%s already recorded elsewhere",
				key.SessionID, key.UserID, key.DeviceID)
		default:
			return Decision{}, fmt.Errorf("forwarder: record share: %w", err)
		}
	}

	if d.Outcome == Refuse {
		logf(f.logger, "refused key request room=%s session=%s user=%s device=%s reason=%s",
			req.RoomID, req.SessionID, req.UserID, req.DeviceID, d.Reason)
	}
	return d, nil
}

// LookupRecord returns the sharing record for a (session, user, device)
// triple, or nil if none exists. Read-only; intended for diagnostics.
func (f *Forwarder) LookupRecord(sessionID, userID, deviceID string) (*SharingRecord, error) {
	rec, err := f.registry.Lookup(registry.Key{SessionID: sessionID, UserID: userID, DeviceID: deviceID})
	if err != nil {
		return nil, fmt.Errorf("forwarder: lookup history: %w", err)
	}
	return rec, nil
}

// MarkShared records that the sender deliberately shared the room's active
// session with a device at the session's current index. This is the
// sender-initiated counterpart of HandleRequest: it seeds the history that
// later re-requests from the same device are extended from. If a record
// already exists it is left untouched and MarkShared reports success.
func (f *Forwarder) MarkShared(roomID, userID, deviceID, identityKey string) error {
	f.rotateMu.RLock()
	defer f.rotateMu.RUnlock()

	sess := f.sessions.Active(roomID)
	if sess == nil {
		return fmt.Errorf("forwarder: room %s has no active session", roomID)
	}

	key := registry.Key{SessionID: sess.SessionID, UserID: userID, DeviceID: deviceID}
	unlock := f.lockKey(key)
	defer unlock()

	err := f.registry.RecordShare(key, sess.CurrentIndex, identityKey)
	if err != nil && !errors.Is(err, registry.ErrAlreadyRecorded) {
		return fmt.Errorf("forwarder: mark shared: %w", err)
	}
	return nil
}

// CreateSession establishes a new outbound session for a room starting at
// the given index. Fails if the room already has one; use RotateSession to
// replace it.
func (f *Forwarder) CreateSession(roomID string, earliest uint32) (OutboundSession, error) {
	return f.sessions.Create(roomID, earliest)
}

// AdvanceSession bumps the room's session index by one, reflecting a
// message encrypted with it, and returns the new index.
func (f *Forwarder) AdvanceSession(roomID string) (uint32, error) {
	return f.sessions.Advance(roomID)
}

// ActiveSession returns a snapshot of the room's active outbound session,
// or nil if the room has none.
func (f *Forwarder) ActiveSession(roomID string) *OutboundSession {
	return f.sessions.Active(roomID)
}

// RotateSession replaces the room's outbound session with a fresh one and
// discards the retired session's sharing records: a rotated session starts
// with a clean trust slate. This is also the remediation path when a
// device's identity key legitimately changed — re-share after rotation
// re-establishes trust under the new key.
func (f *Forwarder) RotateSession(roomID string) (OutboundSession, error) {
	f.rotateMu.Lock()
	defer f.rotateMu.Unlock()

	retired, fresh := f.sessions.Rotate(roomID)
	if retired != nil {
		if err := f.registry.InvalidateSession(retired.SessionID); err != nil {
			return OutboundSession{}, fmt.Errorf("forwarder: invalidate retired session: %w", err)
		}
		f.dropSessionLocks(retired.SessionID)
		logf(f.logger, "rotated session for %s: %s -> %s", roomID, retired.SessionID, fresh.SessionID)
	}
	return fresh, nil
}
