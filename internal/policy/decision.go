// Package policy implements the decision procedure that governs whether a
// room's group-encryption session may be forwarded to a requesting device,
// and from which message index.
package policy

import (
	"crypto/subtle"
	"fmt"
)

// DeviceRequest describes an inbound key request from a device. Immutable
// per request; decoding from the wire happens outside this package.
type DeviceRequest struct {
	UserID      string
	DeviceID    string
	IdentityKey string // the device's long-term public key, used as a fingerprint
	RoomID      string
	SessionID   string
}

// TrustFacts is a snapshot of what the trust oracle knows about the
// requesting device at decision time.
type TrustFacts struct {
	OwnDevice bool
	Verified  bool
}

// OutboundSession is the sender-side session state for a room. It is
// superseded wholesale when the session rotates; sharing history does not
// carry over to the replacement.
type OutboundSession struct {
	SessionID          string
	RoomID             string
	EarliestKnownIndex uint32 // smallest index we still hold key material for
	CurrentIndex       uint32
}

// SharingRecord is the durable proof that a device was granted access to a
// session starting at a specific index. Written at most once per
// (session, user, device) triple and never mutated afterwards.
type SharingRecord struct {
	SessionID     string
	UserID        string
	DeviceID      string
	SharedAtIndex uint32
	IdentityKey   string // the identity key observed at the moment of sharing
}

// Outcome is the kind of forwarding decision.
type Outcome int

const (
	// ShareFull grants the entire session from its earliest known index.
	ShareFull Outcome = iota
	// ShareFromIndex grants a limited session starting at Decision.StartIndex.
	ShareFromIndex
	// Refuse denies the request; Decision.Reason says why.
	Refuse
)

func (o Outcome) String() string {
	switch o {
	case ShareFull:
		return "share-full"
	case ShareFromIndex:
		return "share-from-index"
	case Refuse:
		return "refuse"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// RefuseReason identifies why a request was refused. Each reason implies a
// different remediation, so callers should log the specific tag.
type RefuseReason int

const (
	RefuseNone RefuseReason = iota
	// RefuseChangedIdentityKey: the device identifier is now bound to a
	// different identity key than the one trusted at share time. This is
	// the signature of device replacement or impersonation.
	RefuseChangedIdentityKey
	// RefuseNeverShared: the session was never shared with this device;
	// forwarding must not originate a new trust relationship.
	RefuseNeverShared
	// RefuseUntrustedOwnDevice: our own device, but unverified and never
	// shared with.
	RefuseUntrustedOwnDevice
	// RefuseNoOutboundSession: nothing exists to forward. An absence-of-
	// material failure, not a trust failure.
	RefuseNoOutboundSession
)

func (r RefuseReason) String() string {
	switch r {
	case RefuseNone:
		return "none"
	case RefuseChangedIdentityKey:
		return "changed-identity-key"
	case RefuseNeverShared:
		return "never-shared"
	case RefuseUntrustedOwnDevice:
		return "untrusted-own-device"
	case RefuseNoOutboundSession:
		return "no-outbound-session"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Decision is the single result of evaluating a key request. StartIndex is
// meaningful only for ShareFromIndex, Reason only for Refuse.
type Decision struct {
	Outcome    Outcome
	StartIndex uint32
	Reason     RefuseReason
}

func (d Decision) String() string {
	switch d.Outcome {
	case ShareFromIndex:
		return fmt.Sprintf("%s(%d)", d.Outcome, d.StartIndex)
	case Refuse:
		return fmt.Sprintf("%s(%s)", d.Outcome, d.Reason)
	default:
		return d.Outcome.String()
	}
}

// Shares reports whether the decision grants key material.
func (d Decision) Shares() bool {
	return d.Outcome == ShareFull || d.Outcome == ShareFromIndex
}

func refusal(r RefuseReason) Decision {
	return Decision{Outcome: Refuse, Reason: r}
}

// Decide evaluates a key request against the trust facts, the room's active
// outbound session (nil if none) and the prior sharing record for the
// (session, user, device) triple (nil if none). It is pure and
// deterministic; callers may invoke it concurrently without synchronization.
//
// The branches are ordered; earlier ones pre-empt later ones:
//
//  1. A verified own device gets the full session regardless of history —
//     it already holds equivalent trust to this device.
//  2. With an active session but no prior record, refuse: only an existing
//     share can be extended, never originated here.
//  3. With a prior record, the request's identity key must equal the key
//     recorded at share time; a match re-grants exactly the recorded index
//     (never earlier, never later), a mismatch hard-fails.
//  4. Without an active session the refusal distinguishes an unverified own
//     device from the generic no-material case.
func Decide(req DeviceRequest, trust TrustFacts, session *OutboundSession, record *SharingRecord) Decision {
	if trust.OwnDevice && trust.Verified {
		return Decision{Outcome: ShareFull}
	}

	if session == nil {
		if trust.OwnDevice {
			return refusal(RefuseUntrustedOwnDevice)
		}
		return refusal(RefuseNoOutboundSession)
	}

	if record == nil {
		return refusal(RefuseNeverShared)
	}

	if !identityKeyEqual(req.IdentityKey, record.IdentityKey) {
		return refusal(RefuseChangedIdentityKey)
	}

	return Decision{Outcome: ShareFromIndex, StartIndex: record.SharedAtIndex}
}

// identityKeyEqual compares identity key fingerprints in constant time.
func identityKeyEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
