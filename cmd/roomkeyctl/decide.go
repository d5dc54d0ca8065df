package main

import (
	"fmt"

	"roomkeyshare/internal/policy"
	"roomkeyshare/internal/registry"
)

type decideCommand struct {
	Session  string `long:"session" description:"Active outbound session ID (omit for no active session)"`
	Room     string `long:"room" description:"Room ID" required:"true"`
	User     string `long:"user" description:"Requesting user ID" required:"true"`
	Device   string `long:"device" description:"Requesting device ID" required:"true"`
	Key      string `long:"key" description:"Requesting device identity key" required:"true"`
	Earliest uint32 `long:"earliest" description:"Earliest known index of the active session"`
	Own      bool   `long:"own" description:"Treat the device as the requester's own"`
	Verified bool   `long:"verified" description:"Treat the device as verified"`
}

// Execute dry-runs the forwarding decision against the stored history: it
// reads the record (if any) but never writes one. Without --session the
// registry is not consulted at all, so no database is needed.
func (cmd *decideCommand) Execute(args []string) error {
	logger := verboseLogger()

	var session *policy.OutboundSession
	var record *policy.SharingRecord
	if cmd.Session != "" {
		session = &policy.OutboundSession{
			SessionID:          cmd.Session,
			RoomID:             cmd.Room,
			EarliestKnownIndex: cmd.Earliest,
		}

		reg := openRegistry()
		defer reg.Close()

		var err error
		record, err = reg.Lookup(registry.Key{
			SessionID: cmd.Session,
			UserID:    cmd.User,
			DeviceID:  cmd.Device,
		})
		if err != nil {
			return err
		}
		if record == nil {
			logf(logger, "no sharing record for %s/%s/%s", cmd.Session, cmd.User, cmd.Device)
		}
	}

	req := policy.DeviceRequest{
		UserID:      cmd.User,
		DeviceID:    cmd.Device,
		IdentityKey: cmd.Key,
		RoomID:      cmd.Room,
		SessionID:   cmd.Session,
	}
	trust := policy.TrustFacts{OwnDevice: cmd.Own, Verified: cmd.Verified}
	logf(logger, "deciding for room=%s session=%s user=%s device=%s own=%v verified=%v",
		cmd.Room, cmd.Session, cmd.User, cmd.Device, cmd.Own, cmd.Verified)

	d := policy.Decide(req, trust, session, record)
	fmt.Printf("Decision: %s\n", d)
	if record != nil {
		fmt.Printf("History: shared_at_index=%d identity_key=%s\n",
			record.SharedAtIndex, record.IdentityKey)
	}
	return nil
}
