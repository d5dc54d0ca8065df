package main

import (
	"os"
	"path/filepath"
	"testing"

	"roomkeyshare/internal/registry"
)

func TestVerboseLogger(t *testing.T) {
	opts.Verbose = false
	if verboseLogger() != nil {
		t.Error("expected nil logger without --verbose")
	}

	opts.Verbose = true
	defer func() { opts.Verbose = false }()
	if verboseLogger() == nil {
		t.Error("expected logger with --verbose")
	}
}

// A dry run without --session never touches the registry, so no database
// file may appear.
func TestDecideWithoutSessionSkipsRegistry(t *testing.T) {
	opts.DB = filepath.Join(t.TempDir(), "registry.db")
	defer func() { opts.DB = "" }()

	cmd := &decideCommand{
		Room:   "!room:example.org",
		User:   "@bob:example.org",
		Device: "DEV1",
		Key:    "K1",
	}
	if err := cmd.Execute(nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if _, err := os.Stat(opts.DB); !os.IsNotExist(err) {
		t.Errorf("registry database was created for a no-session dry run: %v", err)
	}
}

func TestDecideAgainstRegistry(t *testing.T) {
	opts.DB = filepath.Join(t.TempDir(), "registry.db")
	opts.Verbose = true
	defer func() {
		opts.DB = ""
		opts.Verbose = false
	}()

	reg := openRegistry()
	// Seed a record, as the forwarder would on a share outcome.
	k := registry.Key{SessionID: "S1", UserID: "@bob:example.org", DeviceID: "DEV1"}
	err := reg.RecordShare(k, 42, "K1")
	reg.Close()
	if err != nil {
		t.Fatalf("RecordShare: %v", err)
	}

	cmd := &decideCommand{
		Session: "S1",
		Room:    "!room:example.org",
		User:    "@bob:example.org",
		Device:  "DEV1",
		Key:     "K1",
	}
	if err := cmd.Execute(nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}
