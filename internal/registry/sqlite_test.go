package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteOpenCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "dir", "registry.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
		t.Fatal("directory should have been created")
	}
}

func TestSQLiteRecordAndLookup(t *testing.T) {
	s := tempSQLite(t)
	k := testKey()

	rec, err := s.Lookup(k)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil on empty db, got %+v", rec)
	}

	if err := s.RecordShare(k, 42, "K1"); err != nil {
		t.Fatalf("RecordShare: %v", err)
	}

	rec, err = s.Lookup(k)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record")
	}
	if rec.SharedAtIndex != 42 || rec.IdentityKey != "K1" {
		t.Errorf("got index=%d key=%q, want 42/K1", rec.SharedAtIndex, rec.IdentityKey)
	}
}

func TestSQLiteRecordShareIsWriteOnce(t *testing.T) {
	s := tempSQLite(t)
	k := testKey()

	if err := s.RecordShare(k, 42, "K1"); err != nil {
		t.Fatalf("RecordShare: %v", err)
	}
	err := s.RecordShare(k, 7, "K2")
	if !errors.Is(err, ErrAlreadyRecorded) {
		t.Fatalf("expected ErrAlreadyRecorded, got %v", err)
	}

	rec, err := s.Lookup(k)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec.SharedAtIndex != 42 || rec.IdentityKey != "K1" {
		t.Errorf("record was overwritten: %+v", rec)
	}
}

func TestSQLiteInvalidateSession(t *testing.T) {
	s := tempSQLite(t)
	k1 := Key{SessionID: "S1", UserID: "@bob:example.org", DeviceID: "DEV1"}
	k2 := Key{SessionID: "S2", UserID: "@bob:example.org", DeviceID: "DEV1"}
	for _, k := range []Key{k1, k2} {
		if err := s.RecordShare(k, 1, "K"); err != nil {
			t.Fatalf("RecordShare %v: %v", k, err)
		}
	}

	if err := s.InvalidateSession("S1"); err != nil {
		t.Fatalf("InvalidateSession: %v", err)
	}

	if rec, _ := s.Lookup(k1); rec != nil {
		t.Error("record for S1 survived invalidation")
	}
	if rec, _ := s.Lookup(k2); rec == nil {
		t.Error("record for S2 was discarded")
	}
}

func TestSQLiteRecords(t *testing.T) {
	s := tempSQLite(t)
	keys := []Key{
		{SessionID: "S1", UserID: "@carol:example.org", DeviceID: "DEV9"},
		{SessionID: "S1", UserID: "@bob:example.org", DeviceID: "DEV1"},
		{SessionID: "S2", UserID: "@bob:example.org", DeviceID: "DEV1"},
	}
	for i, k := range keys {
		if err := s.RecordShare(k, uint32(i), "K"); err != nil {
			t.Fatalf("RecordShare %v: %v", k, err)
		}
	}

	recs, err := s.Records("S1")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	// Ordered by user, device.
	if recs[0].UserID != "@bob:example.org" || recs[1].UserID != "@carol:example.org" {
		t.Errorf("unexpected order: %+v", recs)
	}
}

// Records survive close and reopen.
func TestSQLitePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	k := testKey()

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RecordShare(k, 42, "K1"); err != nil {
		t.Fatalf("RecordShare: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	rec, err := s.Lookup(k)
	if err != nil {
		t.Fatalf("Lookup after reopen: %v", err)
	}
	if rec == nil || rec.SharedAtIndex != 42 || rec.IdentityKey != "K1" {
		t.Errorf("record did not survive reopen: %+v", rec)
	}
}
