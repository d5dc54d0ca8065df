package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"roomkeyshare/internal/policy"
)

const schema = `
CREATE TABLE IF NOT EXISTS sharing_record (
	session_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	device_id TEXT NOT NULL,
	shared_at_index INTEGER NOT NULL,
	identity_key TEXT NOT NULL,
	PRIMARY KEY (session_id, user_id, device_id)
);
`

// SQLite is a persistent Registry backed by a SQLite database. The composite
// primary key plus INSERT OR IGNORE gives RecordShare its insert-if-absent
// semantics even when the database is shared between processes.
type SQLite struct {
	db *sql.DB
}

var _ Registry = (*SQLite)(nil)

// OpenSQLite opens or creates a registry database at the given path,
// creating parent directories as needed.
func OpenSQLite(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("registry: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("registry: open db: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: set WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Lookup(k Key) (*policy.SharingRecord, error) {
	rec := policy.SharingRecord{
		SessionID: k.SessionID,
		UserID:    k.UserID,
		DeviceID:  k.DeviceID,
	}
	err := s.db.QueryRow(
		"SELECT shared_at_index, identity_key FROM sharing_record WHERE session_id = ? AND user_id = ? AND device_id = ?",
		k.SessionID, k.UserID, k.DeviceID,
	).Scan(&rec.SharedAtIndex, &rec.IdentityKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: lookup: %w", err)
	}
	return &rec, nil
}

func (s *SQLite) RecordShare(k Key, sharedAtIndex uint32, identityKey string) error {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO sharing_record (session_id, user_id, device_id, shared_at_index, identity_key)
		 VALUES (?, ?, ?, ?, ?)`,
		k.SessionID, k.UserID, k.DeviceID, sharedAtIndex, identityKey,
	)
	if err != nil {
		return fmt.Errorf("registry: record share: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("registry: record share: %w", err)
	}
	if n == 0 {
		return ErrAlreadyRecorded
	}
	return nil
}

func (s *SQLite) InvalidateSession(sessionID string) error {
	_, err := s.db.Exec("DELETE FROM sharing_record WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("registry: invalidate session: %w", err)
	}
	return nil
}

// Records returns all records for a session, ordered by user and device.
// Used for operator inspection; the decision path only ever does point
// lookups.
func (s *SQLite) Records(sessionID string) ([]policy.SharingRecord, error) {
	rows, err := s.db.Query(
		"SELECT user_id, device_id, shared_at_index, identity_key FROM sharing_record WHERE session_id = ? ORDER BY user_id, device_id",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("registry: list records: %w", err)
	}
	defer rows.Close()

	var recs []policy.SharingRecord
	for rows.Next() {
		rec := policy.SharingRecord{SessionID: sessionID}
		if err := rows.Scan(&rec.UserID, &rec.DeviceID, &rec.SharedAtIndex, &rec.IdentityKey); err != nil {
			return nil, fmt.Errorf("registry: scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: iterate records: %w", err)
	}
	return recs, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
