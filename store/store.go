// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package store keeps instrument setups and acquired waveforms in a local
// SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sigurn/crc16"
	_ "modernc.org/sqlite"
)

// error defined
var (
	ErrNotFound = errors.New("store: not found")
	ErrCorrupt  = errors.New("store: checksum mismatch")
	ErrEmptyKey = errors.New("store: empty name")
)

const schema = `
CREATE TABLE IF NOT EXISTS setups (
	name       TEXT PRIMARY KEY,
	blob       BLOB NOT NULL,
	crc        INTEGER NOT NULL,
	size       INTEGER NOT NULL,
	identity   TEXT,
	created_at DATETIME
);

CREATE TABLE IF NOT EXISTS waveforms (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	channel      INTEGER NOT NULL,
	register     INTEGER NOT NULL,
	identity     TEXT,
	sample_count INTEGER NOT NULL,
	samples      BLOB,
	metadata     TEXT,
	stale        BOOLEAN DEFAULT FALSE,
	acquired_at  DATETIME
);
CREATE INDEX IF NOT EXISTS idx_waveforms_acquired ON waveforms (acquired_at);

CREATE TABLE IF NOT EXISTS panel_state (
	port       TEXT PRIMARY KEY,
	mode       INTEGER NOT NULL,
	updated_at DATETIME
);
`

var modbusTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Checksum is the CRC-16/MODBUS fingerprint stored with every setup blob.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, modbusTable)
}

// Store is a SQLite backed repository.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; keeps the file free of SQLITE_BUSY between our own statements
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetupInfo describes a saved setup without its blob.
type SetupInfo struct {
	Name      string
	Size      int
	CRC       uint16
	Identity  string
	CreatedAt time.Time
}

// SaveSetup stores blob under name, replacing any previous setup of that name.
func (s *Store) SaveSetup(ctx context.Context, name, identity string, blob []byte) error {
	if name == "" {
		return ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO setups (name, blob, crc, size, identity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			blob = excluded.blob, crc = excluded.crc, size = excluded.size,
			identity = excluded.identity, created_at = excluded.created_at`,
		name, blob, int64(Checksum(blob)), len(blob), identity, time.Now().UTC(),
	)
	return err
}

// LoadSetup returns the blob saved under name after verifying its checksum.
func (s *Store) LoadSetup(ctx context.Context, name string) ([]byte, error) {
	var (
		blob []byte
		crc  int64
		size int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT blob, crc, size FROM setups WHERE name = ?`, name,
	).Scan(&blob, &crc, &size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: setup %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	if len(blob) != size || uint16(crc) != Checksum(blob) {
		return nil, fmt.Errorf("%w: setup %q", ErrCorrupt, name)
	}
	return blob, nil
}

// ListSetups returns all saved setups ordered by name.
func (s *Store) ListSetups(ctx context.Context) ([]SetupInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, size, crc, identity, created_at FROM setups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SetupInfo
	for rows.Next() {
		var (
			info     SetupInfo
			crc      int64
			identity sql.NullString
		)
		if err := rows.Scan(&info.Name, &info.Size, &crc, &identity, &info.CreatedAt); err != nil {
			return nil, err
		}
		info.CRC = uint16(crc)
		info.Identity = identity.String
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteSetup removes the setup saved under name.
func (s *Store) DeleteSetup(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM setups WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: setup %q", ErrNotFound, name)
	}
	return nil
}
