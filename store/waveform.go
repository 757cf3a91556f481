// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/riclolsen/go-combiscope/combiscope"
)

// encodeSamples packs samples as big-endian int16, the order they arrive in.
func encodeSamples(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, v := range samples {
		binary.BigEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func decodeSamples(b []byte) ([]int16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("%w: odd sample block of %d bytes", ErrCorrupt, len(b))
	}
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.BigEndian.Uint16(b[2*i:]))
	}
	return out, nil
}

// SaveWaveform stores w and returns its row id. sample_count is the number of
// samples kept, which for a stale waveform is the cache length.
func (s *Store) SaveWaveform(ctx context.Context, w *combiscope.Waveform) (int64, error) {
	if w == nil {
		return 0, errors.New("store: nil waveform")
	}
	md, err := json.Marshal(w.Metadata)
	if err != nil {
		return 0, err
	}
	acquired := w.AcquiredAt
	if acquired.IsZero() {
		acquired = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO waveforms (channel, register, identity, sample_count, samples, metadata, stale, acquired_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.Channel, w.Register, w.Identity, len(w.Samples),
		encodeSamples(w.Samples), string(md), w.Stale, acquired.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const waveformColumns = `id, channel, register, identity, sample_count, samples, metadata, stale, acquired_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWaveform(row rowScanner) (int64, *combiscope.Waveform, error) {
	var (
		id       int64
		w        combiscope.Waveform
		identity sql.NullString
		raw      []byte
		count    int
		md       sql.NullString
	)
	if err := row.Scan(&id, &w.Channel, &w.Register, &identity, &count, &raw, &md, &w.Stale, &w.AcquiredAt); err != nil {
		return 0, nil, err
	}
	samples, err := decodeSamples(raw)
	if err != nil {
		return 0, nil, err
	}
	if len(samples) != count {
		return 0, nil, fmt.Errorf("%w: waveform %d holds %d of %d samples", ErrCorrupt, id, len(samples), count)
	}
	w.Samples = samples
	w.Identity = identity.String
	if md.Valid && md.String != "" {
		if err := json.Unmarshal([]byte(md.String), &w.Metadata); err != nil {
			return 0, nil, fmt.Errorf("store: waveform %d metadata: %w", id, err)
		}
	}
	return id, &w, nil
}

// LoadWaveform returns the waveform with the given id.
func (s *Store) LoadWaveform(ctx context.Context, id int64) (*combiscope.Waveform, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+waveformColumns+` FROM waveforms WHERE id = ?`, id)
	_, w, err := scanWaveform(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: waveform %d", ErrNotFound, id)
	}
	return w, err
}

// StoredWaveform is a waveform with its row id.
type StoredWaveform struct {
	ID int64
	*combiscope.Waveform
}

// RecentWaveforms returns up to limit waveforms, newest first.
func (s *Store) RecentWaveforms(ctx context.Context, limit int) ([]StoredWaveform, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+waveformColumns+` FROM waveforms ORDER BY acquired_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredWaveform
	for rows.Next() {
		id, w, err := scanWaveform(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, StoredWaveform{ID: id, Waveform: w})
	}
	return out, rows.Err()
}
