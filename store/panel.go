// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/riclolsen/go-combiscope/combiscope"
)

// PanelMode returns the front panel mode last recorded for port. ok is false
// when nothing was recorded.
func (s *Store) PanelMode(ctx context.Context, port string) (mode combiscope.FrontPanelMode, ok bool, err error) {
	var v int
	err = s.db.QueryRowContext(ctx, `SELECT mode FROM panel_state WHERE port = ?`, port).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return combiscope.ModeUnknown, false, nil
	}
	if err != nil {
		return combiscope.ModeUnknown, false, err
	}
	mode = combiscope.FrontPanelMode(v)
	if mode < combiscope.ModeLocal || mode > combiscope.ModeUnknown {
		return combiscope.ModeUnknown, true, nil
	}
	return mode, true, nil
}

// SavePanelMode records the front panel mode of the instrument on port.
func (s *Store) SavePanelMode(ctx context.Context, port string, mode combiscope.FrontPanelMode) error {
	if port == "" {
		return ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO panel_state (port, mode, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(port) DO UPDATE SET mode = excluded.mode, updated_at = excluded.updated_at`,
		port, int(mode), time.Now().UTC(),
	)
	return err
}
