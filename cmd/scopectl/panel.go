// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/riclolsen/go-combiscope/combiscope"
	"github.com/riclolsen/go-combiscope/store"
)

// Every scopectl run is a new session, so the front panel mode the
// instrument was left in is kept in the store, keyed by port.

func runPanel(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("panel needs one of local, remote, lockout")
	}
	mode, err := combiscope.ParseFrontPanelMode(args[0])
	if err != nil {
		return err
	}
	port, err := a.portAddress()
	if err != nil {
		return err
	}
	db, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	from := recordedPanel(ctx, db, port, a.cfg.FrontPanelMode(), a.log)
	a.panel = &from
	c, err := a.session(ctx)
	if err != nil {
		return err
	}
	return switchPanel(ctx, c, db, port, mode, a.log)
}

// recordedPanel returns the mode saved for port, or fallback when there is
// none or it cannot be read.
func recordedPanel(ctx context.Context, db *store.Store, port string, fallback combiscope.FrontPanelMode, log *logrus.Logger) combiscope.FrontPanelMode {
	mode, ok, err := db.PanelMode(ctx, port)
	if err != nil {
		log.Warnf("Front panel state for %s unreadable, assuming %s: %v", port, fallback, err)
		return fallback
	}
	if !ok {
		return fallback
	}
	log.Debugf("Front panel of %s was left %s", port, mode)
	return mode
}

// switchPanel changes the front panel mode and records where it ended up,
// including after a failed step.
func switchPanel(ctx context.Context, c *combiscope.Client, db *store.Store, port string, mode combiscope.FrontPanelMode, log *logrus.Logger) error {
	err := c.SetFrontPanelMode(ctx, mode)
	reached := c.FrontPanelMode()
	if serr := db.SavePanelMode(ctx, port, reached); serr != nil {
		log.Warnf("Could not record front panel state %s: %v", reached, serr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "front panel: %s\n", reached)
	return nil
}
