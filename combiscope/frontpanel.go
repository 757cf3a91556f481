// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package combiscope

import (
	"context"
	"fmt"
	"strings"
)

// FrontPanelMode is how much control the physical front panel has.
type FrontPanelMode int

const (
	// ModeLocal gives full control to the front panel.
	ModeLocal FrontPanelMode = iota
	// ModeRemote disables the front panel; STATUS/LOCAL returns to local.
	ModeRemote
	// ModeLocalLockout also disables STATUS/LOCAL. Only a power cycle or
	// a GL command brings the panel back.
	ModeLocalLockout
	// ModeUnknown is never entered by the client. It can only be inherited
	// through ClientOption.SetFrontPanelState.
	ModeUnknown
)

func (m FrontPanelMode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeRemote:
		return "remote"
	case ModeLocalLockout:
		return "local-lockout"
	case ModeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("FrontPanelMode(%d)", int(m))
	}
}

// ParseFrontPanelMode accepts "local", "remote", "lockout"/"local-lockout",
// "unknown" or the numbers 0 to 3.
func ParseFrontPanelMode(s string) (FrontPanelMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "0":
		return ModeLocal, nil
	case "remote", "1":
		return ModeRemote, nil
	case "lockout", "local-lockout", "locallockout", "2":
		return ModeLocalLockout, nil
	case "unknown", "3":
		return ModeUnknown, nil
	}
	return ModeUnknown, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// planFrontPanel returns the commands that move the panel from one mode to
// another. An empty plan means nothing is sent.
//
// Remote is not requested from LocalLockout, since lockout already implies
// remote operation, and lockout is not attempted from Unknown.
func planFrontPanel(from, to FrontPanelMode) ([]string, error) {
	switch to {
	case ModeLocal:
		if from == ModeLocal {
			return nil, nil
		}
		return []string{MnemonicGoLocal}, nil
	case ModeRemote:
		switch from {
		case ModeLocal:
			return []string{MnemonicGoRemote}, nil
		case ModeUnknown:
			return []string{MnemonicGoLocal, MnemonicGoRemote}, nil
		}
		return nil, nil
	case ModeLocalLockout:
		switch from {
		case ModeLocal:
			return []string{MnemonicGoRemote, MnemonicLocalLockout}, nil
		case ModeRemote:
			return []string{MnemonicLocalLockout}, nil
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(to))
}

// modeAfter is the panel mode the instrument is in once mnemonic succeeded.
func modeAfter(mnemonic string) FrontPanelMode {
	switch mnemonic {
	case MnemonicGoLocal:
		return ModeLocal
	case MnemonicGoRemote:
		return ModeRemote
	case MnemonicLocalLockout:
		return ModeLocalLockout
	}
	return ModeUnknown
}

// frontPanelController tracks the panel mode of one session.
type frontPanelController struct {
	state   FrontPanelMode
	send    func(ctx context.Context, cmd Command) error
	metrics *Metrics
}

// set runs the plan for target. The state advances with every command that
// was accepted, so after a failure it reflects the last confirmed step.
func (fp *frontPanelController) set(ctx context.Context, target FrontPanelMode) error {
	plan, err := planFrontPanel(fp.state, target)
	if err != nil {
		return err
	}
	for _, mnemonic := range plan {
		if err := fp.send(ctx, SimpleCommand(mnemonic)); err != nil {
			return fmt.Errorf("front panel %s -> %s: %w", fp.state, target, err)
		}
		fp.state = modeAfter(mnemonic)
		fp.metrics.setPanelMode(fp.state)
	}
	return nil
}
