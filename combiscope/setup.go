// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package combiscope

import (
	"context"
	"fmt"
)

// GetSetup reads the complete instrument setup with QS. The returned blob is
// opaque; pass it unchanged to ProgramSetup to restore the configuration.
func (sf *Client) GetSetup(ctx context.Context) ([]byte, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if err := sf.checkOpen(); err != nil {
		return nil, err
	}

	reply, err := sf.channel.query(ctx, SimpleCommand(MnemonicQuerySetup))
	if err != nil {
		return nil, err
	}
	blob, err := stripEcho(reply)
	if err != nil {
		return nil, fmt.Errorf("query setup: %w", err)
	}
	sf.Debug("Setup blob of %d bytes read", len(blob))
	return blob, nil
}

// ProgramSetup restores a blob obtained from GetSetup with PS.
func (sf *Client) ProgramSetup(ctx context.Context, blob []byte) error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if err := sf.checkOpen(); err != nil {
		return err
	}
	return sf.channel.send(ctx, ProgramSetupCommand(blob))
}
