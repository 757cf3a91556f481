// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package combiscope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleCommand(t *testing.T) {
	for _, m := range []string{
		MnemonicIdentify, MnemonicAutoSet, MnemonicArmTrigger, MnemonicDefaultSetup,
		MnemonicResetInstrument, MnemonicTriggerAcquire, MnemonicGoLocal,
		MnemonicGoRemote, MnemonicLocalLockout, MnemonicPutText, MnemonicQuerySetup,
	} {
		cmd := SimpleCommand(m)
		assert.Equal(t, m, cmd.Name)
		assert.Equal(t, []byte{m[0], m[1], CR}, cmd.Raw)
	}
}

func TestQueryWaveformCommand(t *testing.T) {
	cmd, err := QueryWaveformCommand(1, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("QW01\r"), cmd.Raw)

	cmd, err = QueryWaveformCommand(4, 9)
	require.NoError(t, err)
	assert.Equal(t, []byte("QW94\r"), cmd.Raw)

	for _, args := range [][2]int{{-1, 0}, {10, 0}, {0, -1}, {0, 10}} {
		_, err := QueryWaveformCommand(args[0], args[1])
		assert.ErrorIs(t, err, ErrInvalidArgument, "channel %d register %d", args[0], args[1])
	}
}

func TestProgramSetupCommand(t *testing.T) {
	cmd := ProgramSetupCommand([]byte("A,B\r"))
	assert.Equal(t, []byte("PS,A,B\r"), cmd.Raw)

	cmd = ProgramSetupCommand(nil)
	assert.Equal(t, []byte("PS,"), cmd.Raw)
}

func TestTextPayloadCommand(t *testing.T) {
	assert.Equal(t, []byte("HELLO\r"), TextPayloadCommand("HELLO").Raw)
	assert.Equal(t, []byte{CR}, TextPayloadCommand("").Raw)
	// runes above 0xFF keep only their low byte
	assert.Equal(t, []byte{0xE9, 0x3B, CR}, TextPayloadCommand("é※").Raw)
}

func TestStripEcho(t *testing.T) {
	out, err := stripEcho([]byte("IDPM3394B"))
	require.NoError(t, err)
	assert.Equal(t, []byte("PM3394B"), out)

	out, err = stripEcho([]byte("ID"))
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = stripEcho([]byte("I"))
	assert.ErrorIs(t, err, ErrShortReply)
}

func TestDecodeLatin1(t *testing.T) {
	assert.Equal(t, "aéÿ", decodeLatin1([]byte{'a', 0xE9, 0xFF}))
}
