// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package combiscope

import (
	"fmt"
)

// Frame characters
const (
	// CR terminates every command
	CR byte = 0x0D
	// Separator splits fields in replies and in the PS command
	Separator byte = 0x2C
	// digitOffset turns 0..9 into the ASCII digits '0'..'9'
	digitOffset byte = 0x30
	// echoPrefixLen is the number of leading reply bytes that echo the command
	echoPrefixLen = 2
)

// Command mnemonics of the PM33xx remote control language.
const (
	MnemonicIdentify        = "ID"
	MnemonicAutoSet         = "AS"
	MnemonicArmTrigger      = "AT"
	MnemonicDefaultSetup    = "DS"
	MnemonicResetInstrument = "RI"
	MnemonicTriggerAcquire  = "TA"
	MnemonicGoLocal         = "GL"
	MnemonicGoRemote        = "GR"
	MnemonicLocalLockout    = "LL"
	MnemonicPutText         = "PT"
	MnemonicQueryWaveform   = "QW"
	MnemonicQuerySetup      = "QS"
	MnemonicProgramSetup    = "PS"

	// textPayload names the second frame of a PT exchange
	textPayload = "PT-text"
)

// Command is one frame written to the instrument.
type Command struct {
	// Name labels the command in logs, errors and metrics.
	Name string
	// Raw is the exact byte sequence sent on the wire.
	Raw []byte
}

func (c Command) String() string {
	return fmt.Sprintf("%s[% X]", c.Name, c.Raw)
}

// SimpleCommand builds a bare two letter command such as "ID\r".
func SimpleCommand(mnemonic string) Command {
	raw := make([]byte, 0, len(mnemonic)+1)
	raw = append(raw, mnemonic...)
	raw = append(raw, CR)
	return Command{Name: mnemonic, Raw: raw}
}

// QueryWaveformCommand builds "QW" + register digit + channel digit + CR.
// Register 0 is the acquisition memory.
func QueryWaveformCommand(channel, register int) (Command, error) {
	if channel < 0 || channel > 9 {
		return Command{}, fmt.Errorf("%w: channel %d not in [0, 9]", ErrInvalidArgument, channel)
	}
	if register < 0 || register > 9 {
		return Command{}, fmt.Errorf("%w: register %d not in [0, 9]", ErrInvalidArgument, register)
	}
	return Command{
		Name: MnemonicQueryWaveform,
		Raw: []byte{'Q', 'W',
			byte(register) + digitOffset,
			byte(channel) + digitOffset,
			CR},
	}, nil
}

// ProgramSetupCommand builds "PS," + blob. The blob already ends with the
// CR it was received with, so none is appended.
func ProgramSetupCommand(blob []byte) Command {
	raw := make([]byte, 0, len(blob)+3)
	raw = append(raw, 'P', 'S', Separator)
	raw = append(raw, blob...)
	return Command{Name: MnemonicProgramSetup, Raw: raw}
}

// TextPayloadCommand builds the frame following "PT": one byte per rune
// (the low 8 bits of the code point) and a closing CR. An empty text yields
// a bare CR, which clears the display text.
func TextPayloadCommand(text string) Command {
	raw := make([]byte, 0, len(text)+1)
	for _, r := range text {
		raw = append(raw, byte(r))
	}
	raw = append(raw, CR)
	return Command{Name: textPayload, Raw: raw}
}

// stripEcho drops the echo prefix of a reply.
func stripEcho(reply []byte) ([]byte, error) {
	if len(reply) < echoPrefixLen {
		return nil, fmt.Errorf("%w: got %d bytes", ErrShortReply, len(reply))
	}
	out := make([]byte, len(reply)-echoPrefixLen)
	copy(out, reply[echoPrefixLen:])
	return out, nil
}

// decodeLatin1 maps every byte to the code point of the same value.
func decodeLatin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
