// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package transport

import (
	"errors"
	"time"

	"go.bug.st/serial"
)

// Serial line defaults used by the Combiscope RS-232 interface (9600 8N1).
const (
	DefaultBaudRate    = 9600
	DefaultDataBits    = 8
	DefaultReadTimeout = 100 * time.Millisecond
)

// SerialConfig holds serial port configuration parameters.
type SerialConfig struct {
	// Address is the serial port address (e.g., "COM3" on Windows, "/dev/ttyS0" on Linux).
	Address string
	// BaudRate is the serial port speed (e.g., 9600, 19200).
	BaudRate int
	// DataBits is the number of data bits (usually 8, sometimes 7).
	DataBits int
	// StopBits specifies the number of stop bits. Use serial.OneStopBit or serial.TwoStopBits.
	StopBits serial.StopBits
	// Parity specifies the parity mode. Use serial.NoParity, serial.OddParity, serial.EvenParity.
	Parity serial.Parity
	// Timeout bounds a single read of the background reader. It only controls
	// how quickly the reader notices a close; response deadlines live in the
	// protocol config.
	Timeout time.Duration
}

// DefaultSerialConfig returns 9600 8N1 with no address set.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate: DefaultBaudRate,
		DataBits: DefaultDataBits,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
		Timeout:  DefaultReadTimeout,
	}
}

// Valid applies defaults and checks the serial settings.
func (sf *SerialConfig) Valid() error {
	if sf == nil {
		return errors.New("invalid nil serial config")
	}
	if sf.Address == "" {
		return errors.New("serial address (port name) must be configured")
	}
	if sf.BaudRate <= 0 {
		return errors.New("serial baud rate must be positive")
	}
	if sf.DataBits == 0 {
		sf.DataBits = DefaultDataBits
	} else if sf.DataBits < 5 || sf.DataBits > 8 {
		return errors.New("serial data bits must be in range [5, 8]")
	}
	if sf.Timeout == 0 {
		sf.Timeout = DefaultReadTimeout
	} else if sf.Timeout < 0 {
		return errors.New("serial read timeout must not be negative")
	}
	return nil
}

// mode converts the config to a go.bug.st/serial mode.
func (sf *SerialConfig) mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: sf.BaudRate,
		DataBits: sf.DataBits,
		Parity:   sf.Parity,
		StopBits: sf.StopBits,
	}
}

// MapParity maps a numeric representation to serial.Parity.
// 0 = None, 1 = Odd, 2 = Even, 3 = Mark, 4 = Space. Returns NoParity for invalid values.
func MapParity(p int) serial.Parity {
	switch p {
	case 1:
		return serial.OddParity
	case 2:
		return serial.EvenParity
	case 3:
		return serial.MarkParity
	case 4:
		return serial.SpaceParity
	default: // Includes 0
		return serial.NoParity
	}
}

// MapStopBits maps a numeric representation to serial.StopBits.
// 1 = OneStopBit, 2 = TwoStopBits. Returns OneStopBit for invalid values.
func MapStopBits(s int) serial.StopBits {
	if s == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit // Default includes 1
}
