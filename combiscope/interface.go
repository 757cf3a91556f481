// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package combiscope

// Transport is the byte channel to the instrument.
// transport.SerialPort is the production implementation.
type Transport interface {
	// BytesAvailable reports how many received bytes can be read without blocking.
	BytesAvailable() int
	// Read drains pending bytes without blocking.
	Read(p []byte) (int, error)
	// Write sends raw bytes to the instrument.
	Write(p []byte) (int, error)
	// Discard drops all pending input.
	Discard() error
	Close() error
}

// openChecker is implemented by transports that can detect a dead link.
type openChecker interface {
	IsOpen() bool
}
