// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package transport provides the byte-level serial link used to talk to the
// instrument. go.bug.st/serial has no "bytes available" query, so SerialPort
// keeps a background reader that moves incoming bytes into a buffer which can
// be inspected without blocking.
package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"
)

// ErrPortClosed is returned by operations on a closed SerialPort.
var ErrPortClosed = errors.New("serial port closed")

// rawPort is the subset of serial.Port used here.
type rawPort interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
}

// SerialPort is a buffered serial link with a non-blocking view of pending input.
type SerialPort struct {
	name string
	port rawPort

	mu      sync.Mutex
	buf     bytes.Buffer
	readErr error
	closed  bool

	// holding is set while the reader has a chunk it has not yet buffered
	holding   atomic.Bool
	delivered *sync.Cond

	done chan struct{}
}

// OpenSerial opens the configured port and starts the background reader.
func OpenSerial(cfg SerialConfig) (*SerialPort, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	port, err := serial.Open(cfg.Address, cfg.mode())
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Address, err)
	}
	if err := port.SetReadTimeout(cfg.Timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Address, err)
	}
	return newSerialPort(cfg.Address, port), nil
}

func newSerialPort(name string, port rawPort) *SerialPort {
	sp := &SerialPort{
		name: name,
		port: port,
		done: make(chan struct{}),
	}
	sp.delivered = sync.NewCond(&sp.mu)
	go sp.readLoop()
	return sp
}

// readLoop copies bytes from the port into the pending buffer until the port
// fails or is closed. A zero-length read is a read timeout and is ignored.
func (sp *SerialPort) readLoop() {
	defer close(sp.done)
	chunk := make([]byte, 4096)
	for {
		n, err := sp.port.Read(chunk)
		if n > 0 {
			sp.holding.Store(true)
		}
		sp.mu.Lock()
		if n > 0 {
			sp.buf.Write(chunk[:n])
			sp.holding.Store(false)
			sp.delivered.Broadcast()
		}
		if err != nil {
			if sp.closed {
				err = ErrPortClosed
			}
			sp.readErr = err
			sp.delivered.Broadcast()
			sp.mu.Unlock()
			return
		}
		closed := sp.closed
		sp.mu.Unlock()
		if closed {
			return
		}
	}
}

// Name returns the port address.
func (sp *SerialPort) Name() string {
	return sp.name
}

// BytesAvailable reports how many received bytes are waiting to be read.
func (sp *SerialPort) BytesAvailable() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.buf.Len()
}

// Read drains up to len(p) pending bytes without blocking. When nothing is
// pending it returns the reader's terminal error, if any, or 0, nil.
func (sp *SerialPort) Read(p []byte) (int, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.buf.Len() == 0 {
		if sp.closed {
			return 0, ErrPortClosed
		}
		return 0, sp.readErr
	}
	return sp.buf.Read(p)
}

// Write sends p to the port.
func (sp *SerialPort) Write(p []byte) (int, error) {
	sp.mu.Lock()
	closed := sp.closed
	sp.mu.Unlock()
	if closed {
		return 0, ErrPortClosed
	}
	return sp.port.Write(p)
}

// Discard drops all pending input, both buffered here and in the driver,
// including a chunk the reader took from the driver but has not buffered yet.
func (sp *SerialPort) Discard() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.discardLocked()
}

func (sp *SerialPort) discardLocked() error {
	if sp.closed {
		return ErrPortClosed
	}
	for sp.holding.Load() && sp.readErr == nil {
		sp.delivered.Wait()
	}
	sp.buf.Reset()
	return sp.port.ResetInputBuffer()
}

// IsOpen reports whether the port is still usable.
func (sp *SerialPort) IsOpen() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return !sp.closed && sp.readErr == nil
}

// Close closes the port and waits for the reader to exit.
func (sp *SerialPort) Close() error {
	sp.mu.Lock()
	if sp.closed {
		sp.mu.Unlock()
		return nil
	}
	sp.closed = true
	sp.mu.Unlock()

	err := sp.port.Close()
	<-sp.done
	return err
}
