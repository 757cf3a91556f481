// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// chanPort feeds reads from a channel and records writes.
type chanPort struct {
	in      chan []byte
	mu      sync.Mutex
	written bytes.Buffer
	resets  int
	once    sync.Once
	stop    chan struct{}
}

func newChanPort() *chanPort {
	return &chanPort{in: make(chan []byte, 16), stop: make(chan struct{})}
}

func (c *chanPort) Read(p []byte) (int, error) {
	select {
	case b := <-c.in:
		return copy(p, b), nil
	case <-c.stop:
		return 0, io.EOF
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (c *chanPort) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.Write(p)
}

func (c *chanPort) ResetInputBuffer() error {
	c.mu.Lock()
	c.resets++
	c.mu.Unlock()
	return nil
}

func (c *chanPort) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func waitForAvailable(t *testing.T, sp *SerialPort, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return sp.BytesAvailable() >= n }, time.Second, time.Millisecond)
}

func TestSerialPortBuffersIncomingBytes(t *testing.T) {
	raw := newChanPort()
	sp := newSerialPort("/dev/test", raw)
	defer sp.Close()

	assert.Equal(t, 0, sp.BytesAvailable())
	raw.in <- []byte("0\r")
	raw.in <- []byte("PM3394")
	waitForAvailable(t, sp, 8)

	buf := make([]byte, 3)
	n, err := sp.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "0\rP", string(buf[:n]))
	assert.Equal(t, 5, sp.BytesAvailable())
}

func TestSerialPortReadEmptyIsNonBlocking(t *testing.T) {
	sp := newSerialPort("/dev/test", newChanPort())
	defer sp.Close()

	n, err := sp.Read(make([]byte, 16))
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestSerialPortDiscard(t *testing.T) {
	raw := newChanPort()
	sp := newSerialPort("/dev/test", raw)
	defer sp.Close()

	raw.in <- []byte("stale")
	waitForAvailable(t, sp, 5)
	require.NoError(t, sp.Discard())
	assert.Equal(t, 0, sp.BytesAvailable())
	assert.Equal(t, 1, raw.resets)
}

func TestSerialPortDiscardWaitsForChunkInFlight(t *testing.T) {
	raw := newChanPort()
	sp := newSerialPort("/dev/test", raw)
	defer sp.Close()

	// hold the lock so the reader is stuck between the driver and the buffer
	sp.mu.Lock()
	raw.in <- []byte("stale")
	require.Eventually(t, sp.holding.Load, time.Second, time.Millisecond)
	err := sp.discardLocked()
	sp.mu.Unlock()
	require.NoError(t, err)

	assert.False(t, sp.holding.Load())
	assert.Equal(t, 0, sp.BytesAvailable())

	raw.in <- []byte("fresh")
	waitForAvailable(t, sp, 5)
	buf := make([]byte, 8)
	n, err := sp.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(buf[:n]))
}

func TestSerialPortWriteAndClose(t *testing.T) {
	raw := newChanPort()
	sp := newSerialPort("/dev/test", raw)

	n, err := sp.Write([]byte("ID\r"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "ID\r", raw.written.String())
	assert.True(t, sp.IsOpen())

	require.NoError(t, sp.Close())
	assert.False(t, sp.IsOpen())
	require.NoError(t, sp.Close())

	_, err = sp.Write([]byte("AS\r"))
	assert.True(t, errors.Is(err, ErrPortClosed))
	_, err = sp.Read(make([]byte, 1))
	assert.True(t, errors.Is(err, ErrPortClosed))
	assert.True(t, errors.Is(sp.Discard(), ErrPortClosed))
}

func TestSerialPortReaderFailure(t *testing.T) {
	raw := newChanPort()
	sp := newSerialPort("/dev/test", raw)
	raw.in <- []byte("AB")
	waitForAvailable(t, sp, 2)
	raw.once.Do(func() { close(raw.stop) })
	<-sp.done

	assert.False(t, sp.IsOpen())
	buf := make([]byte, 4)
	n, err := sp.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "AB", string(buf[:n]))
	_, err = sp.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSerialConfigValid(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SerialConfig
		wantErr bool
	}{
		{"missing address", SerialConfig{BaudRate: 9600}, true},
		{"zero baud", SerialConfig{Address: "COM3"}, true},
		{"bad data bits", SerialConfig{Address: "COM3", BaudRate: 9600, DataBits: 9}, true},
		{"negative timeout", SerialConfig{Address: "COM3", BaudRate: 9600, Timeout: -1}, true},
		{"defaults filled", SerialConfig{Address: "COM3", BaudRate: 19200}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Valid()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultDataBits, cfg.DataBits)
			assert.Equal(t, DefaultReadTimeout, cfg.Timeout)
		})
	}
}

func TestMapParityAndStopBits(t *testing.T) {
	assert.Equal(t, serial.NoParity, MapParity(0))
	assert.Equal(t, serial.OddParity, MapParity(1))
	assert.Equal(t, serial.EvenParity, MapParity(2))
	assert.Equal(t, serial.NoParity, MapParity(42))
	assert.Equal(t, serial.OneStopBit, MapStopBits(1))
	assert.Equal(t, serial.TwoStopBits, MapStopBits(2))
	assert.Equal(t, serial.OneStopBit, MapStopBits(0))
}
