// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package combiscope

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/riclolsen/go-combiscope/clog"
)

var defaultAck = []byte{'0', CR}

// fakeScope is a scripted instrument. Every written frame is recorded; a
// frame with a scripted reply gets that reply, anything else gets the
// acceptance bytes. PS stores its payload, which QS then returns.
type fakeScope struct {
	mu       sync.Mutex
	pending  []byte
	writes   []string
	replies  map[string][][]byte
	ack      []byte
	setup    []byte
	silent   bool
	writeErr error
	flushErr error
	closed   bool
	discards int
}

func newFakeScope() *fakeScope {
	return &fakeScope{
		replies: make(map[string][][]byte),
		ack:     defaultAck,
		setup:   []byte("1,2,3,\xAB\x00\x7F\r"),
	}
}

// reply queues replies for frame; each write of frame consumes one, the last
// one is repeated.
func (f *fakeScope) reply(frame string, replies ...[]byte) *fakeScope {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[frame] = append(f.replies[frame], replies...)
	return f
}

func (f *fakeScope) setSilent(v bool) {
	f.mu.Lock()
	f.silent = v
	f.mu.Unlock()
}

// inject simulates unsolicited bytes on the line.
func (f *fakeScope) inject(b []byte) {
	f.mu.Lock()
	f.pending = append(f.pending, b...)
	f.mu.Unlock()
}

func (f *fakeScope) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakeScope) BytesAvailable() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeScope) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *fakeScope) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New("fake: closed")
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	frame := string(p)
	f.writes = append(f.writes, frame)
	if f.silent {
		return len(p), nil
	}

	switch {
	case strings.HasPrefix(frame, "PS,"):
		f.setup = append([]byte(nil), p[3:]...)
		f.pending = append(f.pending, f.ack...)
	case frame == "QS\r":
		f.pending = append(f.pending, 'Q', 'S')
		f.pending = append(f.pending, f.setup...)
	default:
		if q := f.replies[frame]; len(q) > 0 {
			f.pending = append(f.pending, q[0]...)
			if len(q) > 1 {
				f.replies[frame] = q[1:]
			}
		} else {
			f.pending = append(f.pending, f.ack...)
		}
	}
	return len(p), nil
}

func (f *fakeScope) Discard() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flushErr != nil {
		return f.flushErr
	}
	f.pending = nil
	f.discards++
	return nil
}

func (f *fakeScope) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newSilentLog() clog.Clog {
	return clog.NewLogger("test")
}

// fastConfig keeps timing tests short.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.AckTimeout = 60 * time.Millisecond
	cfg.ReplyTimeout = 60 * time.Millisecond
	cfg.QuiescenceInterval = 2 * time.Millisecond
	cfg.PollInterval = 200 * time.Microsecond
	cfg.WaveformCacheSize = 8
	return cfg
}

func newTestClient(t *testing.T, f *fakeScope, opts ...func(*ClientOption)) *Client {
	t.Helper()
	o := NewOption().SetConfig(fastConfig()).SetLogMode(false)
	for _, fn := range opts {
		fn(o)
	}
	c := NewClient(f, o)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// waveformReply builds a QW reply: echo prefix plus the trace name, 13 more
// metadata fields, two reserved fields, the declared length and the samples.
func waveformReply(declared string, payload []byte) []byte {
	fields := []string{
		"QWCH1", "V", "s", "0.0E+00", "-1.0E-03", "3.9E-03", "2.0E-06",
		"2.5E+02", "16-10-2026", "12:30:05", "0", "0", "1", "1",
		"0", "0", declared,
	}
	out := []byte(strings.Join(fields, ",") + ",")
	out = append(out, payload...)
	return append(out, CR)
}
