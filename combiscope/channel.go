// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package combiscope

import (
	"context"
	"io"
	"time"

	"github.com/riclolsen/go-combiscope/clog"
)

// commandChannel writes commands and gathers replies over a half-duplex
// Transport. It is not reentrant; Client serializes access to it.
type commandChannel struct {
	t       Transport
	cfg     *Config
	log     *clog.Clog
	metrics *Metrics
}

// waitUntil polls cond every interval until it holds, the timeout expires or
// ctx is done. cond is checked once more when the timeout fires.
func waitUntil(ctx context.Context, timeout, interval time.Duration, cond func() bool) (bool, error) {
	if cond() {
		return true, nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return cond(), nil
		case <-tick.C:
			if cond() {
				return true, nil
			}
		}
	}
}

// sleepCtx pauses for d unless ctx is done first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// transmit flushes stale input left over from an earlier reply and writes cmd.
func (ch *commandChannel) transmit(cmd Command) error {
	if n := ch.t.BytesAvailable(); n > 0 {
		ch.log.Debug("Discarding %d stale bytes before %s", n, cmd.Name)
		if err := ch.t.Discard(); err != nil {
			ch.metrics.incFailure(cmd.Name, failureIO)
			return &IoError{Command: cmd.Name, Stage: StageDiscard, Err: err}
		}
	}

	ch.log.Debug("TX %s [% X]", cmd.Name, cmd.Raw)
	ch.metrics.incCommand(cmd.Name)
	n, err := ch.t.Write(cmd.Raw)
	if err == nil && n < len(cmd.Raw) {
		err = io.ErrShortWrite
	}
	if err != nil {
		ch.log.Error("Failed to write %s: %v", cmd.Name, err)
		ch.metrics.incFailure(cmd.Name, failureIO)
		return &IoError{Command: cmd.Name, Stage: StageWrite, Err: err}
	}
	return nil
}

// send writes cmd and waits until the instrument starts answering.
func (ch *commandChannel) send(ctx context.Context, cmd Command) error {
	start := time.Now()
	if err := ch.transmit(cmd); err != nil {
		return err
	}

	ok, err := waitUntil(ctx, ch.cfg.AckTimeout, ch.cfg.PollInterval, func() bool {
		return ch.t.BytesAvailable() >= ch.cfg.AckThreshold
	})
	if err != nil {
		return err
	}
	if !ok {
		ch.log.Warn("%s not acknowledged within %v", cmd.Name, ch.cfg.AckTimeout)
		ch.metrics.incFailure(cmd.Name, failureTimeout)
		return &TimeoutError{
			Command:   cmd.Name,
			Stage:     StageAck,
			Threshold: ch.cfg.AckThreshold,
			Received:  ch.t.BytesAvailable(),
			Deadline:  ch.cfg.AckTimeout,
		}
	}
	ch.metrics.observeDuration(cmd.Name, time.Since(start))
	return nil
}

// collect waits for a reply and returns it once the line has gone quiet.
// It returns an empty slice when no reply starts before the deadline or ctx
// is done before the line goes quiet.
//
// The reply is considered complete as soon as two byte counts taken
// QuiescenceInterval apart are equal, so a stall longer than that in the
// middle of a transmission cuts the reply short.
func (ch *commandChannel) collect(ctx context.Context) []byte {
	ok, err := waitUntil(ctx, ch.cfg.ReplyTimeout, ch.cfg.PollInterval, func() bool {
		return ch.t.BytesAvailable() > ch.cfg.ReplyThreshold
	})
	if err != nil || !ok {
		return []byte{}
	}

	current := ch.t.BytesAvailable()
	for {
		last := current
		if err := sleepCtx(ctx, ch.cfg.QuiescenceInterval); err != nil {
			// a cancelled read leaves the partial reply for the next discard
			return []byte{}
		}
		current = ch.t.BytesAvailable()
		if current <= last {
			break
		}
	}

	reply := make([]byte, ch.t.BytesAvailable())
	got := 0
	for got < len(reply) {
		n, err := ch.t.Read(reply[got:])
		got += n
		if err != nil {
			ch.log.Warn("Read stopped after %d of %d bytes: %v", got, len(reply), err)
			break
		}
		if n == 0 {
			break
		}
	}
	reply = reply[:got]
	ch.log.Debug("RX %d bytes [% X]", len(reply), reply)
	ch.metrics.observeReply(len(reply))
	return reply
}

// query writes cmd and collects its reply. An empty reply is a timeout and a
// cancelled ctx discards whatever arrived.
func (ch *commandChannel) query(ctx context.Context, cmd Command) ([]byte, error) {
	start := time.Now()
	if err := ch.transmit(cmd); err != nil {
		return nil, err
	}
	reply := ch.collect(ctx)
	if err := ctx.Err(); err != nil {
		ch.log.Debug("%s cancelled after %d reply bytes", cmd.Name, len(reply))
		return nil, err
	}
	if len(reply) == 0 {
		ch.log.Warn("No reply to %s within %v", cmd.Name, ch.cfg.ReplyTimeout)
		ch.metrics.incFailure(cmd.Name, failureTimeout)
		return nil, &TimeoutError{
			Command:   cmd.Name,
			Stage:     StageReply,
			Threshold: ch.cfg.ReplyThreshold + 1,
			Received:  ch.t.BytesAvailable(),
			Deadline:  ch.cfg.ReplyTimeout,
		}
	}
	ch.metrics.observeDuration(cmd.Name, time.Since(start))
	return reply, nil
}
