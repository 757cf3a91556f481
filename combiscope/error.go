// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package combiscope

import (
	"errors"
	"fmt"
	"time"
)

// error defined
var (
	ErrNotOpen         = errors.New("combiscope: session is not open")
	ErrIO              = errors.New("combiscope: transport i/o failure")
	ErrTimeout         = errors.New("combiscope: response timeout")
	ErrDecodeMismatch  = errors.New("combiscope: waveform length mismatch")
	ErrShortReply      = errors.New("combiscope: reply shorter than echo prefix")
	ErrInvalidMode     = errors.New("combiscope: invalid front panel mode")
	ErrInvalidArgument = errors.New("combiscope: invalid argument")
)

// Stages at which an IoError can happen.
const (
	StageDiscard = "discard"
	StageWrite   = "write"
)

// IoError reports a failed input flush or write for a command.
type IoError struct {
	Command string
	Stage   string
	Err     error
}

func (e *IoError) Error() string {
	stage := e.Stage
	if stage == "" {
		stage = StageWrite
	}
	return fmt.Sprintf("combiscope: %s: %s failed: %v", e.Command, stage, e.Err)
}

// Unwrap matches both ErrIO and the transport error.
func (e *IoError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

// Stages at which a TimeoutError can happen.
const (
	StageAck   = "ack"
	StageReply = "reply"
)

// TimeoutError reports that the instrument did not produce the required
// number of bytes before the deadline.
type TimeoutError struct {
	Command   string
	Stage     string
	Threshold int
	Received  int
	Deadline  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("combiscope: %s: no %s within %v (need %d bytes, have %d)",
		e.Command, e.Stage, e.Deadline, e.Threshold, e.Received)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// Timeout is always true, matching the net.Error convention.
func (e *TimeoutError) Timeout() bool {
	return true
}

// DecodeMismatchError reports a waveform reply that failed validation.
// Client absorbs it and serves the cached waveform instead.
type DecodeMismatchError struct {
	Declared  int
	Available int
	Reason    string
}

func (e *DecodeMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("combiscope: waveform reply rejected: %s", e.Reason)
	}
	return fmt.Sprintf("combiscope: waveform declares %d samples, reply carries %d", e.Declared, e.Available)
}

func (e *DecodeMismatchError) Unwrap() error {
	return ErrDecodeMismatch
}
