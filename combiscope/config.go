// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package combiscope

import (
	"errors"
	"time"

	"github.com/riclolsen/go-combiscope/transport"
)

// Constants defining default values and ranges for the protocol timing.
// The thresholds are byte counts observed on the PM33xx RS-232 interface.
const (
	// Bytes that must arrive after a command before it counts as accepted.
	DefaultAckThreshold = 2
	AckThresholdMin     = 1
	AckThresholdMax     = 64

	// Deadline for the acceptance bytes. Some instruments need 10s here.
	DefaultAckTimeout = 5 * time.Second
	AckTimeoutMin     = 1 * time.Millisecond
	AckTimeoutMax     = 60 * time.Second

	// A data reply has started once more than this many bytes are pending.
	DefaultReplyThreshold = 3
	ReplyThresholdMin     = 1
	ReplyThresholdMax     = 64

	// Deadline for a data reply to start arriving.
	DefaultReplyTimeout = 5 * time.Second
	ReplyTimeoutMin     = 1 * time.Millisecond
	ReplyTimeoutMax     = 60 * time.Second

	// Delay between two byte-count samples when waiting for the line to go quiet.
	DefaultQuiescenceInterval = 100 * time.Millisecond
	QuiescenceIntervalMin     = 1 * time.Millisecond
	QuiescenceIntervalMax     = 5 * time.Second

	// Granularity of the threshold polling loops.
	DefaultPollInterval = 1 * time.Millisecond
	PollIntervalMin     = 100 * time.Microsecond
	PollIntervalMax     = 1 * time.Second

	// Samples in the zero-filled waveform returned before any good acquisition.
	DefaultWaveformCacheSize = 32768
	WaveformCacheSizeMax     = 1 << 20
)

// Config defines the serial link and protocol timing of a Combiscope session.
type Config struct {
	// Serial port settings. Only needed when the client opens the port itself.
	Serial transport.SerialConfig

	// AckThreshold is the number of bytes that must be pending after a
	// control command before AckTimeout expires.
	AckThreshold int
	// AckTimeout bounds the wait for AckThreshold bytes.
	AckTimeout time.Duration

	// ReplyThreshold: a data reply has started once strictly more bytes
	// than this are pending.
	ReplyThreshold int
	// ReplyTimeout bounds the wait for a data reply to start.
	ReplyTimeout time.Duration

	// QuiescenceInterval is the delay between the two byte-count samples
	// that decide a reply has finished.
	QuiescenceInterval time.Duration
	// PollInterval is how often the pending byte count is checked while
	// waiting for a threshold.
	PollInterval time.Duration

	// WaveformCacheSize is the length of the zero waveform returned before
	// the first successful acquisition.
	WaveformCacheSize int
}

// Valid applies defaults and checks configuration validity.
func (sf *Config) Valid() error {
	if sf == nil {
		return errors.New("invalid nil config")
	}

	if sf.AckThreshold == 0 {
		sf.AckThreshold = DefaultAckThreshold
	} else if sf.AckThreshold < AckThresholdMin || sf.AckThreshold > AckThresholdMax {
		return errors.New("ack threshold out of range [1, 64] bytes")
	}

	if sf.AckTimeout == 0 {
		sf.AckTimeout = DefaultAckTimeout
	} else if sf.AckTimeout < AckTimeoutMin || sf.AckTimeout > AckTimeoutMax {
		return errors.New("ack timeout out of range [1ms, 60s]")
	}

	if sf.ReplyThreshold == 0 {
		sf.ReplyThreshold = DefaultReplyThreshold
	} else if sf.ReplyThreshold < ReplyThresholdMin || sf.ReplyThreshold > ReplyThresholdMax {
		return errors.New("reply threshold out of range [1, 64] bytes")
	}

	if sf.ReplyTimeout == 0 {
		sf.ReplyTimeout = DefaultReplyTimeout
	} else if sf.ReplyTimeout < ReplyTimeoutMin || sf.ReplyTimeout > ReplyTimeoutMax {
		return errors.New("reply timeout out of range [1ms, 60s]")
	}

	if sf.QuiescenceInterval == 0 {
		sf.QuiescenceInterval = DefaultQuiescenceInterval
	} else if sf.QuiescenceInterval < QuiescenceIntervalMin || sf.QuiescenceInterval > QuiescenceIntervalMax {
		return errors.New("quiescence interval out of range [1ms, 5s]")
	}

	if sf.PollInterval == 0 {
		sf.PollInterval = DefaultPollInterval
	} else if sf.PollInterval < PollIntervalMin || sf.PollInterval > PollIntervalMax {
		return errors.New("poll interval out of range [100us, 1s]")
	}

	if sf.WaveformCacheSize == 0 {
		sf.WaveformCacheSize = DefaultWaveformCacheSize
	} else if sf.WaveformCacheSize < 0 || sf.WaveformCacheSize > WaveformCacheSizeMax {
		return errors.New("waveform cache size out of range")
	}

	return nil
}

// DefaultConfig provides the timing used by the PM33xx series.
// NOTE: Serial.Address needs to be set explicitly before Dial.
func DefaultConfig() Config {
	return Config{
		Serial:             transport.DefaultSerialConfig(),
		AckThreshold:       DefaultAckThreshold,
		AckTimeout:         DefaultAckTimeout,
		ReplyThreshold:     DefaultReplyThreshold,
		ReplyTimeout:       DefaultReplyTimeout,
		QuiescenceInterval: DefaultQuiescenceInterval,
		PollInterval:       DefaultPollInterval,
		WaveformCacheSize:  DefaultWaveformCacheSize,
	}
}
