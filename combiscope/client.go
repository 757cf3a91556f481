// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package combiscope drives a Philips/Fluke Combiscope (PM33xx) over its
// RS-232 remote control interface.
//
// The protocol is strictly half duplex: a command is written, then the
// client polls the number of pending bytes until the reply has started and
// the line has gone quiet. A Client runs one command at a time.
package combiscope

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/riclolsen/go-combiscope/clog"
	"github.com/riclolsen/go-combiscope/transport"
)

// Client is a session with one instrument. All methods are safe to call from
// several goroutines; they are executed one after another.
type Client struct {
	option    ClientOption
	transport Transport
	channel   *commandChannel

	clog.Clog

	mu       sync.Mutex
	open     bool
	identity string
	// last good acquisition, served when a reply fails validation
	previous []int16
	metadata Metadata
	panel    frontPanelController
}

// NewClient creates a session over an already opened transport.
// A nil option uses NewOption().
func NewClient(t Transport, o *ClientOption) *Client {
	if t == nil {
		panic("combiscope: transport cannot be nil")
	}
	if o == nil {
		o = NewOption()
	}
	opt := *o // Copy option

	logger := clog.NewLogger("combiscope")
	if opt.logProvider != nil {
		logger.SetLogProvider(opt.logProvider)
	}
	logger.LogMode(opt.logMode)

	if err := opt.config.Valid(); err != nil {
		logger.Warn("Invalid config provided, using defaults. Error: %v", err)
		serialCfg := opt.config.Serial
		opt.config = DefaultConfig()
		opt.config.Serial = serialCfg
	}

	sf := &Client{
		option:    opt,
		transport: t,
		Clog:      logger,
		open:      true,
		previous:  make([]int16, opt.config.WaveformCacheSize),
	}
	sf.channel = &commandChannel{
		t:       t,
		cfg:     &sf.option.config,
		log:     &sf.Clog,
		metrics: opt.metrics,
	}
	sf.panel = frontPanelController{
		state:   opt.panelState,
		send:    sf.channel.send,
		metrics: opt.metrics,
	}
	opt.metrics.setPanelMode(opt.panelState)
	return sf
}

// Dial opens the serial port named in the option's config and identifies the
// instrument. A failed identification is logged but does not fail Dial;
// String() stays empty until Identify succeeds.
func Dial(ctx context.Context, o *ClientOption) (*Client, error) {
	if o == nil {
		o = NewOption()
	}
	cfg := o.config
	port, err := transport.OpenSerial(cfg.Serial)
	if err != nil {
		return nil, err
	}

	sf := NewClient(port, o)
	sf.Debug("Serial port %s connected successfully", cfg.Serial.Address)
	if _, err := sf.Identify(ctx); err != nil {
		sf.Warn("Instrument on %s did not identify: %v", cfg.Serial.Address, err)
	}
	return sf, nil
}

// SetLogMode enables or disables logging output.
func (sf *Client) SetLogMode(enable bool) {
	sf.Clog.LogMode(enable)
}

// IsOpen reports whether the session and its transport are usable.
func (sf *Client) IsOpen() bool {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.isOpen()
}

func (sf *Client) isOpen() bool {
	if !sf.open {
		return false
	}
	if oc, ok := sf.transport.(openChecker); ok {
		return oc.IsOpen()
	}
	return true
}

func (sf *Client) checkOpen() error {
	if !sf.open {
		return ErrNotOpen
	}
	return nil
}

// Close ends the session and closes the transport.
func (sf *Client) Close() error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if !sf.open {
		return nil
	}
	sf.open = false
	sf.Debug("Close requested.")
	return sf.transport.Close()
}

// String returns the identity cached by the last successful Identify.
func (sf *Client) String() string {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.identity
}

// Config returns the effective configuration.
func (sf *Client) Config() Config {
	return sf.option.config
}

// Identify asks the instrument for its identity string (ID) and caches it.
func (sf *Client) Identify(ctx context.Context) (string, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if err := sf.checkOpen(); err != nil {
		return "", err
	}

	reply, err := sf.channel.query(ctx, SimpleCommand(MnemonicIdentify))
	if err != nil {
		return "", err
	}
	body, err := stripEcho(reply)
	if err != nil {
		return "", fmt.Errorf("identify: %w", err)
	}
	sf.identity = decodeLatin1(body)
	return sf.identity, nil
}

// exec sends one control command under the session lock.
func (sf *Client) exec(ctx context.Context, cmds ...Command) error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if err := sf.checkOpen(); err != nil {
		return err
	}
	for _, cmd := range cmds {
		if err := sf.channel.send(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// AutoSet runs the autoset function (AS).
func (sf *Client) AutoSet(ctx context.Context) error {
	return sf.exec(ctx, SimpleCommand(MnemonicAutoSet))
}

// ArmTrigger arms the trigger for a single shot acquisition (AT).
func (sf *Client) ArmTrigger(ctx context.Context) error {
	return sf.exec(ctx, SimpleCommand(MnemonicArmTrigger))
}

// DefaultSetup returns the instrument to its default setup (DS).
func (sf *Client) DefaultSetup(ctx context.Context) error {
	return sf.exec(ctx, SimpleCommand(MnemonicDefaultSetup))
}

// ResetInstrument resets the instrument software (RI). Settings and the
// interface parameters are kept, so the link stays up.
func (sf *Client) ResetInstrument(ctx context.Context) error {
	return sf.exec(ctx, SimpleCommand(MnemonicResetInstrument))
}

// SoftwareTrigger starts an acquisition or sweep (TA). In single shot mode
// call ArmTrigger first.
func (sf *Client) SoftwareTrigger(ctx context.Context) error {
	return sf.exec(ctx, SimpleCommand(MnemonicTriggerAcquire))
}

// DisplayText shows text on the instrument screen (PT, then the text).
// Each rune is sent as its low byte.
func (sf *Client) DisplayText(ctx context.Context, text string) error {
	return sf.exec(ctx, SimpleCommand(MnemonicPutText), TextPayloadCommand(text))
}

// ClearText removes any text put on screen by DisplayText.
func (sf *Client) ClearText(ctx context.Context) error {
	return sf.exec(ctx, SimpleCommand(MnemonicPutText), TextPayloadCommand(""))
}

// SetFrontPanelMode moves the front panel to mode, sending only the commands
// needed from the tracked state.
func (sf *Client) SetFrontPanelMode(ctx context.Context, mode FrontPanelMode) error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if err := sf.checkOpen(); err != nil {
		return err
	}
	return sf.panel.set(ctx, mode)
}

// FrontPanelMode returns the tracked front panel state.
func (sf *Client) FrontPanelMode() FrontPanelMode {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.panel.state
}

// GetWaveform reads the samples of channel from memory register (0 is the
// acquisition memory). When the reply fails validation the previous good
// samples are returned without error.
func (sf *Client) GetWaveform(ctx context.Context, channel, register int) ([]int16, error) {
	w, err := sf.Acquire(ctx, channel, register)
	if err != nil {
		return nil, err
	}
	return w.Samples, nil
}

// Acquire is GetWaveform with metadata and a Stale flag telling whether the
// cached samples were substituted.
func (sf *Client) Acquire(ctx context.Context, channel, register int) (*Waveform, error) {
	cmd, err := QueryWaveformCommand(channel, register)
	if err != nil {
		return nil, err
	}

	sf.mu.Lock()
	defer sf.mu.Unlock()
	if err := sf.checkOpen(); err != nil {
		return nil, err
	}

	reply, err := sf.channel.query(ctx, cmd)
	if err != nil {
		return nil, err
	}
	samples, md, stale := sf.decode(reply)
	return &Waveform{
		Identity:   strings.TrimRight(sf.identity, "\r\n"),
		Channel:    channel,
		Register:   register,
		Samples:    samples,
		Metadata:   md,
		Stale:      stale,
		AcquiredAt: time.Now(),
	}, nil
}

// decode applies the stale fallback: the cache is replaced only by a reply
// that passes validation, and callers always get a copy.
func (sf *Client) decode(reply []byte) ([]int16, Metadata, bool) {
	samples, md, err := DecodeWaveform(reply)
	if err != nil {
		sf.Warn("Serving cached waveform: %v", err)
		sf.option.metrics.incMismatch()
		return append([]int16(nil), sf.previous...), sf.metadata, true
	}
	sf.previous = samples
	sf.metadata = md
	return append([]int16(nil), samples...), md, false
}

// Metadata returns the header of the last waveform that decoded successfully.
func (sf *Client) Metadata() Metadata {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.metadata
}
