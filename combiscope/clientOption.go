// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package combiscope

import (
	"github.com/riclolsen/go-combiscope/clog"
	"github.com/riclolsen/go-combiscope/transport"
)

// ClientOption client (session) configuration options
type ClientOption struct {
	config      Config
	metrics     *Metrics
	logProvider clog.LogProvider
	logMode     bool
	// front panel state inherited from a previous session, if known
	panelState FrontPanelMode
}

// NewOption creates a new ClientOption with the default configuration.
// Note: the serial address needs to be set with SetSerialConfig before Dial.
func NewOption() *ClientOption {
	return &ClientOption{
		config:     DefaultConfig(),
		logMode:    true,
		panelState: ModeLocal,
	}
}

// SetConfig sets the main configuration. Uses DefaultConfig() if the provided cfg is invalid.
func (sf *ClientOption) SetConfig(cfg Config) *ClientOption {
	if err := cfg.Valid(); err != nil {
		sf.config = DefaultConfig()
	} else {
		sf.config = cfg
	}
	return sf
}

// SetSerialConfig sets the serial port configuration within the main config.
func (sf *ClientOption) SetSerialConfig(serialCfg transport.SerialConfig) *ClientOption {
	sf.config.Serial = serialCfg
	return sf
}

// SetMetrics attaches Prometheus collectors to the session.
func (sf *ClientOption) SetMetrics(m *Metrics) *ClientOption {
	sf.metrics = m
	return sf
}

// SetLogProvider routes session logging to p.
func (sf *ClientOption) SetLogProvider(p clog.LogProvider) *ClientOption {
	sf.logProvider = p
	return sf
}

// SetLogMode enables or disables session logging. Enabled by default.
func (sf *ClientOption) SetLogMode(enable bool) *ClientOption {
	sf.logMode = enable
	return sf
}

// SetFrontPanelState declares the front panel state the instrument is
// already in, e.g. ModeUnknown after someone operated the front panel by
// hand. Out of range values are ignored.
func (sf *ClientOption) SetFrontPanelState(m FrontPanelMode) *ClientOption {
	if m >= ModeLocal && m <= ModeUnknown {
		sf.panelState = m
	}
	return sf
}

// Config returns a copy of the configuration held by the option.
func (sf *ClientOption) Config() Config {
	return sf.config
}
