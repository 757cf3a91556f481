// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package clog is a small embeddable logger with a runtime on/off switch.
// Output goes through a LogProvider, by default a logrus logger.
package clog

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// LogProvider receives formatted log calls.
type LogProvider interface {
	Critical(format string, v ...interface{})
	Error(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Debug(format string, v ...interface{})
}

// Clog is meant to be embedded in types that want Debug/Warn/Error/Critical
// methods. Logging is off until LogMode(true) is called.
type Clog struct {
	provider LogProvider
	// has log output enabled, 1: enable, 0: disable
	has uint32
}

// NewLogger creates a Clog that writes through the package default logrus
// logger, tagging every line with prefix.
func NewLogger(prefix string) Clog {
	return Clog{
		provider: NewLogrusProvider(logrus.StandardLogger(), prefix),
	}
}

// LogMode enables or disables log output.
func (sf *Clog) LogMode(enable bool) {
	if enable {
		atomic.StoreUint32(&sf.has, 1)
	} else {
		atomic.StoreUint32(&sf.has, 0)
	}
}

// SetLogProvider replaces the log provider. nil is ignored.
func (sf *Clog) SetLogProvider(p LogProvider) {
	if p != nil {
		sf.provider = p
	}
}

func (sf *Clog) enabled() bool {
	return sf.provider != nil && atomic.LoadUint32(&sf.has) == 1
}

// Critical logs at critical level.
func (sf *Clog) Critical(format string, v ...interface{}) {
	if sf.enabled() {
		sf.provider.Critical(format, v...)
	}
}

// Error logs at error level.
func (sf *Clog) Error(format string, v ...interface{}) {
	if sf.enabled() {
		sf.provider.Error(format, v...)
	}
}

// Warn logs at warn level.
func (sf *Clog) Warn(format string, v ...interface{}) {
	if sf.enabled() {
		sf.provider.Warn(format, v...)
	}
}

// Debug logs at debug level.
func (sf *Clog) Debug(format string, v ...interface{}) {
	if sf.enabled() {
		sf.provider.Debug(format, v...)
	}
}
