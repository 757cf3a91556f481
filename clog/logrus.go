// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package clog

import (
	"github.com/sirupsen/logrus"
)

// logrusProvider adapts a logrus logger to LogProvider.
// Critical maps to logrus error level with a "critical" field set.
type logrusProvider struct {
	entry *logrus.Entry
}

var _ LogProvider = (*logrusProvider)(nil)

// NewLogrusProvider returns a LogProvider writing to l. A non-empty prefix is
// attached to every entry as the "component" field.
func NewLogrusProvider(l *logrus.Logger, prefix string) LogProvider {
	if l == nil {
		l = logrus.StandardLogger()
	}
	entry := logrus.NewEntry(l)
	if prefix != "" {
		entry = entry.WithField("component", prefix)
	}
	return &logrusProvider{entry: entry}
}

func (p *logrusProvider) Critical(format string, v ...interface{}) {
	p.entry.WithField("critical", true).Errorf(format, v...)
}

func (p *logrusProvider) Error(format string, v ...interface{}) {
	p.entry.Errorf(format, v...)
}

func (p *logrusProvider) Warn(format string, v ...interface{}) {
	p.entry.Warnf(format, v...)
}

func (p *logrusProvider) Debug(format string, v ...interface{}) {
	p.entry.Debugf(format, v...)
}
