// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package combiscope

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	failureIO      = "io"
	failureTimeout = "timeout"
)

// Metrics holds the Prometheus collectors updated by a Client.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Commands         *prometheus.CounterVec
	Failures         *prometheus.CounterVec
	DecodeMismatches prometheus.Counter
	ReplyBytes       prometheus.Histogram
	CommandDuration  *prometheus.HistogramVec
	FrontPanelMode   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "combiscope",
			Name:      "commands_total",
			Help:      "Commands written to the instrument.",
		}, []string{"command"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "combiscope",
			Name:      "command_failures_total",
			Help:      "Commands that failed, by failure kind (io, timeout).",
		}, []string{"command", "kind"}),
		DecodeMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "combiscope",
			Name:      "waveform_decode_mismatches_total",
			Help:      "Waveform replies rejected and replaced by the cached waveform.",
		}),
		ReplyBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "combiscope",
			Name:      "reply_bytes",
			Help:      "Size of collected replies.",
			Buckets:   prometheus.ExponentialBuckets(8, 4, 8),
		}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "combiscope",
			Name:      "command_duration_seconds",
			Help:      "Time from write to settled reply.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"command"}),
		FrontPanelMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "combiscope",
			Name:      "front_panel_mode",
			Help:      "Tracked front panel state (0 local, 1 remote, 2 local lockout, 3 unknown).",
		}),
	}
	reg.MustRegister(m.Commands, m.Failures, m.DecodeMismatches, m.ReplyBytes, m.CommandDuration, m.FrontPanelMode)
	return m
}

func (m *Metrics) incCommand(name string) {
	if m != nil {
		m.Commands.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) incFailure(name, kind string) {
	if m != nil {
		m.Failures.WithLabelValues(name, kind).Inc()
	}
}

func (m *Metrics) incMismatch() {
	if m != nil {
		m.DecodeMismatches.Inc()
	}
}

func (m *Metrics) observeReply(n int) {
	if m != nil {
		m.ReplyBytes.Observe(float64(n))
	}
}

func (m *Metrics) observeDuration(name string, d time.Duration) {
	if m != nil {
		m.CommandDuration.WithLabelValues(name).Observe(d.Seconds())
	}
}

func (m *Metrics) setPanelMode(mode FrontPanelMode) {
	if m != nil {
		m.FrontPanelMode.Set(float64(mode))
	}
}
