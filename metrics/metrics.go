// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

// Package metrics exports extraction progress as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/woozymasta/gamepak"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Stage labels which loop reported an event.
const (
	StageArchive = "archive"
	StageEntry   = "entry"
)

// Metrics holds the progress collectors.
type Metrics struct {
	processedTotal *prometheus.CounterVec
	bytesTotal     *prometheus.CounterVec
	scheduled      *prometheus.GaugeVec
	done           *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
// A nil reg means prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		processedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamepak_processed_total",
				Help: "Total number of processed items",
			},
			[]string{"stage", "status"},
		),
		bytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamepak_written_bytes_total",
				Help: "Total number of bytes written",
			},
			[]string{"stage"},
		),
		scheduled: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gamepak_scheduled_items",
				Help: "Number of items scheduled in the current run",
			},
			[]string{"stage"},
		),
		done: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gamepak_done_items",
				Help: "Number of items processed in the current run",
			},
			[]string{"stage"},
		),
	}
}

// Observe records one progress event of stage.
func (m *Metrics) Observe(stage string, p gamepak.Progress) {
	status := statusSuccess
	if p.Err != nil {
		status = statusError
	}

	m.processedTotal.WithLabelValues(stage, status).Inc()
	if p.Bytes > 0 {
		m.bytesTotal.WithLabelValues(stage).Add(float64(p.Bytes))
	}
	m.scheduled.WithLabelValues(stage).Set(float64(p.Total))
	m.done.WithLabelValues(stage).Set(float64(p.Done))
}

// Progress returns a progress sink for stage that chains to next (may be nil).
func (m *Metrics) Progress(stage string, next gamepak.ProgressFunc) gamepak.ProgressFunc {
	return func(p gamepak.Progress) {
		m.Observe(stage, p)
		if next != nil {
			next(p)
		}
	}
}
