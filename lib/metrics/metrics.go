// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus collectors of the display
// server. Every recording method is safe to call on a nil *Metrics, so
// components take an optional *Metrics and never check for it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bureau_xserver"

// Handshake results.
const (
	HandshakeAccepted = "accepted"
	HandshakeRejected = "rejected"
	HandshakeFailed   = "failed"
	HandshakeTimedOut = "timed_out"
)

// Request outcomes.
const (
	OutcomeReply   = "reply"
	OutcomeError   = "error"
	OutcomeNoReply = "no_reply"
	OutcomeDropped = "dropped"
)

// Metrics holds the server's collectors.
type Metrics struct {
	registerer prometheus.Registerer

	connectionsTotal prometheus.Counter
	activeSessions   prometheus.Gauge
	handshakesTotal  *prometheus.CounterVec
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	violationsTotal  *prometheus.CounterVec
	atomsInterned    prometheus.Counter
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		registerer: registerer,

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Client connections accepted.",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Client sessions currently open.",
		}),
		handshakesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Connection handshakes by result.",
		}, []string{"result"}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests dispatched, by opcode and outcome.",
		}, []string{"opcode", "outcome"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent in the request handler.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}, []string{"opcode"}),
		violationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Sessions closed for a protocol violation, by reason.",
		}, []string{"reason"}),
		atomsInterned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "atoms_interned_total",
			Help:      "Atoms created at runtime.",
		}),
	}
}

// TrackAtomTable exports the current atom count, read on each scrape.
func (m *Metrics) TrackAtomTable(count func() int) {
	if m == nil {
		return
	}
	promauto.With(m.registerer).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "atoms",
		Help:      "Atoms in the table, predefined included.",
	}, func() float64 { return float64(count()) })
}

// SessionOpened records an accepted connection.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.activeSessions.Inc()
}

// SessionClosed records the end of a session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// Handshake records a handshake result.
func (m *Metrics) Handshake(result string) {
	if m == nil {
		return
	}
	m.handshakesTotal.WithLabelValues(result).Inc()
}

// Request records one dispatched request.
func (m *Metrics) Request(opcode, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(opcode, outcome).Inc()
	m.requestDuration.WithLabelValues(opcode).Observe(elapsed.Seconds())
}

// Violation records a session closed for a protocol violation.
func (m *Metrics) Violation(reason string) {
	if m == nil {
		return
	}
	m.violationsTotal.WithLabelValues(reason).Inc()
}

// AtomInterned records a newly allocated atom.
func (m *Metrics) AtomInterned() {
	if m == nil {
		return
	}
	m.atomsInterned.Inc()
}

// Handler serves the metrics gathered by gatherer in the Prometheus
// exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
