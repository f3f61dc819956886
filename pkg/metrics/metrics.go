// Package metrics exposes Prometheus collectors for the automation engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dmflow"

// Metrics holds the engine collectors and the registry they are registered in.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	EventsReceived *prometheus.CounterVec
	FlowsTriggered *prometheus.CounterVec
	GateBlocks     *prometheus.CounterVec
	MessagesSent   *prometheus.CounterVec
	LinkClicks     *prometheus.CounterVec
	TimersFired    *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry together with the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Inbound comment and message events received",
			},
			[]string{"kind"},
		),

		FlowsTriggered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "flows",
				Name:      "triggered_total",
				Help:      "Flow runs started per trigger type",
			},
			[]string{"trigger_type"},
		),

		GateBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gates",
				Name:      "blocked_total",
				Help:      "Runs paused by a funnel gate",
			},
			[]string{"gate"},
		),

		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "sent_total",
				Help:      "Outbound messages per shape and status",
			},
			[]string{"shape", "status"},
		),

		LinkClicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "links",
				Name:      "clicked_total",
				Help:      "Tracked link clicks",
			},
			[]string{"flow_id"},
		),

		TimersFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "timers",
				Name:      "fired_total",
				Help:      "Delay timers resumed per outcome",
			},
			[]string{"status"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "runs",
				Name:      "duration_seconds",
				Help:      "Time spent handling one inbound event",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.EventsReceived,
		m.FlowsTriggered,
		m.GateBlocks,
		m.MessagesSent,
		m.LinkClicks,
		m.TimersFired,
		m.RunDuration,
	)

	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) RecordEvent(kind string) {
	if m == nil {
		return
	}

	m.EventsReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordTriggered(triggerType string) {
	if m == nil {
		return
	}

	m.FlowsTriggered.WithLabelValues(triggerType).Inc()
}

func (m *Metrics) RecordGateBlock(gate string) {
	if m == nil {
		return
	}

	m.GateBlocks.WithLabelValues(gate).Inc()
}

func (m *Metrics) RecordSend(shape string, ok bool) {
	if m == nil {
		return
	}

	status := "sent"
	if !ok {
		status = "failed"
	}

	m.MessagesSent.WithLabelValues(shape, status).Inc()
}

func (m *Metrics) RecordLinkClick(flowID string) {
	if m == nil {
		return
	}

	m.LinkClicks.WithLabelValues(flowID).Inc()
}

func (m *Metrics) RecordTimer(status string) {
	if m == nil {
		return
	}

	m.TimersFired.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordDuration(kind string, duration time.Duration) {
	if m == nil {
		return
	}

	m.RunDuration.WithLabelValues(kind).Observe(duration.Seconds())
}
