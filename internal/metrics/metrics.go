// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports gateway readings and link counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/otgw/internal/state"
	"github.com/Thermoquad/otgw/pkg/opentherm"
)

const namespace = "otgw"

// Metrics owns a private registry so only otgw series are exported.
type Metrics struct {
	registry  *prometheus.Registry
	values    *prometheus.GaugeVec
	overrides *prometheus.GaugeVec
	connected prometheus.Gauge
	updated   prometheus.Gauge
}

// New creates the metrics and registers a collector for stats.
func New(stats *opentherm.Statistics) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "value",
			Help:      "Latest decoded value of an OpenTherm data item",
		}, []string{"channel", "subject", "unit"}),
		overrides: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "value_overridden",
			Help:      "1 when the latest reading was injected by the gateway",
		}, []string{"channel"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while connected to the gateway",
		}),
		updated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_update_timestamp_seconds",
			Help:      "Unix time of the last value update",
		}),
	}

	m.registry.MustRegister(m.values, m.overrides, m.connected, m.updated)
	if stats != nil {
		m.registry.MustRegister(newStatsCollector(stats))
	}
	return m
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetConnected records the gateway link state.
func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// Observe records a reading.
func (m *Metrics) Observe(e state.Entry) {
	item := e.Value.Item
	m.values.WithLabelValues(item.Channel, item.Subject, item.Unit).Set(e.Value.Number())

	var overridden float64
	if e.Overridden() {
		overridden = 1
	}
	m.overrides.WithLabelValues(item.Channel).Set(overridden)
	m.updated.Set(float64(e.Updated.Unix()))
}

// ObserveChanges records every changed reading.
func (m *Metrics) ObserveChanges(changes []state.Change) {
	for _, c := range changes {
		m.Observe(c.Entry)
	}
}

// statsCollector reads the link counters at scrape time.
type statsCollector struct {
	stats *opentherm.Statistics

	lines         *prometheus.Desc
	messages      *prometheus.Desc
	malformed     *prometheus.Desc
	dispatched    *prometheus.Desc
	unknownIDs    *prometheus.Desc
	responses     *prometheus.Desc
	gatewayErrors *prometheus.Desc
	byType        *prometheus.Desc
}

func newStatsCollector(stats *opentherm.Statistics) *statsCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &statsCollector{
		stats:         stats,
		lines:         desc("lines_total", "Lines read from the gateway"),
		messages:      desc("messages_total", "OpenTherm messages parsed"),
		malformed:     desc("malformed_lines_total", "Lines that were neither messages nor responses"),
		dispatched:    desc("dispatched_messages_total", "Messages handed to the callback"),
		unknownIDs:    desc("unknown_id_messages_total", "Messages with an undocumented data-ID"),
		responses:     desc("command_responses_total", "Command responses received"),
		gatewayErrors: desc("gateway_errors_total", "Error reports printed by the gateway"),
		byType:        desc("messages_by_type_total", "OpenTherm messages by message type", "type"),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lines
	ch <- c.messages
	ch <- c.malformed
	ch <- c.dispatched
	ch <- c.unknownIDs
	ch <- c.responses
	ch <- c.gatewayErrors
	ch <- c.byType
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Snapshot()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(c.lines, s.Lines)
	counter(c.messages, s.Messages)
	counter(c.malformed, s.Malformed)
	counter(c.dispatched, s.Dispatched)
	counter(c.unknownIDs, s.UnknownIDs)
	counter(c.responses, s.Responses)
	counter(c.gatewayErrors, s.GatewayErrors)
	for _, t := range opentherm.MessageTypes() {
		counter(c.byType, s.ByType[t], t.String())
	}
}
