// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/otgw/internal/state"
	"github.com/Thermoquad/otgw/pkg/opentherm"
)

func TestObserveChanges(t *testing.T) {
	m := New(nil)
	store := state.New()

	m.ObserveChanges(store.Apply(opentherm.NewMessage(opentherm.SourceBoiler, opentherm.ReadAck, 25, 0x37, 0x80)))
	m.ObserveChanges(store.Apply(opentherm.NewMessage(opentherm.SourceAnswer, opentherm.ReadAck, 0, 0x01, 0x08)))

	assert.InDelta(t, 55.5, testutil.ToFloat64(m.values.WithLabelValues("flow_temp", "Boiler water temperature", "°C")), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.values.WithLabelValues("flame", "Flame on", "")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.values.WithLabelValues("fault", "Fault indication", "")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.overrides.WithLabelValues("flow_temp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.overrides.WithLabelValues("flame")))
}

func TestSetConnected(t *testing.T) {
	m := New(nil)
	m.SetConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connected))
	m.SetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connected))
}

func TestStatsCollector(t *testing.T) {
	stats := opentherm.NewStatistics()
	stats.RecordLine()
	stats.RecordLine()
	stats.RecordMalformed()
	stats.RecordMessage(opentherm.NewMessage(opentherm.SourceBoiler, opentherm.ReadAck, 25, 0, 0))

	c := newStatsCollector(stats)
	// seven scalar counters plus one series per message type
	assert.Equal(t, 7+len(opentherm.MessageTypes()), testutil.CollectAndCount(c))

	m := New(stats)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "otgw_lines_total 2")
	assert.Contains(t, string(body), "otgw_malformed_lines_total 1")
	assert.Contains(t, string(body), `otgw_messages_by_type_total{type="READ_ACK"} 1`)
	assert.Contains(t, string(body), "otgw_connected 0")
}
