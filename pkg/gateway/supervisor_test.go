// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/otgw/internal/logger"
	"github.com/Thermoquad/otgw/pkg/opentherm"
)

func newTestSupervisor(t *testing.T, d *pipeDialer, cb Callback) *Supervisor {
	t.Helper()
	s, err := NewSupervisor(d, cb,
		WithLogger(logger.Discard()),
		WithReadTimeout(20*time.Millisecond),
		WithInitCommands(),
	)
	require.NoError(t, err)
	s.SetBackoff(10*time.Millisecond, 40*time.Millisecond)
	return s
}

func TestSupervisorRetriesUntilConnected(t *testing.T) {
	d := newPipeDialer(2)
	rec := &recorder{}
	s := newTestSupervisor(t, d, rec)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	require.Eventually(t, s.IsConnected, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), d.dials.Load())
	assert.Equal(t, ConnectedState, s.State())

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	assert.False(t, s.IsConnected())
}

func TestSupervisorReconnectsAfterConnectionLoss(t *testing.T) {
	d := newPipeDialer(0)
	rec := &recorder{}
	s := newTestSupervisor(t, d, rec)
	s.Start(context.Background())
	defer s.Stop()

	g := d.gateway(t)
	g.send(t, "B401C0280\r\n")
	require.Eventually(t, func() bool { return len(rec.Messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, g.server.Close())

	g = d.gateway(t)
	require.Eventually(t, s.IsConnected, 2*time.Second, 5*time.Millisecond)
	g.send(t, "B401C0280\r\n")
	require.Eventually(t, func() bool { return len(rec.Messages()) == 2 }, 2*time.Second, 5*time.Millisecond)

	// statistics survive the reconnect
	assert.Equal(t, uint64(2), s.Statistics().Snapshot().Messages)
}

func TestSupervisorStopDuringDial(t *testing.T) {
	d := &stallingDialer{dialing: make(chan struct{})}
	s, err := NewSupervisor(d, &recorder{},
		WithLogger(logger.Discard()),
		WithConnectTimeout(30*time.Second),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case <-d.dialing:
	case <-time.After(2 * time.Second):
		t.Fatal("dial never started")
	}

	start := time.Now()
	s.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSupervisorSendWithoutConnection(t *testing.T) {
	log := logger.NewPermissiveMockLogger()
	s, err := NewSupervisor(newPipeDialer(0), &recorder{}, WithLogger(log))
	require.NoError(t, err)

	cmd, err := opentherm.NewGatewayCommand(opentherm.CmdCentralHeating, "0")
	require.NoError(t, err)
	require.NoError(t, s.SendCommand(cmd))
	log.AssertCalled(t, "Warn", "not connected to gateway, command dropped", []any{"command", "CH=0"})
	assert.Equal(t, DisconnectedState, s.State())
}
