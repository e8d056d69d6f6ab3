// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/otgw/internal/logger"
	"github.com/Thermoquad/otgw/pkg/capture"
	"github.com/Thermoquad/otgw/pkg/opentherm"
)

func newTestConnector(t *testing.T, d *pipeDialer, cb Callback, opts ...Option) *SocketConnector {
	t.Helper()
	base := []Option{
		WithLogger(logger.Discard()),
		WithReadTimeout(20 * time.Millisecond),
		WithInitCommands(),
	}
	c, err := NewSocketConnector(d, cb, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func startConnector(t *testing.T, c *SocketConnector) {
	t.Helper()
	c.Start(context.Background())
	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)
	t.Cleanup(func() {
		c.Stop()
		waitDone(t, c.Done(), 2*time.Second)
	})
}

// ============================================================================
// Dispatch
// ============================================================================

func TestConnectorDispatchesReadAckAndWriteData(t *testing.T) {
	d := newPipeDialer(0)
	rec := &recorder{}
	c := newTestConnector(t, d, rec)
	startConnector(t, c)
	g := d.gateway(t)

	g.send(t, "OpenTherm Gateway 4.2.5\r\n")
	g.send(t, "B401C0280\r\n") // READ_ACK, known id 28
	g.send(t, "T80000200\r\n") // READ_DATA, not dispatched
	g.send(t, "B70FA0000\r\n") // UNKNOWN_DATAID, not dispatched
	g.send(t, "T10FA0000\r\n") // WRITE_DATA, unknown id 250
	g.send(t, "not a frame\r\n")

	require.Eventually(t, func() bool {
		snap := c.Statistics().Snapshot()
		return snap.Lines == 6 && snap.Malformed == 2
	}, 2*time.Second, 5*time.Millisecond)

	msgs := rec.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, uint8(28), msgs[0].ID())
	assert.Equal(t, opentherm.ReadAck, msgs[0].MessageType())
	assert.InDelta(t, 2.5, msgs[0].Float(), 1e-9)
	assert.Equal(t, uint8(250), msgs[1].ID())
	assert.Equal(t, opentherm.WriteData, msgs[1].MessageType())

	snap := c.Statistics().Snapshot()
	assert.Equal(t, uint64(4), snap.Messages)
	assert.Equal(t, uint64(2), snap.Malformed)
	assert.Equal(t, uint64(2), snap.Dispatched)
	assert.Equal(t, uint64(2), snap.UnknownIDs)
}

func TestConnectorKeepsPartialLineAcrossTimeouts(t *testing.T) {
	d := newPipeDialer(0)
	rec := &recorder{}
	c := newTestConnector(t, d, rec)
	startConnector(t, c)
	g := d.gateway(t)

	g.send(t, "B401C")
	time.Sleep(100 * time.Millisecond) // several read timeouts
	g.send(t, "0280\r\n")

	require.Eventually(t, func() bool { return len(rec.Messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "B401C0280", rec.Messages()[0].Raw())
}

func TestConnectorDiscardsOverlongLine(t *testing.T) {
	d := newPipeDialer(0)
	rec := &recorder{}
	c := newTestConnector(t, d, rec)
	startConnector(t, c)
	g := d.gateway(t)

	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	g.send(t, string(long)+"\r\nB401C0280\r\n")

	require.Eventually(t, func() bool { return len(rec.Messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), c.Statistics().Snapshot().Malformed)
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestConnectorSendsInitCommands(t *testing.T) {
	d := newPipeDialer(0)
	rec := &recorder{}
	c, err := NewSocketConnector(d, rec, WithLogger(logger.Discard()), WithReadTimeout(20*time.Millisecond))
	require.NoError(t, err)
	startConnector(t, c)
	g := d.gateway(t)

	g.expectLine(t, "PR=A")
	g.expectLine(t, "PS=0")
	assert.Equal(t, []string{"connecting", "connected"}, rec.Events())
}

func TestConnectorStopWithinReadTimeout(t *testing.T) {
	d := newPipeDialer(0)
	rec := &recorder{}
	c := newTestConnector(t, d, rec, WithReadTimeout(50*time.Millisecond))
	c.Start(context.Background())
	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, ConnectedState, c.State())

	start := time.Now()
	c.Stop()
	waitDone(t, c.Done(), time.Second)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	assert.NoError(t, c.Err())
	assert.False(t, c.IsConnected())
	assert.Equal(t, DisconnectedState, c.State())
	assert.Equal(t, []string{"connecting", "connected", "disconnected"}, rec.Events())
}

func TestConnectorContextCancel(t *testing.T) {
	d := newPipeDialer(0)
	rec := &recorder{}
	c := newTestConnector(t, d, rec)

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)

	cancel()
	waitDone(t, c.Done(), time.Second)
	assert.Equal(t, []string{"connecting", "connected", "disconnected"}, rec.Events())
}

func TestConnectorContextCancelInterruptsRead(t *testing.T) {
	d := newPipeDialer(0)
	rec := &recorder{}
	c := newTestConnector(t, d, rec, WithReadTimeout(5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	cancel()
	waitDone(t, c.Done(), 2*time.Second)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.NoError(t, c.Err())
	assert.Equal(t, []string{"connecting", "connected", "disconnected"}, rec.Events())
}

func TestConnectorStopAbortsDial(t *testing.T) {
	d := &stallingDialer{dialing: make(chan struct{})}
	rec := &recorder{}
	c, err := NewSocketConnector(d, rec,
		WithLogger(logger.Discard()),
		WithConnectTimeout(30*time.Second),
	)
	require.NoError(t, err)
	c.Start(context.Background())

	select {
	case <-d.dialing:
	case <-time.After(2 * time.Second):
		t.Fatal("dial never started")
	}

	start := time.Now()
	c.Stop()
	waitDone(t, c.Done(), 2*time.Second)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.NoError(t, c.Err())
	assert.Equal(t, []string{"connecting", "disconnected"}, rec.Events())
}

func TestConnectorStopBeforeRun(t *testing.T) {
	d := newPipeDialer(0)
	rec := &recorder{}
	c := newTestConnector(t, d, rec)

	c.Stop()
	require.NoError(t, c.Run(context.Background()))
	assert.False(t, c.IsConnected())
	assert.Equal(t, []string{"connecting", "disconnected"}, rec.Events())
}

func TestConnectorConnectFailure(t *testing.T) {
	d := newPipeDialer(1)
	rec := &recorder{}
	c := newTestConnector(t, d, rec)

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errDialRefused))
	assert.Equal(t, []string{"connecting", "disconnected"}, rec.Events())
	assert.Equal(t, DisconnectedState, c.State())
}

func TestConnectorEndOfStream(t *testing.T) {
	d := newPipeDialer(0)
	rec := &recorder{}
	c := newTestConnector(t, d, rec)
	c.Start(context.Background())
	g := d.gateway(t)

	g.send(t, "B401C0280\r\n")
	require.Eventually(t, func() bool { return len(rec.Messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, g.server.Close())

	waitDone(t, c.Done(), time.Second)
	assert.True(t, errors.Is(c.Err(), io.EOF))
	assert.Equal(t, []string{"connecting", "connected", "disconnected"}, rec.Events())
}

func TestConnectorRunsOnce(t *testing.T) {
	d := newPipeDialer(1)
	c := newTestConnector(t, d, &recorder{})

	require.Error(t, c.Run(context.Background()))
	assert.ErrorIs(t, c.Run(context.Background()), ErrAlreadyRunning)
}

// ============================================================================
// Commands
// ============================================================================

func TestConnectorSendWhileDisconnectedIsNoop(t *testing.T) {
	log := logger.NewPermissiveMockLogger()
	c, err := NewSocketConnector(newPipeDialer(0), &recorder{}, WithLogger(log))
	require.NoError(t, err)

	require.NoError(t, c.SendCommand(mustCommand(t, opentherm.CmdCentralHeating, "1")))
	log.AssertCalled(t, "Warn", "not connected to gateway, command dropped", []any{"command", "CH=1"})

	assert.ErrorIs(t, c.SendCommand(nil), ErrNilCommand)
}

func TestConnectorCommandResponse(t *testing.T) {
	d := newPipeDialer(0)
	rec := &recorder{}
	var observed []string
	c := newTestConnector(t, d, rec, WithLineObserver(func(dir capture.Direction, line string) {
		if dir == capture.Sent {
			observed = append(observed, line)
		}
	}))
	startConnector(t, c)
	g := d.gateway(t)

	require.NoError(t, c.SendCommand(mustCommand(t, opentherm.CmdCentralHeating, "1")))
	g.expectLine(t, "CH=1")
	g.send(t, "CH: 1\r\n")

	require.Eventually(t, func() bool { return len(rec.Responses()) == 1 }, 2*time.Second, 5*time.Millisecond)
	resp := rec.Responses()[0]
	assert.True(t, resp.OK())
	assert.Equal(t, "CH", resp.Code)
	assert.Equal(t, "1", resp.Value)
	require.NotNil(t, resp.Command)
	assert.Equal(t, "CH=1", resp.Command.String())
	assert.Equal(t, 0, c.pending.count())
	assert.Equal(t, []string{"CH=1"}, observed)
}

func TestConnectorGatewayErrorRejectsOldestCommand(t *testing.T) {
	d := newPipeDialer(0)
	rec := &recorder{}
	c := newTestConnector(t, d, rec)
	startConnector(t, c)
	g := d.gateway(t)

	require.NoError(t, c.SendCommand(mustCommand(t, opentherm.CmdTemperatureTemporary, "99")))
	g.expectLine(t, "TT=99")
	g.send(t, "Error 03\r\n") // bus error, not a command answer
	g.send(t, "OR\r\n")

	require.Eventually(t, func() bool { return len(rec.Responses()) == 1 }, 2*time.Second, 5*time.Millisecond)
	resp := rec.Responses()[0]
	assert.False(t, resp.OK())
	assert.Equal(t, "TT", resp.Code)

	var gerr GatewayError
	require.True(t, errors.As(resp.Err, &gerr))
	assert.Equal(t, "OR", gerr.Code)
	assert.Equal(t, uint64(2), c.Statistics().Snapshot().GatewayErrors)
}

func TestConnectorResendsAndExpiresCommands(t *testing.T) {
	d := newPipeDialer(0)
	rec := &recorder{}
	c := newTestConnector(t, d, rec,
		WithResponseTimeout(60*time.Millisecond),
		WithCommandTimeout(200*time.Millisecond),
	)
	startConnector(t, c)
	g := d.gateway(t)

	require.NoError(t, c.SendCommand(mustCommand(t, opentherm.CmdHotWater, "1")))
	g.expectLine(t, "HW=1")
	g.expectLine(t, "HW=1")

	require.Eventually(t, func() bool { return len(rec.Responses()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, rec.Responses()[0].Err, ErrCommandTimeout)
	assert.Equal(t, 0, c.pending.count())
}

func TestConnectorFailedResendAnswersCommand(t *testing.T) {
	d := &flakyDialer{pipeDialer: newPipeDialer(0), allowed: 1}
	rec := &recorder{}
	c, err := NewSocketConnector(d, rec,
		WithLogger(logger.Discard()),
		WithReadTimeout(20*time.Millisecond),
		WithInitCommands(),
		WithResponseTimeout(60*time.Millisecond),
		WithCommandTimeout(10*time.Second),
	)
	require.NoError(t, err)
	startConnector(t, c)
	g := d.gateway(t)

	require.NoError(t, c.SendCommand(mustCommand(t, opentherm.CmdHotWater, "1")))
	g.expectLine(t, "HW=1")

	require.Eventually(t, func() bool { return len(rec.Responses()) == 1 }, 2*time.Second, 5*time.Millisecond)
	resp := rec.Responses()[0]
	assert.Equal(t, "HW", resp.Code)
	assert.ErrorIs(t, resp.Err, errWriteFailed)
	assert.Equal(t, 0, c.pending.count())
}

// ============================================================================
// Options
// ============================================================================

func TestConnectorOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"read timeout too short", []Option{WithReadTimeout(0)}},
		{"connect timeout too long", []Option{WithConnectTimeout(time.Hour)}},
		{"command shorter than response", []Option{WithResponseTimeout(10 * time.Second), WithCommandTimeout(time.Second)}},
		{"nil logger", []Option{WithLogger(nil)}},
		{"nil observer", []Option{WithLineObserver(nil)}},
		{"nil init command", []Option{WithInitCommands(nil)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSocketConnector(newPipeDialer(0), &recorder{}, tt.opts...)
			assert.ErrorIs(t, err, ErrInvalidOption)
		})
	}

	_, err := NewSocketConnector(nil, &recorder{})
	assert.ErrorIs(t, err, ErrInvalidOption)
	_, err = NewSocketConnector(newPipeDialer(0), nil)
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "disconnected", DisconnectedState.String())
	assert.Equal(t, "connecting", ConnectingState.String())
	assert.Equal(t, "connected", ConnectedState.String())
	assert.Equal(t, "disconnecting", DisconnectingState.String())
	assert.Equal(t, "unknown", ConnState(42).String())
	assert.True(t, ConnectedState.IsConnected())
}
