// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/otgw/pkg/opentherm"
	"github.com/Thermoquad/otgw/pkg/transport"
)

var errDialRefused = errors.New("connection refused")

// fakeGateway is the gateway end of a net.Pipe.
type fakeGateway struct {
	server net.Conn
	lines  chan string
}

func newFakeGateway(server net.Conn) *fakeGateway {
	g := &fakeGateway{server: server, lines: make(chan string, 64)}
	go func() {
		defer close(g.lines)
		scanner := bufio.NewScanner(server)
		for scanner.Scan() {
			g.lines <- strings.TrimRight(scanner.Text(), "\r")
		}
	}()
	return g
}

func (g *fakeGateway) send(t *testing.T, data string) {
	t.Helper()
	_, err := g.server.Write([]byte(data))
	require.NoError(t, err)
}

func (g *fakeGateway) expectLine(t *testing.T, want string) {
	t.Helper()
	select {
	case line, ok := <-g.lines:
		require.True(t, ok, "gateway connection closed while waiting for %q", want)
		require.Equal(t, want, line)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

// pipeDialer hands out net.Pipe connections, failing the first `failures` dials.
type pipeDialer struct {
	failures int32
	dials    atomic.Int32
	gateways chan *fakeGateway
}

func newPipeDialer(failures int32) *pipeDialer {
	return &pipeDialer{failures: failures, gateways: make(chan *fakeGateway, 8)}
}

func (d *pipeDialer) Dial(ctx context.Context) (transport.Conn, error) {
	if n := d.dials.Add(1); n <= d.failures {
		return nil, errDialRefused
	}
	client, server := net.Pipe()
	d.gateways <- newFakeGateway(server)
	return client, nil
}

func (d *pipeDialer) String() string { return "pipe" }

func (d *pipeDialer) gateway(t *testing.T) *fakeGateway {
	t.Helper()
	select {
	case g := <-d.gateways:
		return g
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dial")
		return nil
	}
}

// stallingDialer blocks until its context is done.
type stallingDialer struct {
	dialing chan struct{}
}

func (d *stallingDialer) Dial(ctx context.Context) (transport.Conn, error) {
	close(d.dialing)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (d *stallingDialer) String() string { return "stalling" }

var errWriteFailed = errors.New("write failed")

// flakyConn fails every write after the first `allowed` ones.
type flakyConn struct {
	net.Conn
	allowed int32
	writes  atomic.Int32
}

func (c *flakyConn) Write(p []byte) (int, error) {
	if c.writes.Add(1) > c.allowed {
		return 0, errWriteFailed
	}
	return c.Conn.Write(p)
}

type flakyDialer struct {
	*pipeDialer
	allowed int32
}

func (d *flakyDialer) Dial(ctx context.Context) (transport.Conn, error) {
	conn, err := d.pipeDialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return &flakyConn{Conn: conn.(net.Conn), allowed: d.allowed}, nil
}

// recorder is a Callback and ResponseCallback that records everything.
type recorder struct {
	mu        sync.Mutex
	events    []string
	messages  []*opentherm.Message
	responses []Response
}

func (r *recorder) event(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Connecting()   { r.event("connecting") }
func (r *recorder) Connected()    { r.event("connected") }
func (r *recorder) Disconnected() { r.event("disconnected") }

func (r *recorder) ReceiveMessage(msg *opentherm.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) CommandResponse(resp Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, resp)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Messages() []*opentherm.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*opentherm.Message(nil), r.messages...)
}

func (r *recorder) Responses() []Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Response(nil), r.responses...)
}

func mustCommand(t *testing.T, ct opentherm.CommandType, value string) *opentherm.GatewayCommand {
	t.Helper()
	cmd, err := opentherm.NewGatewayCommand(ct, value)
	require.NoError(t, err)
	return cmd
}

func waitDone(t *testing.T, done <-chan struct{}, within time.Duration) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(within):
		t.Fatalf("connector did not finish within %s", within)
	}
}
