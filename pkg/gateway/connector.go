// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gateway drives a connection to an OpenTherm Gateway: it dials the
// transport, configures the gateway, splits the byte stream into lines,
// dispatches OpenTherm messages to a callback and sends control commands.
package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/otgw/internal/logger"
	"github.com/Thermoquad/otgw/pkg/capture"
	"github.com/Thermoquad/otgw/pkg/opentherm"
	"github.com/Thermoquad/otgw/pkg/transport"
)

// Connector errors
var (
	ErrAlreadyRunning = errors.New("connector already started")
	ErrNilCommand     = errors.New("nil command")
)

// maxLineLength caps a line without terminator; longer input is discarded.
const maxLineLength = 256

// Connector is a gateway connection.
type Connector interface {
	// Run connects and processes the gateway stream until Stop, ctx
	// cancellation, end of stream or an I/O error.
	Run(ctx context.Context) error
	// Start runs the connector on its own goroutine.
	Start(ctx context.Context)
	// Stop asks the connector to finish. It returns immediately.
	Stop()
	// SendCommand writes a command to the gateway. When not connected the
	// command is dropped with a warning and nil is returned.
	SendCommand(cmd *opentherm.GatewayCommand) error
	IsConnected() bool
	State() ConnState
}

// Callback receives connection events and OpenTherm messages.
// Calls are made from the connector goroutine, in stream order.
type Callback interface {
	Connecting()
	Connected()
	Disconnected()
	// ReceiveMessage is called for READ_ACK and WRITE_DATA messages,
	// including those with data-IDs absent from the item registry.
	ReceiveMessage(msg *opentherm.Message)
}

// ResponseCallback is implemented by callbacks that want command responses.
type ResponseCallback interface {
	CommandResponse(resp Response)
}

// SocketConnector is a single-use Connector over a transport.Dialer.
type SocketConnector struct {
	dialer transport.Dialer
	cb     Callback
	cfg    *config
	log    logger.Logger

	state     atomic.Uint32
	connected atomic.Bool
	started   atomic.Bool
	stopping  atomic.Bool

	connMu sync.Mutex
	conn   transport.Conn
	cancel context.CancelFunc

	writeMu sync.Mutex
	pending pendingCommands

	cleanupOnce sync.Once
	done        chan struct{}
	runErr      error
}

var _ Connector = (*SocketConnector)(nil)

// NewSocketConnector creates a connector. It does not connect until Run or Start.
func NewSocketConnector(dialer transport.Dialer, cb Callback, opts ...Option) (*SocketConnector, error) {
	if dialer == nil {
		return nil, fmt.Errorf("%w: nil dialer", ErrInvalidOption)
	}
	if cb == nil {
		return nil, fmt.Errorf("%w: nil callback", ErrInvalidOption)
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return &SocketConnector{
		dialer: dialer,
		cb:     cb,
		cfg:    cfg,
		log:    cfg.logger.With("gateway", dialer.String()),
		done:   make(chan struct{}),
	}, nil
}

// State returns the current connection state.
func (c *SocketConnector) State() ConnState {
	return ConnState(c.state.Load())
}

// IsConnected reports whether commands can be sent.
func (c *SocketConnector) IsConnected() bool {
	return c.connected.Load()
}

// Statistics returns the connector's counters.
func (c *SocketConnector) Statistics() *opentherm.Statistics {
	return c.cfg.stats
}

// Done is closed when Run has returned.
func (c *SocketConnector) Done() <-chan struct{} {
	return c.done
}

// Err returns the error Run returned. Valid after Done is closed.
func (c *SocketConnector) Err() error {
	select {
	case <-c.done:
		return c.runErr
	default:
		return nil
	}
}

// Start runs the connector on a new goroutine.
func (c *SocketConnector) Start(ctx context.Context) {
	go func() {
		if err := c.Run(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			c.log.Error("gateway connection ended", "error", err)
		}
	}()
}

// Stop sets the stopping flag and cancels a dial or read in progress.
func (c *SocketConnector) Stop() {
	if c.stopping.CompareAndSwap(false, true) {
		c.log.Info("stopping gateway connector")
	}
	c.connMu.Lock()
	cancel := c.cancel
	c.connMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run implements Connector. A connector can only be run once.
func (c *SocketConnector) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	c.connMu.Lock()
	c.cancel = cancel
	c.connMu.Unlock()
	if c.stopping.Load() {
		cancel()
	}

	err := c.run(ctx)
	cancel()
	c.cleanup()

	c.runErr = err
	close(c.done)
	return err
}

func (c *SocketConnector) run(ctx context.Context) error {
	c.setState(ConnectingState)
	c.cb.Connecting()
	c.log.Info("connecting to gateway")

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.connectTimeout)
	conn, err := c.dialer.Dial(dialCtx)
	cancel()
	if err != nil && c.stopping.Load() {
		c.log.Info("connect aborted by stop")
		return nil
	}
	if err != nil {
		c.log.Error("failed to connect to gateway", "error", err)
		return fmt.Errorf("connect to %s: %w", c.dialer, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	// Closing the conn unblocks a pending read as soon as ctx is done.
	stopClose := context.AfterFunc(ctx, c.closeConn)
	defer stopClose()

	if ctx.Err() != nil {
		return nil
	}

	c.setState(ConnectedState)
	c.connected.Store(true)
	c.log.Info("connected to gateway")
	c.cb.Connected()

	for _, cmd := range c.cfg.initCommands {
		if err := c.SendCommand(cmd); err != nil {
			return err
		}
	}

	return c.readLoop(ctx, conn)
}

func (c *SocketConnector) readLoop(ctx context.Context, conn transport.Conn) error {
	reader := bufio.NewReader(conn)
	var partial []byte
	discarding := false

	for {
		if c.stopping.Load() {
			c.log.Info("gateway connector stopped")
			return nil
		}
		if ctx.Err() != nil {
			c.log.Info("gateway connector cancelled")
			return nil
		}

		c.checkPending(time.Now())

		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.readTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		// Fragments read before a timeout stay in partial until the line completes.
		chunk, err := reader.ReadSlice('\n')
		if discarding {
			discarding = err != nil
			chunk = nil
		}
		partial = append(partial, chunk...)
		if len(partial) > maxLineLength+2 {
			c.log.Debug("discarding overlong line", "length", len(partial))
			c.cfg.stats.RecordMalformed()
			partial = partial[:0]
			discarding = err != nil
		}

		if err != nil {
			if errors.Is(err, bufio.ErrBufferFull) || isTimeout(err) {
				continue
			}
			if c.stopping.Load() || ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				if len(partial) > 0 {
					c.handleLine(strings.TrimRight(string(partial), "\r\n"))
				}
				c.log.Info("gateway closed the connection")
				return fmt.Errorf("read from %s: %w", c.dialer, io.EOF)
			}
			c.log.Error("failed to read from gateway", "error", err)
			return fmt.Errorf("read from %s: %w", c.dialer, err)
		}

		line := strings.TrimRight(string(partial), "\r\n")
		partial = partial[:0]
		c.handleLine(line)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// handleLine classifies and dispatches one line.
func (c *SocketConnector) handleLine(line string) {
	line = strings.TrimLeft(line, "\r")
	if line == "" {
		return
	}

	stats := c.cfg.stats
	stats.RecordLine()
	c.observe(capture.Received, line)

	if resp, ok := ParseResponse(line); ok {
		stats.RecordResponse()
		resp.Command = c.pending.ack(resp.Code)
		c.log.Debug("command response", "code", resp.Code, "value", resp.Value)
		c.respond(resp)
		return
	}

	if gerr, ok := ParseGatewayError(line); ok {
		stats.RecordGatewayError()
		c.log.Warn("gateway reported an error", "code", gerr.Code, "meaning", gerr.Meaning())
		if gerr.IsCommandError() {
			if cmd := c.pending.popOldest(); cmd != nil {
				c.respond(Response{Code: cmd.Code(), Value: cmd.Value(), Command: cmd, Err: gerr})
			}
		}
		return
	}

	msg, err := opentherm.ParseMessage(line)
	if err != nil {
		stats.RecordMalformed()
		c.log.Debug("ignoring line", "line", line, "error", err)
		return
	}
	stats.RecordMessage(msg)

	if c.log.Level() <= logger.DebugLevel {
		for _, v := range opentherm.DecodeMessage(msg) {
			c.log.Debug("received value",
				"source", msg.Source().String(),
				"type", msg.MessageType().String(),
				"id", msg.ID(),
				"channel", v.Item.Channel,
				"value", v.String(),
			)
		}
	}

	switch msg.MessageType() {
	case opentherm.ReadAck, opentherm.WriteData:
		stats.RecordDispatched()
		c.cb.ReceiveMessage(msg)
	}
}

func (c *SocketConnector) respond(resp Response) {
	if rc, ok := c.cb.(ResponseCallback); ok {
		rc.CommandResponse(resp)
	}
}

func (c *SocketConnector) observe(dir capture.Direction, line string) {
	for _, o := range c.cfg.observers {
		o(dir, line)
	}
}

// SendCommand implements Connector.
func (c *SocketConnector) SendCommand(cmd *opentherm.GatewayCommand) error {
	if cmd == nil {
		return ErrNilCommand
	}
	if !c.IsConnected() {
		c.log.Warn("not connected to gateway, command dropped", "command", cmd.String())
		return nil
	}
	if err := c.write(cmd); err != nil {
		return err
	}
	c.pending.add(cmd, time.Now())
	return nil
}

func (c *SocketConnector) write(cmd *opentherm.GatewayCommand) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return transport.ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	line := cmd.String()
	if _, err := conn.Write([]byte(line + opentherm.CommandTerminator)); err != nil {
		c.log.Error("failed to send command", "command", line, "error", err)
		return fmt.Errorf("send %s: %w", line, err)
	}
	c.observe(capture.Sent, line)
	c.log.Debug("command sent", "command", line)
	return nil
}

// checkPending resends unanswered commands and gives up on expired ones.
func (c *SocketConnector) checkPending(now time.Time) {
	resend, expired := c.pending.due(now, c.cfg.responseTimeout, c.cfg.commandTimeout)
	for _, cmd := range resend {
		c.log.Debug("resending unanswered command", "command", cmd.String())
		if err := c.write(cmd); err != nil {
			c.pending.ack(cmd.Code())
			c.respond(Response{Code: cmd.Code(), Value: cmd.Value(), Command: cmd, Err: err})
		}
	}
	for _, cmd := range expired {
		c.log.Warn("gateway did not acknowledge command", "command", cmd.String())
		c.respond(Response{Code: cmd.Code(), Value: cmd.Value(), Command: cmd, Err: ErrCommandTimeout})
	}
}

func (c *SocketConnector) setState(s ConnState) {
	prev := ConnState(c.state.Swap(uint32(s)))
	if prev != s {
		c.log.Debug("connection state changed", "from", prev.String(), "to", s.String())
	}
}

// cleanup runs once per connector on every exit path of Run.
func (c *SocketConnector) cleanup() {
	c.cleanupOnce.Do(func() {
		c.setState(DisconnectingState)
		c.connected.Store(false)

		c.closeConn()
		c.pending.clear()

		c.setState(DisconnectedState)
		c.log.Info("disconnected from gateway")
		c.cb.Disconnected()
	})
}

// closeConn closes and forgets the connection; later calls do nothing.
func (c *SocketConnector) closeConn() {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.log.Debug("error closing gateway connection", "error", err)
		}
	}
}
