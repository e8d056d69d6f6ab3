// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/otgw/internal/logger"
	"github.com/Thermoquad/otgw/pkg/opentherm"
	"github.com/Thermoquad/otgw/pkg/transport"
)

// Reconnect backoff bounds
const (
	MinReconnectDelay = 1 * time.Second
	MaxReconnectDelay = 30 * time.Second
)

// Supervisor keeps a gateway connection alive by running a fresh
// SocketConnector per attempt, with exponential backoff between attempts.
type Supervisor struct {
	dialer transport.Dialer
	cb     Callback
	opts   []Option
	log    logger.Logger
	stats  *opentherm.Statistics

	minDelay time.Duration
	maxDelay time.Duration

	mu      sync.Mutex
	current *SocketConnector

	started  atomic.Bool
	stopping atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

var _ Connector = (*Supervisor)(nil)

// NewSupervisor validates opts by building a throwaway configuration and
// returns a supervisor that applies them to every connector it creates.
func NewSupervisor(dialer transport.Dialer, cb Callback, opts ...Option) (*Supervisor, error) {
	if dialer == nil || cb == nil {
		return nil, ErrInvalidOption
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		dialer:   dialer,
		cb:       cb,
		opts:     opts,
		log:      cfg.logger.With("gateway", dialer.String()),
		stats:    cfg.stats,
		minDelay: MinReconnectDelay,
		maxDelay: MaxReconnectDelay,
		stopCh:   make(chan struct{}),
	}, nil
}

// SetBackoff overrides the reconnect delay bounds.
func (s *Supervisor) SetBackoff(minDelay, maxDelay time.Duration) {
	if minDelay > 0 && maxDelay >= minDelay {
		s.minDelay = minDelay
		s.maxDelay = maxDelay
	}
}

// Statistics returns counters shared by all connection attempts.
func (s *Supervisor) Statistics() *opentherm.Statistics {
	return s.stats
}

// Run connects and reconnects until Stop or ctx cancellation.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	delay := s.minDelay
	for {
		if s.stopping.Load() || ctx.Err() != nil {
			return nil
		}

		opts := append(append([]Option{}, s.opts...), WithStatistics(s.stats))
		conn, err := NewSocketConnector(s.dialer, s.cb, opts...)
		if err != nil {
			return err
		}
		s.setCurrent(conn)

		started := time.Now()
		err = conn.Run(ctx)
		s.setCurrent(nil)

		if s.stopping.Load() || ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}

		// A connection that stayed up longer than the maximum delay was healthy.
		if time.Since(started) > s.maxDelay {
			delay = s.minDelay
		}

		s.log.Warn("gateway connection lost, reconnecting", "error", err, "delay", delay.String())

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-s.stopCh:
			timer.Stop()
			return nil
		}

		delay = min(delay*2, s.maxDelay)
	}
}

// Start runs the supervisor on a new goroutine.
func (s *Supervisor) Start(ctx context.Context) {
	go func() {
		if err := s.Run(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			s.log.Error("gateway supervisor ended", "error", err)
		}
	}()
}

// Stop stops the current connector and prevents further attempts.
func (s *Supervisor) Stop() {
	if !s.stopping.CompareAndSwap(false, true) {
		return
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	if c := s.getCurrent(); c != nil {
		c.Stop()
	}
}

// SendCommand forwards to the current connector, or drops the command with
// a warning when there is none.
func (s *Supervisor) SendCommand(cmd *opentherm.GatewayCommand) error {
	if cmd == nil {
		return ErrNilCommand
	}
	c := s.getCurrent()
	if c == nil {
		s.log.Warn("not connected to gateway, command dropped", "command", cmd.String())
		return nil
	}
	return c.SendCommand(cmd)
}

func (s *Supervisor) IsConnected() bool {
	c := s.getCurrent()
	return c != nil && c.IsConnected()
}

func (s *Supervisor) State() ConnState {
	if c := s.getCurrent(); c != nil {
		return c.State()
	}
	return DisconnectedState
}

func (s *Supervisor) setCurrent(c *SocketConnector) {
	s.mu.Lock()
	s.current = c
	s.mu.Unlock()
	if c != nil && s.stopping.Load() {
		c.Stop()
	}
}

func (s *Supervisor) getCurrent() *SocketConnector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
