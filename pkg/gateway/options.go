// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/otgw/internal/logger"
	"github.com/Thermoquad/otgw/pkg/capture"
	"github.com/Thermoquad/otgw/pkg/opentherm"
)

// ErrInvalidOption is returned when an option value is out of range.
var ErrInvalidOption = errors.New("invalid connector option")

// Defaults
const (
	DefaultReadTimeout     = 1 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultResponseTimeout = 5 * time.Second
	DefaultCommandTimeout  = 15 * time.Second
)

// LineObserver sees every line read from or written to the gateway,
// without terminator. It is called from the connector goroutines and must not block.
type LineObserver func(dir capture.Direction, line string)

type config struct {
	logger logger.Logger

	// readTimeout bounds each read so pending commands are checked regularly.
	readTimeout time.Duration
	// connectTimeout bounds the dial.
	connectTimeout time.Duration
	// responseTimeout is how long a command may go unanswered before it is resent.
	responseTimeout time.Duration
	// commandTimeout is how long a command is retried before it is given up.
	commandTimeout time.Duration

	initCommands []*opentherm.GatewayCommand
	observers    []LineObserver
	stats        *opentherm.Statistics
}

func defaultConfig() *config {
	return &config{
		logger:          logger.GetLogger(),
		readTimeout:     DefaultReadTimeout,
		connectTimeout:  DefaultConnectTimeout,
		responseTimeout: DefaultResponseTimeout,
		commandTimeout:  DefaultCommandTimeout,
		initCommands:    DefaultInitCommands(),
	}
}

// DefaultInitCommands returns the commands sent after connecting: a firmware
// version report, then switching the gateway out of summary mode so every
// frame is printed.
func DefaultInitCommands() []*opentherm.GatewayCommand {
	pr, _ := opentherm.NewGatewayCommand(opentherm.CmdPrintReport, "A")
	ps, _ := opentherm.NewGatewayCommand(opentherm.CmdPrintSummary, "0")
	return []*opentherm.GatewayCommand{pr, ps}
}

// Option configures a connector.
type Option interface {
	apply(*config) error
}

type optFunc struct {
	name      string
	applyFunc func(*config) error
}

func (o *optFunc) apply(cfg *config) error { return o.applyFunc(cfg) }

func newOptFunc(name string, f func(*config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

func durationOption(name string, val, lo, hi time.Duration, set func(*config, time.Duration)) Option {
	return newOptFunc(name, func(cfg *config) error {
		if val < lo || val > hi {
			return fmt.Errorf("%w: %s %s out of range [%s, %s]", ErrInvalidOption, name, val, lo, hi)
		}
		set(cfg, val)
		return nil
	})
}

// WithLogger sets the logger. Defaults to the package default logger.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *config) error {
		if l == nil {
			return fmt.Errorf("%w: nil logger", ErrInvalidOption)
		}
		cfg.logger = l
		return nil
	})
}

// WithReadTimeout sets the per-read deadline, between 10ms and 10s.
// Defaults to 1 second.
func WithReadTimeout(val time.Duration) Option {
	return durationOption("WithReadTimeout", val, 10*time.Millisecond, 10*time.Second,
		func(cfg *config, d time.Duration) { cfg.readTimeout = d })
}

// WithConnectTimeout sets the dial timeout, between 100ms and 60s.
// Defaults to 10 seconds.
func WithConnectTimeout(val time.Duration) Option {
	return durationOption("WithConnectTimeout", val, 100*time.Millisecond, 60*time.Second,
		func(cfg *config, d time.Duration) { cfg.connectTimeout = d })
}

// WithResponseTimeout sets the resend interval for unanswered commands, between 10ms and 60s.
// Defaults to 5 seconds.
func WithResponseTimeout(val time.Duration) Option {
	return durationOption("WithResponseTimeout", val, 10*time.Millisecond, 60*time.Second,
		func(cfg *config, d time.Duration) { cfg.responseTimeout = d })
}

// WithCommandTimeout sets how long a command is retried, between 10ms and 5m.
// Defaults to 15 seconds.
func WithCommandTimeout(val time.Duration) Option {
	return durationOption("WithCommandTimeout", val, 10*time.Millisecond, 5*time.Minute,
		func(cfg *config, d time.Duration) { cfg.commandTimeout = d })
}

// WithInitCommands replaces the commands sent after connecting.
// Pass no commands to send nothing.
func WithInitCommands(cmds ...*opentherm.GatewayCommand) Option {
	return newOptFunc("WithInitCommands", func(cfg *config) error {
		for _, c := range cmds {
			if c == nil {
				return fmt.Errorf("%w: nil init command", ErrInvalidOption)
			}
		}
		cfg.initCommands = cmds
		return nil
	})
}

// WithLineObserver adds an observer of raw line traffic.
func WithLineObserver(o LineObserver) Option {
	return newOptFunc("WithLineObserver", func(cfg *config) error {
		if o == nil {
			return fmt.Errorf("%w: nil line observer", ErrInvalidOption)
		}
		cfg.observers = append(cfg.observers, o)
		return nil
	})
}

// WithStatistics makes the connector count into s, so counters survive reconnects.
func WithStatistics(s *opentherm.Statistics) Option {
	return newOptFunc("WithStatistics", func(cfg *config) error {
		if s == nil {
			return fmt.Errorf("%w: nil statistics", ErrInvalidOption)
		}
		cfg.stats = s
		return nil
	})
}

func newConfig(opts []Option) (*config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.commandTimeout < cfg.responseTimeout {
		return nil, fmt.Errorf("%w: command timeout %s shorter than response timeout %s",
			ErrInvalidOption, cfg.commandTimeout, cfg.responseTimeout)
	}
	if cfg.stats == nil {
		cfg.stats = opentherm.NewStatistics()
	}
	return cfg, nil
}
