// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides the byte streams an OpenTherm Gateway can be
// reached over: a TCP serial bridge, a local serial port, a WebSocket bridge
// or a recorded capture file.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Transport errors
var (
	ErrUnsupportedTransport = errors.New("unsupported transport")
	ErrConnectionClosed     = errors.New("connection closed")
)

// Conn is a gateway byte stream with a read deadline.
// Reads past the deadline fail with an error matching os.ErrDeadlineExceeded.
type Conn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// Dialer opens a Conn.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	String() string
}

// Transport types
const (
	TypeTCP       = "tcp"
	TypeSerial    = "serial"
	TypeWebSocket = "websocket"
	TypeReplay    = "replay"
)

// Defaults
const (
	DefaultBaudRate    = 9600
	DefaultDialTimeout = 10 * time.Second
)

// Config selects and configures a transport.
type Config struct {
	Type string

	Address string // tcp host:port

	Port     string // serial device
	BaudRate int

	URL           string // ws:// or wss://
	Username      string
	Password      string
	SkipSSLVerify bool

	File     string // replay capture file
	Realtime bool   // replay with recorded pacing

	DialTimeout time.Duration
}

// Open builds the dialer described by cfg.
func Open(cfg Config) (Dialer, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	switch cfg.Type {
	case TypeTCP:
		if cfg.Address == "" {
			return nil, fmt.Errorf("tcp transport requires an address")
		}
		return &TCPDialer{Address: cfg.Address, Timeout: timeout}, nil
	case TypeSerial:
		if cfg.Port == "" {
			return nil, fmt.Errorf("serial transport requires a port")
		}
		baud := cfg.BaudRate
		if baud <= 0 {
			baud = DefaultBaudRate
		}
		return &SerialDialer{Port: cfg.Port, BaudRate: baud}, nil
	case TypeWebSocket:
		if cfg.URL == "" {
			return nil, fmt.Errorf("websocket transport requires a url")
		}
		return &WebSocketDialer{
			URL:              cfg.URL,
			Username:         cfg.Username,
			Password:         cfg.Password,
			SkipSSLVerify:    cfg.SkipSSLVerify,
			HandshakeTimeout: timeout,
		}, nil
	case TypeReplay:
		if cfg.File == "" {
			return nil, fmt.Errorf("replay transport requires a capture file")
		}
		return &ReplayDialer{Path: cfg.File, Realtime: cfg.Realtime}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTransport, cfg.Type)
	}
}
