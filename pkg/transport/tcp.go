// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPDialer connects to a gateway behind a serial-to-TCP bridge (ser2net, ESP-link).
type TCPDialer struct {
	Address string
	Timeout time.Duration
}

// Dial connects with the configured timeout and TCP keep-alive.
func (d *TCPDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := net.Dialer{
		Timeout:   d.Timeout,
		KeepAlive: 30 * time.Second,
	}
	conn, err := dialer.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.Address, err)
	}
	return conn, nil
}

func (d *TCPDialer) String() string {
	return "tcp://" + d.Address
}
