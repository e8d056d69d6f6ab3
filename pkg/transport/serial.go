// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.bug.st/serial"
)

// SerialDialer opens a gateway attached to a local serial port (8N1).
type SerialDialer struct {
	Port     string
	BaudRate int
}

// Dial opens the port. The context is only checked before opening.
func (d *SerialDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(d.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", d.Port, err)
	}

	return &serialConn{port: port}, nil
}

func (d *SerialDialer) String() string {
	return fmt.Sprintf("serial:%s@%d", d.Port, d.BaudRate)
}

// serialConn maps read deadlines onto the port read timeout.
type serialConn struct {
	port serial.Port
}

// Read returns os.ErrDeadlineExceeded when the port timeout expires with no data,
// instead of the (0, nil) the serial library reports.
func (s *serialConn) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if n == 0 && err == nil {
		return 0, os.ErrDeadlineExceeded
	}
	return n, err
}

func (s *serialConn) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *serialConn) Close() error {
	return s.port.Close()
}

func (s *serialConn) SetReadDeadline(t time.Time) error {
	if t.IsZero() {
		return s.port.SetReadTimeout(serial.NoTimeout)
	}
	d := time.Until(t)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return s.port.SetReadTimeout(d)
}
