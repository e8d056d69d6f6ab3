// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/Thermoquad/otgw/pkg/capture"
)

// ReplayDialer plays back the received lines of a capture file.
type ReplayDialer struct {
	Path     string
	Realtime bool
}

// Dial opens the capture file.
func (d *ReplayDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rd, err := capture.Open(d.Path)
	if err != nil {
		return nil, err
	}
	return NewReplayConn(rd, d.Realtime), nil
}

func (d *ReplayDialer) String() string {
	return "replay:" + d.Path
}

// ReplayConn serves the received records of a capture as a gateway stream.
// Writes are accepted and discarded.
type ReplayConn struct {
	rd       *capture.Reader
	realtime bool

	buf     []byte
	pending *capture.Record
	lastAt  int64
	due     time.Time

	mu       sync.Mutex
	deadline time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewReplayConn wraps an open capture reader.
func NewReplayConn(rd *capture.Reader, realtime bool) *ReplayConn {
	return &ReplayConn{rd: rd, realtime: realtime, done: make(chan struct{})}
}

func (r *ReplayConn) Read(p []byte) (int, error) {
	select {
	case <-r.done:
		return 0, ErrConnectionClosed
	default:
	}

	if len(r.buf) > 0 {
		n := copy(p, r.buf)
		r.buf = r.buf[n:]
		return n, nil
	}

	if r.pending == nil {
		rec, err := r.nextReceived()
		if err != nil {
			return 0, err
		}
		r.pending = &rec
		r.due = time.Now()
		if r.realtime && r.lastAt != 0 && rec.Time > r.lastAt {
			r.due = r.due.Add(time.Duration(rec.Time - r.lastAt))
		}
	}

	if err := r.wait(); err != nil {
		return 0, err
	}

	r.lastAt = r.pending.Time
	r.buf = []byte(r.pending.Line + "\r\n")
	r.pending = nil

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *ReplayConn) nextReceived() (capture.Record, error) {
	for {
		rec, err := r.rd.Next()
		if err != nil {
			return capture.Record{}, err
		}
		if rec.Direction == capture.Received {
			return rec, nil
		}
	}
}

// wait blocks until the pending record is due, the read deadline passes or
// the conn is closed.
func (r *ReplayConn) wait() error {
	d := time.Until(r.due)
	if d <= 0 {
		return nil
	}

	r.mu.Lock()
	deadline := r.deadline
	r.mu.Unlock()

	timedOut := false
	if !deadline.IsZero() && deadline.Before(r.due) {
		d = time.Until(deadline)
		timedOut = true
	}

	timer := time.NewTimer(max(d, 0))
	defer timer.Stop()

	select {
	case <-timer.C:
		if timedOut {
			return os.ErrDeadlineExceeded
		}
		return nil
	case <-r.done:
		return ErrConnectionClosed
	}
}

// Write discards p.
func (r *ReplayConn) Write(p []byte) (int, error) {
	select {
	case <-r.done:
		return 0, ErrConnectionClosed
	default:
		return len(p), nil
	}
}

func (r *ReplayConn) SetReadDeadline(t time.Time) error {
	r.mu.Lock()
	r.deadline = t
	r.mu.Unlock()
	return nil
}

func (r *ReplayConn) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		err = r.rd.Close()
	})
	return err
}

var _ Conn = (*ReplayConn)(nil)
