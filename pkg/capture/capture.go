// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records the line traffic of a gateway link to a CBOR stream
// and reads it back for replay.
//
// A capture file is a sequence of CBOR data items: one Header followed by any
// number of Records. Integer map keys keep the files compact.
package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Magic identifies capture files.
const (
	Magic   = "otgw-capture"
	Version = 1
)

// ErrBadHeader is returned when a stream does not start with a capture header.
var ErrBadHeader = errors.New("not an otgw capture file")

// Direction tells whether a line was read from or written to the gateway.
type Direction uint8

const (
	Received Direction = 1
	Sent     Direction = 2
)

func (d Direction) String() string {
	switch d {
	case Received:
		return "rx"
	case Sent:
		return "tx"
	default:
		return "??"
	}
}

// Header is the first item of every capture file.
type Header struct {
	Magic   string `cbor:"1,keyasint"`
	Version int    `cbor:"2,keyasint"`
	Started int64  `cbor:"3,keyasint"` // unix nanos
	Source  string `cbor:"4,keyasint,omitempty"`
}

// Record is one captured line, without line terminator.
type Record struct {
	Time      int64     `cbor:"1,keyasint"` // unix nanos
	Direction Direction `cbor:"2,keyasint"`
	Line      string    `cbor:"3,keyasint"`
}

// At returns the record timestamp.
func (r Record) At() time.Time {
	return time.Unix(0, r.Time)
}

// Recorder appends records to a capture stream. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	closer io.Closer
	count  int
}

// NewRecorder writes a header to w and returns a recorder appending to it.
func NewRecorder(w io.Writer, source string) (*Recorder, error) {
	enc := cbor.NewEncoder(w)
	hdr := Header{Magic: Magic, Version: Version, Started: time.Now().UnixNano(), Source: source}
	if err := enc.Encode(hdr); err != nil {
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}
	r := &Recorder{enc: enc}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r, nil
}

// Create creates (or truncates) a capture file at path.
func Create(path, source string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	r, err := NewRecorder(f, source)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

// Record appends one line.
func (r *Recorder) Record(dir Direction, line string) error {
	return r.RecordAt(time.Now(), dir, line)
}

// RecordAt appends one line with an explicit timestamp.
func (r *Recorder) RecordAt(at time.Time, dir Direction, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.enc.Encode(Record{Time: at.UnixNano(), Direction: dir, Line: line}); err != nil {
		return fmt.Errorf("failed to write capture record: %w", err)
	}
	r.count++
	return nil
}

// Count returns the number of records written.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close closes the underlying writer if it is closable.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// Reader reads records from a capture stream.
type Reader struct {
	dec    *cbor.Decoder
	header Header
	closer io.Closer
}

// NewReader reads and validates the capture header from rd.
func NewReader(rd io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(rd)
	var hdr Header
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if hdr.Magic != Magic {
		return nil, ErrBadHeader
	}
	if hdr.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, hdr.Version)
	}
	r := &Reader{dec: dec, header: hdr}
	if c, ok := rd.(io.Closer); ok {
		r.closer = c
	}
	return r, nil
}

// Open opens a capture file for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

// Header returns the capture header.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to read capture record: %w", err)
	}
	return rec, nil
}

// Close closes the underlying reader if it is closable.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
