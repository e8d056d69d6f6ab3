// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package opentherm

import (
	"errors"
	"fmt"
	"math/bits"
	"time"
)

// ErrMalformedMessage is returned for lines that are not an OpenTherm frame report.
var ErrMalformedMessage = errors.New("malformed opentherm message")

// Message represents one decoded OpenTherm frame as reported by the gateway
type Message struct {
	source    Source
	msgType   MessageType
	id        uint8
	high      uint8
	low       uint8
	raw       string
	timestamp time.Time
}

// NewMessage creates a message from its decoded fields
func NewMessage(source Source, msgType MessageType, id, high, low uint8) *Message {
	m := &Message{
		source:    source,
		msgType:   msgType,
		id:        id,
		high:      high,
		low:       low,
		timestamp: time.Now(),
	}
	m.raw = m.Line()
	return m
}

// ParseMessage parses a single gateway line (without CR/LF).
// Lines that are not frame reports yield a nil message and an error wrapping
// ErrMalformedMessage; the gateway link is noisy so callers should treat this
// as routine.
func ParseMessage(line string) (*Message, error) {
	if len(line) != MessageLineLength {
		return nil, fmt.Errorf("%w: length %d (want %d)", ErrMalformedMessage, len(line), MessageLineLength)
	}

	source, ok := parseSource(line[0])
	if !ok {
		return nil, fmt.Errorf("%w: unknown source %q", ErrMalformedMessage, line[0])
	}

	var frame [4]uint8
	for i := range frame {
		hi, ok1 := hexNibble(line[1+i*2])
		lo, ok2 := hexNibble(line[2+i*2])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: invalid hex in %q", ErrMalformedMessage, line[1:])
		}
		frame[i] = hi<<4 | lo
	}

	// Bit 7 of the first frame byte is parity, bits 6..4 are the message type.
	msgType := MessageType((frame[0] >> 4) & 0x07)
	if msgType == reservedMessageType {
		return nil, fmt.Errorf("%w: reserved message type", ErrMalformedMessage)
	}

	return &Message{
		source:    source,
		msgType:   msgType,
		id:        frame[1],
		high:      frame[2],
		low:       frame[3],
		raw:       line,
		timestamp: time.Now(),
	}, nil
}

func hexNibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// Source returns which side of the gateway the frame was seen on
func (m *Message) Source() Source {
	return m.source
}

// MessageType returns the OpenTherm message type
func (m *Message) MessageType() MessageType {
	return m.msgType
}

// ID returns the OpenTherm data-ID
func (m *Message) ID() uint8 {
	return m.id
}

// HighByte returns the raw high data byte
func (m *Message) HighByte() uint8 {
	return m.high
}

// LowByte returns the raw low data byte
func (m *Message) LowByte() uint8 {
	return m.low
}

// Raw returns the line the message was parsed from
func (m *Message) Raw() string {
	return m.raw
}

// Timestamp returns the time the message was decoded
func (m *Message) Timestamp() time.Time {
	return m.timestamp
}

// Bit returns bit pos (0-7) of the selected byte. BothBytes addresses bits 0-15.
func (m *Message) Bit(b ByteType, pos int) bool {
	if pos < 0 {
		return false
	}
	if b == BothBytes {
		if pos > 15 {
			return false
		}
	} else if pos > 7 {
		return false
	}
	return m.UInt(b)&(1<<pos) != 0
}

// UInt returns the selected byte, or the full 16-bit value for BothBytes, unsigned
func (m *Message) UInt(b ByteType) uint16 {
	switch b {
	case HighByte:
		return uint16(m.high)
	case LowByte:
		return uint16(m.low)
	default:
		return uint16(m.high)<<8 | uint16(m.low)
	}
}

// Int returns the selected value as two's complement
func (m *Message) Int(b ByteType) int16 {
	switch b {
	case HighByte:
		return int16(int8(m.high))
	case LowByte:
		return int16(int8(m.low))
	default:
		return int16(m.UInt(BothBytes))
	}
}

// Float returns the f8.8 fixed-point value: signed high byte plus low/256
func (m *Message) Float() float64 {
	return float64(int8(m.high)) + float64(m.low)/256.0
}

// Overrides reports whether m is a gateway override of other: same data-ID,
// injected by the gateway towards the boiler or the thermostat.
func (m *Message) Overrides(other *Message) bool {
	return other != nil && m.id == other.id && m.source.IsOverride()
}

// Line encodes the message back to its wire line, with even parity over the frame
func (m *Message) Line() string {
	first := uint8(m.msgType&0x07) << 4
	frame := uint32(first)<<24 | uint32(m.id)<<16 | uint32(m.high)<<8 | uint32(m.low)
	if bits.OnesCount32(frame)%2 != 0 {
		first |= 0x80
	}
	return fmt.Sprintf("%c%02X%02X%02X%02X", byte(m.source), first, m.id, m.high, m.low)
}

// String returns a compact diagnostic representation
func (m *Message) String() string {
	return fmt.Sprintf("%s %s id=%d data=%02X%02X", m.source, m.msgType, m.id, m.high, m.low)
}
