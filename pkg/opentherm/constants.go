// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package opentherm decodes the text protocol spoken by an OpenTherm Gateway.
//
// The gateway sits between a room thermostat and a boiler and reports every
// OpenTherm frame it sees as one line of text. This package parses those lines
// into messages, maps OpenTherm data-IDs onto named sub-fields and builds the
// two-letter control commands the gateway accepts.
package opentherm

// Wire line layout: one source character followed by the 32-bit OpenTherm
// frame as eight hex digits.
const MessageLineLength = 9

// Command limits
const (
	MaxCommandValueLength = 16
	CommandTerminator     = "\r\n"
)

// Source identifies which side of the gateway a frame was seen on.
type Source byte

// Source values as printed in the first column of a gateway line
const (
	SourceThermostat Source = 'T' // thermostat to gateway
	SourceBoiler     Source = 'B' // boiler to gateway
	SourceRequest    Source = 'R' // gateway to boiler (override)
	SourceAnswer     Source = 'A' // gateway to thermostat (override)
)

// IsOverride reports whether the frame was generated by the gateway itself.
func (s Source) IsOverride() bool {
	return s == SourceRequest || s == SourceAnswer
}

// String returns the human-readable source name.
func (s Source) String() string {
	switch s {
	case SourceThermostat:
		return "thermostat"
	case SourceBoiler:
		return "boiler"
	case SourceRequest:
		return "gateway-request"
	case SourceAnswer:
		return "gateway-answer"
	default:
		return "unknown"
	}
}

func parseSource(c byte) (Source, bool) {
	switch Source(c) {
	case SourceThermostat, SourceBoiler, SourceRequest, SourceAnswer:
		return Source(c), true
	}
	return 0, false
}

// MessageType is the 3-bit OpenTherm message type.
type MessageType int

// OpenTherm message types. Value 3 is reserved and never produced by ParseMessage.
const (
	ReadData      MessageType = 0
	WriteData     MessageType = 1
	InvalidData   MessageType = 2
	ReadAck       MessageType = 4
	WriteAck      MessageType = 5
	DataInvalid   MessageType = 6
	UnknownDataID MessageType = 7

	reservedMessageType = 3
)

// String returns the protocol name of the message type.
func (t MessageType) String() string {
	switch t {
	case ReadData:
		return "READ_DATA"
	case WriteData:
		return "WRITE_DATA"
	case InvalidData:
		return "INVALID_DATA"
	case ReadAck:
		return "READ_ACK"
	case WriteAck:
		return "WRITE_ACK"
	case DataInvalid:
		return "DATA_INVALID"
	case UnknownDataID:
		return "UNKNOWN_DATAID"
	default:
		return "UNKNOWN"
	}
}

// MessageTypes lists every valid message type in protocol order.
func MessageTypes() []MessageType {
	return []MessageType{ReadData, WriteData, InvalidData, ReadAck, WriteAck, DataInvalid, UnknownDataID}
}

// ByteType selects which part of the 16-bit data value an accessor reads.
type ByteType int

// Byte selectors
const (
	HighByte ByteType = iota
	LowByte
	BothBytes
)

// String returns the byte selector name.
func (b ByteType) String() string {
	switch b {
	case HighByte:
		return "high"
	case LowByte:
		return "low"
	case BothBytes:
		return "both"
	default:
		return "unknown"
	}
}
