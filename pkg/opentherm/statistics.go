// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package opentherm

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Statistics tracks line and message counters for one gateway link.
// All methods are safe for concurrent use.
type Statistics struct {
	startTime atomic.Int64 // unix nanos

	lines         atomic.Uint64
	messages      atomic.Uint64
	malformed     atomic.Uint64
	dispatched    atomic.Uint64
	unknownIDs    atomic.Uint64
	responses     atomic.Uint64
	gatewayErrors atomic.Uint64
	byType        [8]atomic.Uint64
}

// StatisticsSnapshot is a point-in-time copy of Statistics
type StatisticsSnapshot struct {
	Elapsed       time.Duration
	Lines         uint64
	Messages      uint64
	Malformed     uint64
	Dispatched    uint64
	UnknownIDs    uint64
	Responses     uint64
	GatewayErrors uint64
	ByType        map[MessageType]uint64

	// Rates (calculated)
	MessageRate float64 // messages/sec
	ErrorRate   float64 // malformed+gateway errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	s := &Statistics{}
	s.startTime.Store(time.Now().UnixNano())
	return s
}

// RecordLine counts a raw line read from the gateway
func (s *Statistics) RecordLine() { s.lines.Add(1) }

// RecordMalformed counts a line that was neither a message nor a response
func (s *Statistics) RecordMalformed() { s.malformed.Add(1) }

// RecordResponse counts a command response
func (s *Statistics) RecordResponse() { s.responses.Add(1) }

// RecordGatewayError counts an error report from the gateway firmware
func (s *Statistics) RecordGatewayError() { s.gatewayErrors.Add(1) }

// RecordDispatched counts a message handed to the callback
func (s *Statistics) RecordDispatched() { s.dispatched.Add(1) }

// RecordMessage counts a parsed message by type and data-ID knowledge
func (s *Statistics) RecordMessage(m *Message) {
	s.messages.Add(1)
	if t := int(m.MessageType()); t >= 0 && t < len(s.byType) {
		s.byType[t].Add(1)
	}
	if _, known := dataItemGroups[m.ID()]; !known {
		s.unknownIDs.Add(1)
	}
}

// Snapshot returns a consistent-enough copy of the counters
func (s *Statistics) Snapshot() StatisticsSnapshot {
	snap := StatisticsSnapshot{
		Elapsed:       time.Since(time.Unix(0, s.startTime.Load())),
		Lines:         s.lines.Load(),
		Messages:      s.messages.Load(),
		Malformed:     s.malformed.Load(),
		Dispatched:    s.dispatched.Load(),
		UnknownIDs:    s.unknownIDs.Load(),
		Responses:     s.responses.Load(),
		GatewayErrors: s.gatewayErrors.Load(),
		ByType:        make(map[MessageType]uint64, len(s.byType)),
	}
	for _, t := range MessageTypes() {
		snap.ByType[t] = s.byType[t].Load()
	}
	if secs := snap.Elapsed.Seconds(); secs > 0 {
		snap.MessageRate = float64(snap.Messages) / secs
		snap.ErrorRate = float64(snap.Malformed+snap.GatewayErrors) / secs
	}
	return snap
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	return s.Snapshot().String()
}

// String returns a formatted statistics summary
func (s StatisticsSnapshot) String() string {
	var validPercent float64
	if s.Lines > 0 {
		validPercent = float64(s.Messages) * 100.0 / float64(s.Lines)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Statistics (%.0f seconds) ===\n", s.Elapsed.Seconds())
	fmt.Fprintf(&sb, "Lines:           %8d\n", s.Lines)
	fmt.Fprintf(&sb, "Messages:        %8d (%.1f%%)\n", s.Messages, validPercent)
	fmt.Fprintf(&sb, "Dispatched:      %8d\n", s.Dispatched)
	if s.UnknownIDs > 0 {
		fmt.Fprintf(&sb, "Unknown IDs:     %8d\n", s.UnknownIDs)
	}
	if s.Malformed > 0 {
		fmt.Fprintf(&sb, "Malformed:       %8d\n", s.Malformed)
	}
	if s.Responses > 0 {
		fmt.Fprintf(&sb, "Responses:       %8d\n", s.Responses)
	}
	if s.GatewayErrors > 0 {
		fmt.Fprintf(&sb, "Gateway Errors:  %8d\n", s.GatewayErrors)
	}
	for _, t := range MessageTypes() {
		if n := s.ByType[t]; n > 0 {
			fmt.Fprintf(&sb, "  %-15s %6d\n", t.String()+":", n)
		}
	}
	fmt.Fprintf(&sb, "Message Rate:    %8.1f msgs/sec\n", s.MessageRate)
	fmt.Fprintf(&sb, "Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	sb.WriteString("================================\n")
	return sb.String()
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.startTime.Store(time.Now().UnixNano())
	s.lines.Store(0)
	s.messages.Store(0)
	s.malformed.Store(0)
	s.dispatched.Store(0)
	s.unknownIDs.Store(0)
	s.responses.Store(0)
	s.gatewayErrors.Store(0)
	for i := range s.byType {
		s.byType[i].Store(0)
	}
}
