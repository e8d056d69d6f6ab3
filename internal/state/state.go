// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package state keeps the latest decoded value of every data item channel.
package state

import (
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/Thermoquad/otgw/pkg/opentherm"
)

// Entry is the latest reading of one channel.
type Entry struct {
	Value   opentherm.Value
	Source  opentherm.Source
	Updated time.Time
}

// Overridden reports whether the gateway injected the reading.
func (e Entry) Overridden() bool {
	return e.Source.IsOverride()
}

// Change is a channel whose value differs from the previous reading.
type Change struct {
	Entry
	// First is set when the channel had no previous reading.
	First bool
}

// Store is a concurrent latest-value store keyed by channel.
type Store struct {
	entries *xsync.MapOf[string, Entry]
}

// New creates an empty store.
func New() *Store {
	return &Store{entries: xsync.NewMapOf[string, Entry]()}
}

// Apply records every decoded value of msg and returns the ones that changed.
// Unchanged values only refresh their timestamp.
func (s *Store) Apply(msg *opentherm.Message) []Change {
	values := opentherm.DecodeMessage(msg)
	if len(values) == 0 {
		return nil
	}

	var changes []Change
	for _, v := range values {
		entry := Entry{Value: v, Source: msg.Source(), Updated: msg.Timestamp()}
		prev, ok := s.entries.Load(v.Item.Channel)
		s.entries.Store(v.Item.Channel, entry)
		if ok && prev.Value.Equal(v) {
			continue
		}
		changes = append(changes, Change{Entry: entry, First: !ok})
	}
	return changes
}

// Get returns the latest entry for channel.
func (s *Store) Get(channel string) (Entry, bool) {
	return s.entries.Load(channel)
}

// Snapshot returns all entries ordered by data-ID, then channel.
func (s *Store) Snapshot() []Entry {
	out := make([]Entry, 0, s.entries.Size())
	s.entries.Range(func(_ string, e Entry) bool {
		out = append(out, e)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Value.Item, out[j].Value.Item
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Channel < b.Channel
	})
	return out
}

// Len returns the number of channels with a reading.
func (s *Store) Len() int {
	return s.entries.Size()
}

// Reset forgets all readings.
func (s *Store) Reset() {
	s.entries.Clear()
}
