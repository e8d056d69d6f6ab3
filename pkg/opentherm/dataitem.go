// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package opentherm

import (
	"fmt"
	"sort"
	"strconv"
)

// DataType describes how a data item is extracted from a message
type DataType int

// Data types used by the OpenTherm data-ID table
const (
	Flags DataType = iota
	Uint8
	Int8
	Uint16
	Int16
	Float
	DoWToD // day of week and time of day
)

// String returns the data type name
func (t DataType) String() string {
	switch t {
	case Flags:
		return "flags"
	case Uint8:
		return "u8"
	case Int8:
		return "s8"
	case Uint16:
		return "u16"
	case Int16:
		return "s16"
	case Float:
		return "f8.8"
	case DoWToD:
		return "dow-tod"
	default:
		return "unknown"
	}
}

// DataItem is one named sub-field of an OpenTherm data-ID
type DataItem struct {
	ID       uint8
	Subject  string
	Channel  string
	DataType DataType
	ByteType ByteType
	BitPos   int
	Unit     string
}

// Decode extracts the item's value from msg.
// DoWToD items are left undecoded and report false.
func (d DataItem) Decode(msg *Message) (Value, bool) {
	v := Value{Item: d}
	switch d.DataType {
	case Flags:
		v.Bool = msg.Bit(d.ByteType, d.BitPos)
	case Uint8, Uint16:
		v.Int = int64(msg.UInt(d.ByteType))
	case Int8, Int16:
		v.Int = int64(msg.Int(d.ByteType))
	case Float:
		v.Float = msg.Float()
	case DoWToD:
		return Value{}, false
	default:
		return Value{}, false
	}
	return v, true
}

// mask returns the frame data bits the item covers, high byte in bits 15..8
func (d DataItem) mask() uint16 {
	if d.DataType == Flags {
		if d.ByteType == HighByte {
			return 1 << (d.BitPos + 8)
		}
		return 1 << d.BitPos
	}
	switch d.ByteType {
	case HighByte:
		return 0xFF00
	case LowByte:
		return 0x00FF
	default:
		return 0xFFFF
	}
}

// Value is a decoded data item
type Value struct {
	Item  DataItem
	Bool  bool
	Int   int64
	Float float64
}

// Number returns the value as a float; flags map to 0 and 1
func (v Value) Number() float64 {
	switch v.Item.DataType {
	case Flags:
		if v.Bool {
			return 1
		}
		return 0
	case Float:
		return v.Float
	default:
		return float64(v.Int)
	}
}

// String returns the value as published: on/off for flags, two decimals for floats
func (v Value) String() string {
	switch v.Item.DataType {
	case Flags:
		if v.Bool {
			return "on"
		}
		return "off"
	case Float:
		return strconv.FormatFloat(v.Float, 'f', 2, 64)
	default:
		return strconv.FormatInt(v.Int, 10)
	}
}

// Equal reports whether two values carry the same reading for the same item
func (v Value) Equal(o Value) bool {
	return v.Item.Channel == o.Item.Channel && v.Bool == o.Bool && v.Int == o.Int && v.Float == o.Float
}

// LookupDataItems returns the sub-fields documented for a data-ID.
// The returned slice is a copy; unknown IDs return nil, false.
func LookupDataItems(id uint8) ([]DataItem, bool) {
	items, ok := dataItemGroups[id]
	if !ok {
		return nil, false
	}
	out := make([]DataItem, len(items))
	copy(out, items)
	return out, true
}

// DataItemIDs returns all documented data-IDs in ascending order
func DataItemIDs() []uint8 {
	ids := make([]uint8, 0, len(dataItemGroups))
	for id := range dataItemGroups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LookupChannel finds a data item by channel name
func LookupChannel(channel string) (DataItem, bool) {
	item, ok := itemsByChannel[channel]
	return item, ok
}

// DecodeMessage decodes every documented sub-field of msg.
// Messages with an unknown data-ID decode to nil.
func DecodeMessage(msg *Message) []Value {
	items := dataItemGroups[msg.ID()]
	if len(items) == 0 {
		return nil
	}
	values := make([]Value, 0, len(items))
	for _, item := range items {
		if v, ok := item.Decode(msg); ok {
			values = append(values, v)
		}
	}
	return values
}

var itemsByChannel = indexChannels()

func indexChannels() map[string]DataItem {
	index := make(map[string]DataItem)
	for id, items := range dataItemGroups {
		var used uint16
		for _, item := range items {
			if item.ID != id {
				panic(fmt.Sprintf("opentherm: item %s registered under id %d", item.Channel, id))
			}
			if used&item.mask() != 0 {
				panic(fmt.Sprintf("opentherm: item %s overlaps another item of id %d", item.Channel, id))
			}
			used |= item.mask()
			if _, dup := index[item.Channel]; dup {
				panic(fmt.Sprintf("opentherm: duplicate channel %s", item.Channel))
			}
			index[item.Channel] = item
		}
	}
	return index
}
