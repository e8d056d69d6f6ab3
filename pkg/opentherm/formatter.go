// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package opentherm

import (
	"fmt"
	"strings"
	"time"
)

// FormatMessage formats a message and its decoded values into a human-readable block
func FormatMessage(m *Message) string {
	timestamp := m.Timestamp().Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %-14s %-14s id=%-3d data=%02X%02X (%s)\n",
		timestamp, m.Source(), m.MessageType(), m.ID(), m.HighByte(), m.LowByte(), m.Raw())

	values := DecodeMessage(m)
	if values == nil {
		if _, known := dataItemGroups[m.ID()]; !known {
			result += "  (unknown data-ID)\n"
		}
		return result
	}
	result += FormatValues(values)
	return result
}

// FormatValues renders one value per line
func FormatValues(values []Value) string {
	var sb strings.Builder
	for _, v := range values {
		sb.WriteString("  ")
		sb.WriteString(FormatValue(v))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// FormatValue renders a value as "Subject: value unit"
func FormatValue(v Value) string {
	if v.Item.Unit == "" {
		return fmt.Sprintf("%s: %s", v.Item.Subject, v.String())
	}
	return fmt.Sprintf("%s: %s %s", v.Item.Subject, v.String(), v.Item.Unit)
}

// FormatDataItem renders a registry entry for listings
func FormatDataItem(d DataItem) string {
	location := d.ByteType.String()
	if d.DataType == Flags {
		location = fmt.Sprintf("%s bit %d", d.ByteType, d.BitPos)
	}
	return fmt.Sprintf("%3d  %-34s %-7s %-11s %s", d.ID, d.Channel, d.DataType, location, d.Subject)
}

// FormatCommand renders a registry entry for listings
func FormatCommand(c Command) string {
	allowed := "any"
	if len(c.Allowed) > 0 {
		allowed = strings.Join(c.Allowed, ",")
	}
	return fmt.Sprintf("%s  %-36s %s", c.Code, c.Description, allowed)
}

// FormatUptime renders a duration as d/h/m/s
func FormatUptime(d time.Duration) string {
	total := int64(d.Seconds())
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
