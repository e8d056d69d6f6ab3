// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package opentherm

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRegistryTotal(t *testing.T) {
	codes := map[string]bool{}
	for ct := CommandType(0); ct < commandTypeCount; ct++ {
		c := CommandFor(ct)
		assert.Equal(t, ct, c.Type)
		assert.Len(t, c.Code, 2, "type %d", ct)
		assert.False(t, codes[c.Code], "duplicate code %s", c.Code)
		codes[c.Code] = true

		parsed, ok := ParseCommandCode(c.Code)
		require.True(t, ok, c.Code)
		assert.Equal(t, ct, parsed)
		assert.Equal(t, c.Code, ct.String())
	}
	assert.Len(t, Commands(), int(commandTypeCount))
}

func TestParseCommandCode(t *testing.T) {
	ct, ok := ParseCommandCode("ch")
	require.True(t, ok)
	assert.Equal(t, CmdCentralHeating, ct)

	ct, ok = ParseCommandCode(" Pr ")
	require.True(t, ok)
	assert.Equal(t, CmdPrintReport, ct)

	_, ok = ParseCommandCode("ZZ")
	assert.False(t, ok)
	_, ok = ParseCommandCode("")
	assert.False(t, ok)
}

func TestCommandFormat(t *testing.T) {
	tests := []struct {
		name    string
		cmd     CommandType
		value   string
		want    string
		wantErr bool
	}{
		{"central heating on", CmdCentralHeating, "1", "CH=1", false},
		{"central heating out of set", CmdCentralHeating, "2", "", true},
		{"print report", CmdPrintReport, "A", "PR=A", false},
		{"print report lower case", CmdPrintReport, "a", "", true},
		{"print summary off", CmdPrintSummary, "0", "PS=0", false},
		{"gateway reset", CmdGatewayMode, "R", "GW=R", false},
		{"led function", CmdLEDC, "F", "LC=F", false},
		{"led unknown function", CmdLEDC, "Z", "", true},
		{"gpio", CmdGPIOB, "7", "GB=7", false},
		{"gpio out of set", CmdGPIOB, "8", "", true},
		{"voltage reference", CmdVoltageReference, "9", "VR=9", false},
		{"free form setpoint", CmdTemperatureTemporary, "20.5", "TT=20.5", false},
		{"free form clock", CmdSetClock, "12:30/3", "SC=12:30/3", false},
		{"empty value", CmdTemperatureTemporary, "", "", true},
		{"equals sign", CmdTemperatureTemporary, "1=2", "", true},
		{"newline", CmdTemperatureTemporary, "20\n", "", true},
		{"carriage return", CmdOutsideTemperature, "5\r", "", true},
		{"too long", CmdSetResponse, strings.Repeat("1", MaxCommandValueLength+1), "", true},
		{"max length", CmdSetResponse, strings.Repeat("1", MaxCommandValueLength), "SR=" + strings.Repeat("1", MaxCommandValueLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := CommandFor(tt.cmd).Format(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidCommandValue))
				assert.Empty(t, line)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, line)
		})
	}
}

func TestNewGatewayCommand(t *testing.T) {
	gc, err := NewGatewayCommand(CmdCentralHeating, "1")
	require.NoError(t, err)
	assert.Equal(t, "CH", gc.Code())
	assert.Equal(t, "1", gc.Value())
	assert.Equal(t, CmdCentralHeating, gc.Type())
	assert.Equal(t, "CH=1", gc.String())

	_, err = NewGatewayCommand(CmdCentralHeating, "2")
	assert.True(t, errors.Is(err, ErrInvalidCommandValue))

	_, err = NewGatewayCommand(commandTypeCount, "1")
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}

func TestParseGatewayCommand(t *testing.T) {
	gc, err := ParseGatewayCommand("tt", "21.0")
	require.NoError(t, err)
	assert.Equal(t, "TT=21.0", gc.String())

	_, err = ParseGatewayCommand("XX", "1")
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}
