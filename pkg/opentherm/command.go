// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package opentherm

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Command errors
var (
	ErrInvalidCommandValue = errors.New("invalid command value")
	ErrUnknownCommand      = errors.New("unknown command")
)

// CommandType enumerates the gateway control commands
type CommandType int

// Gateway commands in firmware documentation order
const (
	CmdTemperatureTemporary CommandType = iota // TT
	CmdTemperatureConstant                     // TC
	CmdOutsideTemperature                      // OT
	CmdSetClock                                // SC
	CmdHotWater                                // HW
	CmdPrintReport                             // PR
	CmdPrintSummary                            // PS
	CmdGatewayMode                             // GW
	CmdLEDA                                    // LA
	CmdLEDB                                    // LB
	CmdLEDC                                    // LC
	CmdLEDD                                    // LD
	CmdLEDE                                    // LE
	CmdLEDF                                    // LF
	CmdGPIOA                                   // GA
	CmdGPIOB                                   // GB
	CmdSetback                                 // SB
	CmdAddAlternative                          // AA
	CmdDeleteAlternative                       // DA
	CmdUnknownID                               // UI
	CmdKnownID                                 // KI
	CmdPriorityMessage                         // PM
	CmdSetResponse                             // SR
	CmdClearResponse                           // CR
	CmdSetpointHotWater                        // SH
	CmdSetpointHeating                         // SW
	CmdMaxModulation                           // MM
	CmdControlSetpoint                         // CS
	CmdControlSetpoint2                        // C2
	CmdCentralHeating                          // CH
	CmdCentralHeating2                         // H2
	CmdVentilationSetpoint                     // VS
	CmdResetCounter                            // RS
	CmdIgnoreTransitions                       // IT
	CmdOverrideHighByte                        // OH
	CmdForceThermostat                         // FT
	CmdVoltageReference                        // VR
	CmdDebugPointer                            // DP

	commandTypeCount
)

// Command describes one gateway command and the values it accepts
type Command struct {
	Type        CommandType
	Code        string
	Description string
	// Allowed lists the exact tokens accepted; empty means free-form.
	Allowed []string
}

var (
	boolValues = []string{"0", "1"}
	ledValues  = []string{"R", "X", "T", "B", "O", "F", "H", "W", "C", "E", "M", "P"}
	gpioValues = []string{"0", "1", "2", "3", "4", "5", "6", "7"}
)

var commandDefs = []Command{
	{CmdTemperatureTemporary, "TT", "Temporary room setpoint override", nil},
	{CmdTemperatureConstant, "TC", "Constant room setpoint override", nil},
	{CmdOutsideTemperature, "OT", "Outside temperature", nil},
	{CmdSetClock, "SC", "Set clock (HH:MM/DOW)", nil},
	{CmdHotWater, "HW", "Domestic hot water enable", nil},
	{CmdPrintReport, "PR", "Print report", []string{"A", "B", "C", "G", "I", "L", "M", "O", "P", "R", "S", "T", "V", "W"}},
	{CmdPrintSummary, "PS", "Print summary", boolValues},
	{CmdGatewayMode, "GW", "Gateway/monitor mode", []string{"0", "1", "R"}},
	{CmdLEDA, "LA", "LED A function", ledValues},
	{CmdLEDB, "LB", "LED B function", ledValues},
	{CmdLEDC, "LC", "LED C function", ledValues},
	{CmdLEDD, "LD", "LED D function", ledValues},
	{CmdLEDE, "LE", "LED E function", ledValues},
	{CmdLEDF, "LF", "LED F function", ledValues},
	{CmdGPIOA, "GA", "GPIO A function", gpioValues},
	{CmdGPIOB, "GB", "GPIO B function", gpioValues},
	{CmdSetback, "SB", "Setback temperature", nil},
	{CmdAddAlternative, "AA", "Add alternative data-ID", nil},
	{CmdDeleteAlternative, "DA", "Delete alternative data-ID", nil},
	{CmdUnknownID, "UI", "Mark data-ID unknown", nil},
	{CmdKnownID, "KI", "Mark data-ID known", nil},
	{CmdPriorityMessage, "PM", "Priority message", nil},
	{CmdSetResponse, "SR", "Set response", nil},
	{CmdClearResponse, "CR", "Clear response", nil},
	{CmdSetpointHotWater, "SH", "Domestic hot water setpoint", nil},
	{CmdSetpointHeating, "SW", "Maximum central heating setpoint", nil},
	{CmdMaxModulation, "MM", "Maximum relative modulation", nil},
	{CmdControlSetpoint, "CS", "Control setpoint", nil},
	{CmdControlSetpoint2, "C2", "Control setpoint central heating 2", nil},
	{CmdCentralHeating, "CH", "Central heating enable", boolValues},
	{CmdCentralHeating2, "H2", "Central heating 2 enable", boolValues},
	{CmdVentilationSetpoint, "VS", "Ventilation setpoint", nil},
	{CmdResetCounter, "RS", "Reset boiler counter", nil},
	{CmdIgnoreTransitions, "IT", "Ignore mid-bit transitions", boolValues},
	{CmdOverrideHighByte, "OH", "Override high byte of status", boolValues},
	{CmdForceThermostat, "FT", "Force thermostat model", boolValues},
	{CmdVoltageReference, "VR", "Voltage reference", []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}},
	{CmdDebugPointer, "DP", "Debug pointer", nil},
}

var (
	commandsByType = map[CommandType]Command{}
	commandsByCode = map[string]CommandType{}
)

func init() {
	for _, c := range commandDefs {
		if _, dup := commandsByType[c.Type]; dup {
			panic(fmt.Sprintf("opentherm: command type %d registered twice", c.Type))
		}
		if _, dup := commandsByCode[c.Code]; dup {
			panic(fmt.Sprintf("opentherm: command code %s registered twice", c.Code))
		}
		commandsByType[c.Type] = c
		commandsByCode[c.Code] = c.Type
	}
	for t := CommandType(0); t < commandTypeCount; t++ {
		if _, ok := commandsByType[t]; !ok {
			panic(fmt.Sprintf("opentherm: command type %d has no definition", t))
		}
	}
}

// String returns the two-letter command code
func (t CommandType) String() string {
	if c, ok := commandsByType[t]; ok {
		return c.Code
	}
	return fmt.Sprintf("CommandType(%d)", int(t))
}

// CommandFor returns the definition for t. Every CommandType has one.
func CommandFor(t CommandType) Command {
	return commandsByType[t]
}

// ParseCommandCode looks a command up by its code, ignoring case
func ParseCommandCode(code string) (CommandType, bool) {
	t, ok := commandsByCode[strings.ToUpper(strings.TrimSpace(code))]
	return t, ok
}

// Commands returns every command definition in documentation order
func Commands() []Command {
	out := make([]Command, len(commandDefs))
	copy(out, commandDefs)
	return out
}

// Validate checks value against the command's limits
func (c Command) Validate(value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s requires a value", ErrInvalidCommandValue, c.Code)
	}
	if len(value) > MaxCommandValueLength {
		return fmt.Errorf("%w: %s value longer than %d characters", ErrInvalidCommandValue, c.Code, MaxCommandValueLength)
	}
	for _, r := range value {
		if r < 0x20 || r == 0x7f || r == '=' {
			return fmt.Errorf("%w: %s value contains %q", ErrInvalidCommandValue, c.Code, r)
		}
	}
	if len(c.Allowed) > 0 && !slices.Contains(c.Allowed, value) {
		return fmt.Errorf("%w: %s accepts %s, got %q", ErrInvalidCommandValue, c.Code, strings.Join(c.Allowed, ","), value)
	}
	return nil
}

// Format renders the command line without terminator, e.g. "CH=1"
func (c Command) Format(value string) (string, error) {
	if err := c.Validate(value); err != nil {
		return "", err
	}
	return c.Code + "=" + value, nil
}

// GatewayCommand is a validated command ready to be written to the gateway
type GatewayCommand struct {
	cmd   Command
	value string
	line  string
}

// NewGatewayCommand validates value for t and builds the command
func NewGatewayCommand(t CommandType, value string) (*GatewayCommand, error) {
	if t < 0 || t >= commandTypeCount {
		return nil, fmt.Errorf("%w: type %d", ErrUnknownCommand, int(t))
	}
	cmd := CommandFor(t)
	line, err := cmd.Format(value)
	if err != nil {
		return nil, err
	}
	return &GatewayCommand{cmd: cmd, value: value, line: line}, nil
}

// ParseGatewayCommand builds a command from a code and a value, as typed by a user
func ParseGatewayCommand(code, value string) (*GatewayCommand, error) {
	t, ok := ParseCommandCode(code)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, code)
	}
	return NewGatewayCommand(t, value)
}

// Type returns the command type
func (g *GatewayCommand) Type() CommandType { return g.cmd.Type }

// Code returns the two-letter command code
func (g *GatewayCommand) Code() string { return g.cmd.Code }

// Value returns the command argument
func (g *GatewayCommand) Value() string { return g.value }

// String returns the formatted command line, without terminator
func (g *GatewayCommand) String() string { return g.line }
