// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Thermoquad/otgw/pkg/opentherm"
)

// ErrCommandTimeout is reported when a command was never acknowledged.
var ErrCommandTimeout = errors.New("command not acknowledged")

// GatewayError is an error report printed by the gateway firmware.
type GatewayError struct {
	Code string
}

var gatewayErrorMeanings = map[string]string{
	"NG":       "no good: unknown command",
	"SE":       "syntax error",
	"BV":       "bad value",
	"OR":       "out of range",
	"NS":       "no space",
	"NF":       "not found",
	"OE":       "overrun error",
	"Error 01": "bit timing error",
	"Error 02": "invalid stop bit",
	"Error 03": "parity error",
	"Error 04": "receive buffer overflow",
}

// ParseGatewayError recognizes firmware error lines such as "BV" or "Error 03".
func ParseGatewayError(line string) (GatewayError, bool) {
	if _, ok := gatewayErrorMeanings[line]; ok {
		return GatewayError{Code: line}, true
	}
	return GatewayError{}, false
}

// Meaning returns a description of the error code.
func (e GatewayError) Meaning() string {
	if m, ok := gatewayErrorMeanings[e.Code]; ok {
		return m
	}
	return "unknown error"
}

// IsCommandError reports whether the error answers a command, as opposed to
// a line-level error on the OpenTherm bus.
func (e GatewayError) IsCommandError() bool {
	return !strings.HasPrefix(e.Code, "Error ")
}

func (e GatewayError) Error() string {
	return fmt.Sprintf("gateway error %s (%s)", e.Code, e.Meaning())
}

// Response is the gateway's answer to a command.
type Response struct {
	Code  string
	Value string
	// Command is the pending command the response was matched to, if any.
	Command *opentherm.GatewayCommand
	// Err is set when the command was rejected or never acknowledged.
	Err error
}

// OK reports whether the command was accepted.
func (r Response) OK() bool { return r.Err == nil }

func (r Response) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Code, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Value)
}

// ParseResponse recognizes command acknowledgements of the form "XX: value".
func ParseResponse(line string) (Response, bool) {
	if len(line) < 4 || line[2] != ':' || line[3] != ' ' {
		return Response{}, false
	}
	code := line[:2]
	if _, ok := opentherm.ParseCommandCode(code); !ok {
		return Response{}, false
	}
	return Response{Code: code, Value: strings.TrimSpace(line[4:])}, true
}
