// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

// ConnState represents the lifecycle stage of a gateway connection.
type ConnState uint32

// Connection states. A connector moves through them in order and ends in
// DisconnectedState; it is never restarted.
const (
	DisconnectedState ConnState = iota
	ConnectingState
	ConnectedState
	DisconnectingState
)

// IsConnected returns if the state allows sending commands.
func (cs ConnState) IsConnected() bool { return cs == ConnectedState }

// String returns string representation of the state.
func (cs ConnState) String() string {
	switch cs {
	case DisconnectedState:
		return "disconnected"
	case ConnectingState:
		return "connecting"
	case ConnectedState:
		return "connected"
	case DisconnectingState:
		return "disconnecting"
	default:
		return "unknown"
	}
}
