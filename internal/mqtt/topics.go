// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqtt

import "strings"

// Status payloads published on the status topic
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Topics lays out the bridge's topic tree under a prefix:
//
//	<prefix>/status             online/offline, retained, also the last will
//	<prefix>/value/<channel>    latest reading of a data item
//	<prefix>/command/<CODE>     gateway commands, payload is the value
//	<prefix>/response/<CODE>    gateway answers to commands
type Topics struct {
	Prefix string
}

// NewTopics trims surrounding slashes from prefix.
func NewTopics(prefix string) Topics {
	return Topics{Prefix: strings.Trim(prefix, "/")}
}

func (t Topics) Status() string {
	return t.Prefix + "/status"
}

func (t Topics) Value(channel string) string {
	return t.Prefix + "/value/" + channel
}

func (t Topics) Command(code string) string {
	return t.Prefix + "/command/" + code
}

// CommandFilter subscribes to every command topic.
func (t Topics) CommandFilter() string {
	return t.Prefix + "/command/+"
}

func (t Topics) Response(code string) string {
	return t.Prefix + "/response/" + code
}

// ParseCommand extracts the command code from a command topic.
func (t Topics) ParseCommand(topic string) (string, bool) {
	code, ok := strings.CutPrefix(topic, t.Prefix+"/command/")
	if !ok || code == "" || strings.Contains(code, "/") {
		return "", false
	}
	return code, true
}
