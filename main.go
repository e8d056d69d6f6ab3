// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// otgw - OpenTherm Gateway monitor and bridge
//
// A CLI tool for decoding OpenTherm Gateway traffic, sending gateway
// commands and bridging boiler readings to MQTT, Prometheus and HTTP.

package main

import (
	"os"

	"github.com/Thermoquad/otgw/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
