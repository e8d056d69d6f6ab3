// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/otgw/pkg/opentherm"
)

var probeTimeout int

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the connection by waiting for a valid OpenTherm message",
	Long: `Wait for a valid OpenTherm message on the connection until timeout.

This command connects to the gateway and waits for any READ_ACK or WRITE_DATA
message. Noise, gateway reports and other message types are ignored.

Exit codes:
  0 - Message received before timeout
  1 - Timeout reached without receiving a valid message
  2 - Connection error

Useful for checking that the thermostat and boiler are talking through the gateway.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a message")
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cb := newChanCallback()
	conn, connInfo, err := startOneShot(ctx, cb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer func() {
		conn.Stop()
		<-conn.Done()
	}()

	fmt.Printf("otgw - Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for a valid OpenTherm message...\n\n")

	select {
	case msg := <-cb.messages:
		if skipped := conn.Statistics().Snapshot().Malformed; skipped > 0 {
			fmt.Printf("(skipped %d malformed lines)\n", skipped)
		}
		fmt.Printf("SUCCESS: Received valid message\n")
		fmt.Print(opentherm.FormatMessage(msg))
		return nil

	case <-conn.Done():
		fmt.Fprintf(os.Stderr, "Read error: %v\n", conn.Err())
		os.Exit(2)

	case <-time.After(time.Duration(probeTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid message received within %d seconds\n", probeTimeout)
		conn.Stop()
		<-conn.Done()
		os.Exit(1)
	}

	return nil
}
