// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/otgw/pkg/transport"
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Decode a recorded capture file",
	Long: `Run the monitor over a capture file written by "otgw monitor --record".

Lines are replayed as fast as they can be decoded, or with the recorded
timing when --realtime is set. Commands recorded in the file are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := loader.Viper()
		v.Set("gateway.transport", transport.TypeReplay)
		v.Set("gateway.file", args[0])
		return runMonitor(cmd, nil)
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&monitorRecord, "record", "", "Re-record the replayed lines to a capture file")
	replayCmd.Flags().BoolVar(&monitorRaw, "raw", false, "Print raw lines")
	replayCmd.Flags().IntVar(&monitorStatsInterval, "stats-interval", 60, "Statistics summary interval in seconds (0 disables)")
}
