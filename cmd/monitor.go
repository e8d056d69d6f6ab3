// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/otgw/internal/logger"
	"github.com/Thermoquad/otgw/pkg/capture"
	"github.com/Thermoquad/otgw/pkg/gateway"
	"github.com/Thermoquad/otgw/pkg/opentherm"
	"github.com/Thermoquad/otgw/pkg/transport"
)

var (
	monitorRecord        string
	monitorRaw           bool
	monitorStatsInterval int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display decoded OpenTherm messages as they arrive",
	Long: `Continuously decode and display the OpenTherm traffic reported by the gateway.

Each READ_ACK and WRITE_DATA message is printed with its timestamp, source,
message type and decoded data items. Use --raw to print every line read from
and written to the gateway instead, and --record to save the session to a
capture file that can be replayed later with --file.

Periodic statistics summaries are printed at --stats-interval.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorRecord, "record", "", "Record the session to a capture file")
	monitorCmd.Flags().BoolVar(&monitorRaw, "raw", false, "Print raw gateway lines")
	monitorCmd.Flags().IntVar(&monitorStatsInterval, "stats-interval", 60, "Statistics summary interval in seconds (0 disables)")
}

type monitorCallback struct {
	out io.Writer
}

func (m monitorCallback) Connecting()   { fmt.Fprintln(m.out, "Connecting...") }
func (m monitorCallback) Connected()    { fmt.Fprintln(m.out, "Connected") }
func (m monitorCallback) Disconnected() { fmt.Fprintln(m.out, "Disconnected") }

func (m monitorCallback) ReceiveMessage(msg *opentherm.Message) {
	if !monitorRaw {
		fmt.Fprint(m.out, opentherm.FormatMessage(msg))
	}
}

func (m monitorCallback) CommandResponse(resp gateway.Response) {
	if !monitorRaw {
		fmt.Fprintf(m.out, "[%s] response %s\n", time.Now().Format("15:04:05.000"), resp)
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dialer, err := openDialer(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	log := logger.GetLogger()
	stats := opentherm.NewStatistics()
	opts := append(connectorOptions(cfg, log), gateway.WithStatistics(stats))

	if monitorRaw {
		opts = append(opts, gateway.WithLineObserver(func(dir capture.Direction, line string) {
			fmt.Fprintf(out, "[%s] %s %s\n", time.Now().Format("15:04:05.000"), dir, line)
		}))
	}
	if monitorRecord != "" {
		opt, rec, err := recordTo(monitorRecord, dialer)
		if err != nil {
			return err
		}
		defer func() {
			fmt.Fprintf(out, "Recorded %d lines to %s\n", rec.Count(), monitorRecord)
			_ = rec.Close()
		}()
		opts = append(opts, opt)
	}

	conn, err := gateway.NewSocketConnector(dialer, monitorCallback{out: out}, opts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "otgw - Monitor\n")
	fmt.Fprintf(out, "Connection: %s\n", dialer)
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	ctx, cancel := signalContext()
	defer cancel()

	if monitorStatsInterval > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(monitorStatsInterval) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-conn.Done():
					return
				case <-ticker.C:
					fmt.Fprint(out, stats)
				}
			}
		}()
	}

	err = conn.Run(ctx)
	fmt.Fprint(out, stats)
	if errors.Is(err, io.EOF) && cfg.Gateway.Transport == transport.TypeReplay {
		fmt.Fprintln(out, "End of capture")
		return nil
	}
	return err
}
