// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/otgw/internal/logger"
	"github.com/Thermoquad/otgw/internal/state"
	"github.com/Thermoquad/otgw/pkg/gateway"
	"github.com/Thermoquad/otgw/pkg/opentherm"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactive TUI showing live boiler values",
	Long: `Watch the gateway in an interactive terminal UI.

Features:
  - Live table of every decoded data item, with gateway overrides marked
  - Statistics (message rate, malformed lines, gateway errors)
  - Command entry (CODE=VALUE) with response feedback
  - Event log of status changes, responses and connection events
  - Automatic reconnection on connection loss

Tab switches between the value table and the command input.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// programCallback forwards gateway events to the TUI as tea messages.
type programCallback struct {
	p     *tea.Program
	store *state.Store
}

func (c *programCallback) Connecting()   { c.p.Send(connStateMsg{state: gateway.ConnectingState}) }
func (c *programCallback) Connected()    { c.p.Send(connStateMsg{state: gateway.ConnectedState}) }
func (c *programCallback) Disconnected() { c.p.Send(connStateMsg{state: gateway.DisconnectedState}) }

func (c *programCallback) ReceiveMessage(msg *opentherm.Message) {
	if changes := c.store.Apply(msg); len(changes) > 0 {
		c.p.Send(valuesMsg{changes: changes})
	}
}

func (c *programCallback) CommandResponse(resp gateway.Response) {
	c.p.Send(responseMsg{resp: resp})
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dialer, err := openDialer(cfg)
	if err != nil {
		return err
	}

	// Log lines would corrupt the alternate screen.
	log := logger.Discard()
	stats := opentherm.NewStatistics()
	cb := &programCallback{store: state.New()}

	opts := append(connectorOptions(cfg, log), gateway.WithStatistics(stats))
	sup, err := gateway.NewSupervisor(dialer, cb, opts...)
	if err != nil {
		return err
	}

	m := initialWatchModel(dialer.String(), sup, cb.store, stats)
	p := tea.NewProgram(m, tea.WithAltScreen())
	cb.p = p

	ctx, cancel := signalContext()
	defer cancel()
	sup.Start(ctx)
	defer sup.Stop()

	_, err = p.Run()
	return err
}
