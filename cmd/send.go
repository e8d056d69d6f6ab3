// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/otgw/internal/logger"
	"github.com/Thermoquad/otgw/pkg/gateway"
	"github.com/Thermoquad/otgw/pkg/opentherm"
)

var sendWait time.Duration

var sendCmd = &cobra.Command{
	Use:   "send CODE=VALUE...",
	Short: "Send commands to the gateway and print the responses",
	Long: `Connect, send one or more gateway commands and wait for their responses.

Commands are given as CODE=VALUE, e.g. "otgw send TT=20.5 CH=1". Values are
checked against the command's allowed values before anything is sent. Use
"otgw commands" to list the available codes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().DurationVar(&sendWait, "wait", 20*time.Second, "Maximum time to wait for all responses")
}

// parseCommandArgs turns CODE=VALUE arguments into validated commands.
func parseCommandArgs(args []string) ([]*opentherm.GatewayCommand, error) {
	cmds := make([]*opentherm.GatewayCommand, 0, len(args))
	for _, arg := range args {
		code, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("%q is not CODE=VALUE", arg)
		}
		cmd, err := opentherm.ParseGatewayCommand(code, value)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// sendCallback sends the queued commands once connected and stops the
// connector after the last response.
type sendCallback struct {
	conn      *gateway.SocketConnector
	cmds      []*opentherm.GatewayCommand
	remaining map[string]int
	failed    atomic.Bool
}

func (c *sendCallback) Connecting()                       {}
func (c *sendCallback) Disconnected()                     {}
func (c *sendCallback) ReceiveMessage(*opentherm.Message) {}

func (c *sendCallback) Connected() {
	for _, cmd := range c.cmds {
		if err := c.conn.SendCommand(cmd); err != nil {
			fmt.Printf("%s: %v\n", cmd, err)
			c.failed.Store(true)
			c.remaining[cmd.Code()]--
		}
	}
	c.stopIfDone()
}

func (c *sendCallback) CommandResponse(resp gateway.Response) {
	if _, ok := c.remaining[resp.Code]; !ok {
		return
	}
	fmt.Println(resp)
	if !resp.OK() {
		c.failed.Store(true)
	}
	c.remaining[resp.Code]--
	c.stopIfDone()
}

func (c *sendCallback) stopIfDone() {
	for _, n := range c.remaining {
		if n > 0 {
			return
		}
	}
	c.conn.Stop()
}

func runSend(cmd *cobra.Command, args []string) error {
	cmds, err := parseCommandArgs(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dialer, err := openDialer(cfg)
	if err != nil {
		return err
	}

	cb := &sendCallback{cmds: cmds, remaining: make(map[string]int)}
	for _, c := range cmds {
		cb.remaining[c.Code()]++
	}

	conn, err := gateway.NewSocketConnector(dialer, cb, connectorOptions(cfg, logger.GetLogger())...)
	if err != nil {
		return err
	}
	cb.conn = conn

	ctx, cancel := signalContext()
	defer cancel()
	timer := time.AfterFunc(sendWait, func() {
		fmt.Println("timed out waiting for responses")
		cb.failed.Store(true)
		conn.Stop()
	})
	defer timer.Stop()

	if err := conn.Run(ctx); err != nil {
		return err
	}
	if cb.failed.Load() {
		return errors.New("one or more commands failed")
	}
	return nil
}
