// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/otgw/internal/logger"
	"github.com/Thermoquad/otgw/pkg/gateway"
	"github.com/Thermoquad/otgw/pkg/opentherm"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the gateway link by requesting the firmware version",
	Long: `Send PR=A (firmware version report) and wait for the gateway's answer.

This command tests bidirectional communication with the gateway. Each request
is timed from the moment the command is written until the "PR: A=..." answer
arrives.

This is useful for verifying:
  - The transport connects (TCP, serial or WebSocket)
  - HTTP Basic authentication works
  - The gateway firmware is processing commands

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

// chanCallback exposes connector events as channels for one-shot commands.
type chanCallback struct {
	connected chan struct{}
	messages  chan *opentherm.Message
	responses chan gateway.Response
}

func newChanCallback() *chanCallback {
	return &chanCallback{
		connected: make(chan struct{}, 1),
		messages:  make(chan *opentherm.Message, 16),
		responses: make(chan gateway.Response, 16),
	}
}

func (c *chanCallback) Connecting()   {}
func (c *chanCallback) Disconnected() {}

func (c *chanCallback) Connected() {
	c.connected <- struct{}{}
}

func (c *chanCallback) ReceiveMessage(msg *opentherm.Message) {
	select {
	case c.messages <- msg:
	default:
	}
}

func (c *chanCallback) CommandResponse(resp gateway.Response) {
	select {
	case c.responses <- resp:
	default:
	}
}

// startOneShot connects with no init commands and waits for the connection.
func startOneShot(ctx context.Context, cb *chanCallback) (*gateway.SocketConnector, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	dialer, err := openDialer(cfg)
	if err != nil {
		return nil, "", err
	}

	opts := append(connectorOptions(cfg, logger.GetLogger()), gateway.WithInitCommands())
	conn, err := gateway.NewSocketConnector(dialer, cb, opts...)
	if err != nil {
		return nil, "", err
	}
	conn.Start(ctx)

	select {
	case <-cb.connected:
		return conn, dialer.String(), nil
	case <-conn.Done():
		return nil, "", fmt.Errorf("failed to connect to %s: %w", dialer, conn.Err())
	}
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cb := newChanCallback()
	conn, connInfo, err := startOneShot(ctx, cb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("otgw - Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	pr, err := opentherm.NewGatewayCommand(opentherm.CmdPrintReport, "A")
	if err != nil {
		return err
	}

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		if err := conn.SendCommand(pr); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		timeout := time.After(time.Duration(pingTimeout) * time.Second)
	wait:
		for {
			select {
			case resp := <-cb.responses:
				if resp.Code != pr.Code() {
					continue
				}
				if !resp.OK() {
					fmt.Printf("FAILED: %v\n", resp.Err)
					failCount++
				} else {
					fmt.Printf("%s, rtt=%v\n", resp.Value, time.Since(startTime).Round(time.Millisecond))
					successCount++
				}
				break wait

			case <-conn.Done():
				fmt.Printf("READ FAILED: %v\n", conn.Err())
				failCount++
				break wait

			case <-timeout:
				fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
				failCount++
				break wait
			}
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	conn.Stop()
	<-conn.Done()

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
