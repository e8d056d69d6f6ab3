// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/otgw/internal/config"
	"github.com/Thermoquad/otgw/internal/logger"
	"github.com/Thermoquad/otgw/pkg/capture"
	"github.com/Thermoquad/otgw/pkg/gateway"
	"github.com/Thermoquad/otgw/pkg/transport"
)

// PasswordEnv holds the WebSocket password.
const PasswordEnv = "OTGW_PASSWORD"

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal, read a plain line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// openDialer builds the gateway dialer, prompting for a WebSocket password
// when a username is configured without one.
func openDialer(cfg *config.Config) (transport.Dialer, error) {
	tc := cfg.Transport()
	if tc.Type == transport.TypeWebSocket && tc.Username != "" && tc.Password == "" {
		password, err := GetPassword()
		if err != nil {
			return nil, err
		}
		tc.Password = password
	}
	return transport.Open(tc)
}

// connectorOptions maps the configured timings onto connector options.
func connectorOptions(cfg *config.Config, log logger.Logger) []gateway.Option {
	g := cfg.Gateway
	return []gateway.Option{
		gateway.WithLogger(log),
		gateway.WithReadTimeout(g.ReadTimeout),
		gateway.WithConnectTimeout(g.ConnectTimeout),
		gateway.WithResponseTimeout(g.ResponseTimeout),
		gateway.WithCommandTimeout(g.CommandTimeout),
	}
}

// recordTo opens a capture file and returns an option feeding it every line.
func recordTo(path string, dialer transport.Dialer) (gateway.Option, *capture.Recorder, error) {
	rec, err := capture.Create(path, dialer.String())
	if err != nil {
		return nil, nil, err
	}
	observer := func(dir capture.Direction, line string) {
		if err := rec.Record(dir, line); err != nil {
			logger.Warn("capture write failed", "error", err)
		}
	}
	return gateway.WithLineObserver(observer), rec, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
