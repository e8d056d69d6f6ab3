// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/otgw/internal/config"
	"github.com/Thermoquad/otgw/internal/logger"
)

var (
	cfgFile string
	loader  = config.NewLoader()
)

var rootCmd = &cobra.Command{
	Use:   "otgw",
	Short: "OpenTherm Gateway monitor and bridge",
	Long: `otgw - A CLI tool for monitoring and controlling an OpenTherm Gateway.

Decodes the frames exchanged between thermostat and boiler, sends gateway
commands and bridges readings to MQTT, Prometheus and an HTTP API.

Connection modes:
  TCP:       --host otgw.local:25238
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]
  Replay:    --file capture.cbor [--realtime]

Every flag can also be set in the config file or as an OTGW_ environment
variable, e.g. OTGW_GATEWAY_HOST. For WebSocket authentication the password
is read from OTGW_PASSWORD, or prompted interactively if not set. The
--password flag is intentionally not provided to avoid leaking credentials
in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Config file (YAML)")

	flags.String("host", "", "TCP serial bridge address (host:port)")
	flags.StringP("port", "p", "", "Serial port device")
	flags.IntP("baud", "b", 9600, "Baud rate (serial only)")
	flags.StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.String("username", "", "Username for HTTP Basic auth")
	flags.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
	flags.String("file", "", "Replay a capture file instead of connecting")
	flags.Bool("realtime", false, "Replay with the recorded timing")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console, json)")

	v := loader.Viper()
	for key, flag := range map[string]string{
		"gateway.host":        "host",
		"gateway.port":        "port",
		"gateway.baud":        "baud",
		"gateway.url":         "url",
		"gateway.username":    "username",
		"gateway.noSSLVerify": "no-ssl-verify",
		"gateway.file":        "file",
		"gateway.realtime":    "realtime",
		"log.level":           "log-level",
		"log.format":          "log-format",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// loadConfig reads the configuration and installs the configured logger.
func loadConfig() (*config.Config, error) {
	cfg, err := loader.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger.SetDefault(logger.New(cfg.LoggerOptions()))
	return cfg, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
