// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/otgw/internal/httpapi"
	"github.com/Thermoquad/otgw/internal/logger"
	"github.com/Thermoquad/otgw/internal/metrics"
	"github.com/Thermoquad/otgw/internal/mqtt"
	"github.com/Thermoquad/otgw/internal/state"
	"github.com/Thermoquad/otgw/pkg/gateway"
	"github.com/Thermoquad/otgw/pkg/opentherm"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run the gateway bridge service",
	Long: `Keep a connection to the gateway open and publish every reading.

The bridge reconnects with exponential backoff when the gateway goes away.
Depending on configuration it:
  - publishes changed values to MQTT and accepts commands on
    <prefix>/command/<CODE>
  - serves /api/state, /api/command, /healthz and /metrics over HTTP

Enable the outputs in the config file (mqtt.enabled, http.enabled) or with
OTGW_MQTT_ENABLED=true and OTGW_HTTP_ENABLED=true.`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
}

// bridgeCallback fans gateway events out to the store and the outputs.
type bridgeCallback struct {
	log     logger.Logger
	store   *state.Store
	metrics *metrics.Metrics
	pub     *mqtt.Publisher
}

func (b *bridgeCallback) Connecting() {}

func (b *bridgeCallback) Connected() {
	b.metrics.SetConnected(true)
}

func (b *bridgeCallback) Disconnected() {
	b.metrics.SetConnected(false)
}

func (b *bridgeCallback) ReceiveMessage(msg *opentherm.Message) {
	changes := b.store.Apply(msg)
	if len(changes) == 0 {
		return
	}
	b.metrics.ObserveChanges(changes)
	if b.pub != nil {
		b.pub.PublishChanges(changes)
	}
}

func (b *bridgeCallback) CommandResponse(resp gateway.Response) {
	if resp.OK() {
		b.log.Info("command response", "code", resp.Code, "value", resp.Value)
	} else {
		b.log.Warn("command failed", "code", resp.Code, "error", resp.Err)
	}
	if b.pub != nil {
		b.pub.PublishResponse(resp)
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dialer, err := openDialer(cfg)
	if err != nil {
		return err
	}

	log := logger.GetLogger()
	stats := opentherm.NewStatistics()
	cb := &bridgeCallback{
		log:     log.With("component", "bridge"),
		store:   state.New(),
		metrics: metrics.New(stats),
	}

	opts := append(connectorOptions(cfg, log), gateway.WithStatistics(stats))
	sup, err := gateway.NewSupervisor(dialer, cb, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.MQTT.Enabled {
		cb.pub = mqtt.NewPublisher(cfg.MQTT, sup, log)
		if err := cb.pub.Connect(ctx); err != nil {
			return err
		}
		defer cb.pub.Disconnect()
	}

	if cfg.HTTP.Enabled {
		srv := httpapi.New(sup, cb.store, stats, cb.metrics.Handler(), log)
		g.Go(func() error {
			return srv.ListenAndServe(ctx, cfg.HTTP.Listen)
		})
	}

	g.Go(func() error {
		return sup.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		sup.Stop()
		return nil
	})

	log.Info("bridge started", "gateway", dialer.String(), "mqtt", cfg.MQTT.Enabled, "http", cfg.HTTP.Enabled)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("bridge stopped", "stats", stats.Snapshot().String())
	return nil
}
