// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqtt bridges gateway readings and commands to an MQTT broker.
package mqtt

import (
	"context"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Thermoquad/otgw/internal/config"
	"github.com/Thermoquad/otgw/internal/logger"
	"github.com/Thermoquad/otgw/internal/state"
	"github.com/Thermoquad/otgw/pkg/gateway"
	"github.com/Thermoquad/otgw/pkg/opentherm"
)

const (
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // milliseconds
	retryDelay        = 5 * time.Second
)

// CommandSender accepts commands received from the broker.
type CommandSender interface {
	SendCommand(cmd *opentherm.GatewayCommand) error
}

// Publisher publishes readings and forwards commands from the broker to the gateway.
type Publisher struct {
	client paho.Client
	cfg    config.MQTTConfig
	topics Topics
	sender CommandSender
	log    logger.Logger
}

// NewPublisher creates a publisher for cfg. Commands arriving on the command
// topics are handed to sender. Nothing is sent until Connect.
func NewPublisher(cfg config.MQTTConfig, sender CommandSender, log logger.Logger) *Publisher {
	p := &Publisher{
		cfg:    cfg,
		topics: NewTopics(cfg.Prefix),
		sender: sender,
		log:    log.With("component", "mqtt"),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(ClientID(cfg.ClientID))
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetWill(p.topics.Status(), StatusOffline, byte(cfg.QoS), true)
	// handleCommand writes to the gateway and publishes; with unordered
	// callbacks paho runs each one on its own goroutine instead of the router.
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.log.Warn("mqtt connection lost", "error", err)
	})

	p.client = paho.NewClient(opts)
	return p
}

// ClientID returns base with a random suffix so several bridges can share a broker.
func ClientID(base string) string {
	if base == "" {
		base = "otgw"
	}
	return base + "-" + uuid.NewString()[:8]
}

// onConnect runs after every (re)connect: subscriptions do not survive a
// clean session, so they are renewed here.
func (p *Publisher) onConnect(c paho.Client) {
	p.log.Info("connected to mqtt broker", "broker", p.cfg.Broker)
	p.publish(p.topics.Status(), true, StatusOnline)

	token := c.Subscribe(p.topics.CommandFilter(), byte(p.cfg.QoS), p.handleCommand)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		p.log.Error("failed to subscribe to command topics", "error", token.Error())
	}
}

// Connect retries until the broker accepts the connection or ctx is done.
func (p *Publisher) Connect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		token := p.client.Connect()
		token.Wait()
		if token.Error() == nil {
			return nil
		}
		p.log.Warn("mqtt connect failed", "attempt", attempt, "error", token.Error())

		select {
		case <-ctx.Done():
			return fmt.Errorf("mqtt connect cancelled: %w", ctx.Err())
		case <-time.After(retryDelay):
		}
	}
}

// Disconnect marks the bridge offline and closes the connection.
func (p *Publisher) Disconnect() {
	if !p.client.IsConnected() {
		return
	}
	p.publish(p.topics.Status(), true, StatusOffline)
	p.client.Disconnect(disconnectQuiesce)
}

// PublishChanges publishes the values that changed.
func (p *Publisher) PublishChanges(changes []state.Change) {
	for _, c := range changes {
		p.PublishEntry(c.Entry)
	}
}

// PublishEntry publishes one reading on its value topic.
func (p *Publisher) PublishEntry(e state.Entry) {
	p.publish(p.topics.Value(e.Value.Item.Channel), p.cfg.Retain, e.Value.String())
}

// PublishResponse publishes a gateway answer on the response topic of its command.
func (p *Publisher) PublishResponse(resp gateway.Response) {
	code := resp.Code
	if code == "" && resp.Command != nil {
		code = resp.Command.Code()
	}
	if code == "" {
		return
	}
	p.publish(p.topics.Response(code), false, responsePayload(resp))
}

func responsePayload(resp gateway.Response) string {
	if resp.Err != nil {
		return "error: " + resp.Err.Error()
	}
	return resp.Value
}

// handleCommand is a paho message handler. It may block on the gateway
// write and on publishing, which unordered callbacks allow.
func (p *Publisher) handleCommand(_ paho.Client, msg paho.Message) {
	code, ok := p.topics.ParseCommand(msg.Topic())
	if !ok {
		return
	}
	value := strings.TrimSpace(string(msg.Payload()))

	cmd, err := opentherm.ParseGatewayCommand(code, value)
	if err != nil {
		p.log.Warn("rejected mqtt command", "topic", msg.Topic(), "value", value, "error", err)
		p.publish(p.topics.Response(strings.ToUpper(code)), false, "error: "+err.Error())
		return
	}

	p.log.Info("mqtt command", "command", cmd.String())
	if err := p.sender.SendCommand(cmd); err != nil {
		p.log.Error("failed to send command", "command", cmd.String(), "error", err)
		p.publish(p.topics.Response(cmd.Code()), false, "error: "+err.Error())
	}
}

func (p *Publisher) publish(topic string, retained bool, payload string) {
	token := p.client.Publish(topic, byte(p.cfg.QoS), retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.log.Warn("mqtt publish timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		p.log.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}
