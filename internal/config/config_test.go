// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/otgw/pkg/transport"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "otgw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	require := require.New(t)
	path := writeConfig(t, `
gateway:
  host: otgw.local:25238
  readTimeout: 500ms
  commandTimeout: 30s
log:
  level: debug
  format: json
mqtt:
  enabled: true
  broker: tcp://broker:1883
  prefix: home/otgw
  password: hunter2
`)

	cfg, err := NewLoader().Load(path)
	require.NoError(err)

	require.Equal(transport.TypeTCP, cfg.Gateway.Transport)
	require.Equal("otgw.local:25238", cfg.Gateway.Host)
	require.Equal(500*time.Millisecond, cfg.Gateway.ReadTimeout)
	require.Equal(5*time.Second, cfg.Gateway.ResponseTimeout)
	require.Equal(30*time.Second, cfg.Gateway.CommandTimeout)
	require.Equal("home/otgw", cfg.MQTT.Prefix)
	require.Equal(1, cfg.MQTT.QoS)
	require.True(cfg.MQTT.Retain)
	require.Equal(":8080", cfg.HTTP.Listen)

	tc := cfg.Transport()
	require.Equal(transport.TypeTCP, tc.Type)
	require.Equal("otgw.local:25238", tc.Address)
	require.Equal(10*time.Second, tc.DialTimeout)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("OTGW_GATEWAY_PORT", "/dev/ttyUSB1")
	t.Setenv("OTGW_GATEWAY_BAUD", "19200")

	cfg, err := NewLoader().Load("")
	require.NoError(t, err)
	require.Equal(t, transport.TypeSerial, cfg.Gateway.Transport)
	require.Equal(t, "/dev/ttyUSB1", cfg.Gateway.Port)
	require.Equal(t, 19200, cfg.Gateway.Baud)
}

func TestInferTransport(t *testing.T) {
	tests := []struct {
		g    GatewayConfig
		want string
	}{
		{GatewayConfig{Host: "h:1"}, transport.TypeTCP},
		{GatewayConfig{Port: "/dev/ttyS0"}, transport.TypeSerial},
		{GatewayConfig{URL: "ws://x"}, transport.TypeWebSocket},
		{GatewayConfig{File: "a.cbor", Host: "h:1"}, transport.TypeReplay},
		{GatewayConfig{Transport: "TCP", Host: "h:1"}, transport.TypeTCP},
		{GatewayConfig{}, ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.g.inferTransport())
	}
}

func TestValidate(t *testing.T) {
	cfg, err := NewLoader().Load(writeConfig(t, `
gateway:
  url: http://otgw.local/ws
  responseTimeout: 20s
log:
  level: loud
  format: xml
mqtt:
  enabled: true
  qos: 3
  prefix: "otgw/#"
`))
	require.Nil(t, cfg)
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{"gateway.url", "commandTimeout", "log.level", "log.format", "mqtt.qos", "mqtt.prefix"} {
		require.Contains(t, msg, want)
	}

	_, err = NewLoader().Load("")
	require.ErrorContains(t, err, "one of host, port, url or file")
}

func TestYAMLRedactsSecrets(t *testing.T) {
	require := require.New(t)
	cfg, err := NewLoader().Load(writeConfig(t, `
gateway:
  url: wss://otgw.local/ws
  username: admin
  password: secret
`))
	require.NoError(err)

	out, err := cfg.YAML()
	require.NoError(err)
	require.NotContains(string(out), "secret")
	require.Contains(string(out), redacted)

	var doc map[string]map[string]any
	require.NoError(yaml.Unmarshal(out, &doc))
	require.Equal("1s", doc["gateway"]["readTimeout"])
	require.Equal("websocket", doc["gateway"]["transport"])
}
