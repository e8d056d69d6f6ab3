// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads otgw settings from a YAML file, OTGW_ environment
// variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/otgw/internal/logger"
	"github.com/Thermoquad/otgw/pkg/transport"
)

// EnvPrefix is prepended to environment overrides, e.g. OTGW_MQTT_BROKER.
const EnvPrefix = "OTGW"

// Config is the full otgw configuration.
type Config struct {
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	MQTT    MQTTConfig    `mapstructure:"mqtt" yaml:"mqtt"`
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http"`
}

// GatewayConfig selects the gateway transport and connector timings.
type GatewayConfig struct {
	// Transport is tcp, serial, websocket or replay. Empty infers it from
	// whichever of host, port, url or file is set.
	Transport   string `mapstructure:"transport" yaml:"transport"`
	Host        string `mapstructure:"host" yaml:"host"`
	Port        string `mapstructure:"port" yaml:"port"`
	Baud        int    `mapstructure:"baud" yaml:"baud"`
	URL         string `mapstructure:"url" yaml:"url"`
	Username    string `mapstructure:"username" yaml:"username"`
	Password    string `mapstructure:"password" yaml:"password"`
	NoSSLVerify bool   `mapstructure:"noSSLVerify" yaml:"noSSLVerify"`
	File        string `mapstructure:"file" yaml:"file"`
	Realtime    bool   `mapstructure:"realtime" yaml:"realtime"`

	ReadTimeout     time.Duration `mapstructure:"readTimeout" yaml:"-"`
	ConnectTimeout  time.Duration `mapstructure:"connectTimeout" yaml:"-"`
	ResponseTimeout time.Duration `mapstructure:"responseTimeout" yaml:"-"`
	CommandTimeout  time.Duration `mapstructure:"commandTimeout" yaml:"-"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays" yaml:"maxAgeDays"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// MQTTConfig configures the MQTT bridge.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker"`
	ClientID string `mapstructure:"clientID" yaml:"clientID"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	QoS      int    `mapstructure:"qos" yaml:"qos"`
	Retain   bool   `mapstructure:"retain" yaml:"retain"`
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// Loader wraps a viper instance preloaded with defaults and env bindings.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with defaults applied.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return &Loader{v: v}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.transport", "")
	v.SetDefault("gateway.host", "")
	v.SetDefault("gateway.port", "")
	v.SetDefault("gateway.baud", transport.DefaultBaudRate)
	v.SetDefault("gateway.url", "")
	v.SetDefault("gateway.username", "")
	v.SetDefault("gateway.password", "")
	v.SetDefault("gateway.noSSLVerify", false)
	v.SetDefault("gateway.file", "")
	v.SetDefault("gateway.realtime", false)
	v.SetDefault("gateway.readTimeout", "1s")
	v.SetDefault("gateway.connectTimeout", "10s")
	v.SetDefault("gateway.responseTimeout", "5s")
	v.SetDefault("gateway.commandTimeout", "15s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logger.FormatConsole)
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxSizeMB", 10)
	v.SetDefault("log.maxBackups", 3)
	v.SetDefault("log.maxAgeDays", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientID", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.prefix", "otgw")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retain", true)

	v.SetDefault("http.enabled", false)
	v.SetDefault("http.listen", ":8080")
}

// Viper exposes the underlying instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads path (if not empty), applies overrides and validates the result.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Gateway.Transport = cfg.Gateway.inferTransport()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (g GatewayConfig) inferTransport() string {
	if g.Transport != "" {
		return strings.ToLower(g.Transport)
	}
	switch {
	case g.File != "":
		return transport.TypeReplay
	case g.URL != "":
		return transport.TypeWebSocket
	case g.Port != "":
		return transport.TypeSerial
	case g.Host != "":
		return transport.TypeTCP
	}
	return ""
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	g := c.Gateway
	switch g.Transport {
	case "":
		errs = append(errs, errors.New("gateway: one of host, port, url or file must be set"))
	case transport.TypeTCP:
		if g.Host == "" {
			errs = append(errs, errors.New("gateway.host is required for tcp"))
		}
	case transport.TypeSerial:
		if g.Port == "" {
			errs = append(errs, errors.New("gateway.port is required for serial"))
		}
		if g.Baud <= 0 {
			errs = append(errs, fmt.Errorf("gateway.baud must be positive, got %d", g.Baud))
		}
	case transport.TypeWebSocket:
		if !strings.HasPrefix(g.URL, "ws://") && !strings.HasPrefix(g.URL, "wss://") {
			errs = append(errs, fmt.Errorf("gateway.url must start with ws:// or wss://, got %q", g.URL))
		}
	case transport.TypeReplay:
		if g.File == "" {
			errs = append(errs, errors.New("gateway.file is required for replay"))
		}
	default:
		errs = append(errs, fmt.Errorf("gateway.transport %q is not one of tcp, serial, websocket, replay", g.Transport))
	}
	if g.ReadTimeout <= 0 || g.ConnectTimeout <= 0 || g.ResponseTimeout <= 0 || g.CommandTimeout <= 0 {
		errs = append(errs, errors.New("gateway timeouts must be positive"))
	}
	if g.CommandTimeout < g.ResponseTimeout {
		errs = append(errs, errors.New("gateway.commandTimeout must not be shorter than gateway.responseTimeout"))
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != logger.FormatConsole && c.Log.Format != logger.FormatJSON {
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
		}
		if c.MQTT.Prefix == "" || strings.ContainsAny(c.MQTT.Prefix, "+#") {
			errs = append(errs, fmt.Errorf("mqtt.prefix %q is not a valid topic prefix", c.MQTT.Prefix))
		}
	}
	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		errs = append(errs, errors.New("http.listen is required when http is enabled"))
	}

	return errors.Join(errs...)
}

// Transport returns the transport configuration for the gateway.
func (c *Config) Transport() transport.Config {
	g := c.Gateway
	return transport.Config{
		Type:          g.Transport,
		Address:       g.Host,
		Port:          g.Port,
		BaudRate:      g.Baud,
		URL:           g.URL,
		Username:      g.Username,
		Password:      g.Password,
		SkipSSLVerify: g.NoSSLVerify,
		File:          g.File,
		Realtime:      g.Realtime,
		DialTimeout:   g.ConnectTimeout,
	}
}

// LoggerOptions converts the log section into logger options.
func (c *Config) LoggerOptions() logger.Options {
	level, _ := logger.ParseLevel(c.Log.Level)
	return logger.Options{
		Level:      level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// MarshalYAML renders durations as strings.
func (g GatewayConfig) MarshalYAML() (any, error) {
	type plain GatewayConfig
	out := struct {
		plain           `yaml:",inline"`
		ReadTimeout     string `yaml:"readTimeout"`
		ConnectTimeout  string `yaml:"connectTimeout"`
		ResponseTimeout string `yaml:"responseTimeout"`
		CommandTimeout  string `yaml:"commandTimeout"`
	}{
		plain:           plain(g),
		ReadTimeout:     g.ReadTimeout.String(),
		ConnectTimeout:  g.ConnectTimeout.String(),
		ResponseTimeout: g.ResponseTimeout.String(),
		CommandTimeout:  g.CommandTimeout.String(),
	}
	return out, nil
}

const redacted = "********"

// Redacted returns a copy with secrets masked.
func (c Config) Redacted() Config {
	if c.Gateway.Password != "" {
		c.Gateway.Password = redacted
	}
	if c.MQTT.Password != "" {
		c.MQTT.Password = redacted
	}
	return c
}

// YAML renders the redacted configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
