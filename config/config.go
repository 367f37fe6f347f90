// Package config loads the application configuration from a JSON or
// YAML file with optional environment overrides (CC_ prefix, __ as the
// nesting separator).
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kmoreau/citycab/connectors/weather"
	"github.com/kmoreau/citycab/core/metrics"
	"github.com/kmoreau/citycab/core/model"
	"github.com/kmoreau/citycab/infra/mqtt"
)

// Config aggregates every component section.
type Config struct {
	MQTT      mqtt.Config      `json:"mqtt"`
	Session   SessionConfig    `json:"session"`
	Dispatch  DispatchConfig   `json:"dispatch"`
	Metrics   metrics.Config   `json:"metrics"`
	Grid      GridConfig       `json:"grid"`
	Registry  RegistryConfig   `json:"registry"`
	Weather   weather.Config   `json:"weather"`
	Simulator SimulatorConfig  `json:"simulator"`
	Locations []model.Location `json:"locations"`
}

// SessionConfig configures the coordinator's handshake socket.
type SessionConfig struct {
	ListenAddr string `json:"listen_addr"`
	Secret     string `json:"secret"`
}

func (c *SessionConfig) SetDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9090"
	}
	if c.Secret == "" {
		c.Secret = "token123"
	}
}

// DispatchConfig configures the assignment algorithm.
type DispatchConfig struct {
	Selector string `json:"selector"`
}

// GridConfig configures the spectator snapshot broadcast.
type GridConfig struct {
	IntervalMS int `json:"interval_ms"`
}

func (c *GridConfig) SetDefaults() {
	if c.IntervalMS == 0 {
		c.IntervalMS = 1000
	}
}

// RegistryConfig configures the registration HTTP API.
type RegistryConfig struct {
	ListenAddr string `json:"listen_addr"`
}

func (c *RegistryConfig) SetDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
}

// SimulatorConfig configures the taxi and customer processes.
type SimulatorConfig struct {
	CoordinatorAddr string   `json:"coordinator_addr"`
	TaxiID          string   `json:"taxi_id"`
	SensorAddr      string   `json:"sensor_addr"`
	CadenceMS       int      `json:"cadence_ms"`
	CustomerID      string   `json:"customer_id"`
	Destinations    []string `json:"destinations"`
	PauseMS         int      `json:"pause_ms"`
}

func (c *SimulatorConfig) SetDefaults() {
	if c.CoordinatorAddr == "" {
		c.CoordinatorAddr = "localhost:9090"
	}
	if c.SensorAddr == "" {
		c.SensorAddr = ":9191"
	}
	if c.CadenceMS == 0 {
		c.CadenceMS = 1000
	}
	if c.PauseMS == 0 {
		c.PauseMS = 4000
	}
}

// Load reads, overrides and validates the configuration at path.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("CC_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "cc_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every section's defaults.
func (c *Config) ApplyDefaults() {
	c.MQTT.SetDefaults()
	c.Session.SetDefaults()
	c.Metrics.SetDefaults()
	c.Grid.SetDefaults()
	c.Registry.SetDefaults()
	c.Weather.SetDefaults()
	c.Simulator.SetDefaults()
}

// Validate checks every section carrying mandatory fields.
func (c *Config) Validate() error {
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return nil
}
