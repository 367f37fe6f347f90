// Package weather queries an external weather provider and condenses
// the reading into the go/no-go traffic verdict: freezing temperatures
// close the city to traffic.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kmoreau/citycab/infra/logger"
)

// Traffic verdicts.
const (
	StatusOK = "OK"
	StatusKO = "KO"
)

// Config holds the provider endpoint and credentials.
type Config struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	City     string `json:"city"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "https://api.openweathermap.org/data/2.5/weather"
	}
	if c.City == "" {
		c.City = "Madrid"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("weather api_key is required")
	}
	return nil
}

// Client queries the provider.
type Client struct {
	cfg  Config
	http *http.Client
	log  logger.Logger
}

// NewClient builds a weather client.
func NewClient(cfg Config, log logger.Logger) *Client {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 5 * time.Second},
		log:  log,
	}
}

type reading struct {
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
}

// TrafficStatus fetches the current temperature for city (the configured
// default when empty) and maps it to a verdict: below zero is KO.
func (c *Client) TrafficStatus(ctx context.Context, city string) (string, error) {
	if city == "" {
		city = c.cfg.City
	}
	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", c.cfg.APIKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("weather: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather: query provider: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather: provider returned %s", resp.Status)
	}
	var r reading
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("weather: decode response: %w", err)
	}

	status := StatusOK
	if r.Main.Temp < 0 {
		status = StatusKO
	}
	c.log.Debugf("weather for %s: %.1f°C, traffic %s", city, r.Main.Temp, status)
	return status, nil
}
