// Package metrics defines the sink contract dispatch measurements are
// recorded through. Implementations live in infra/metrics.
package metrics

import (
	"fmt"
	"time"
)

// AssignmentRecord captures one assignment attempt.
type AssignmentRecord struct {
	CustomerID    string
	TaxiID        string
	DestinationID string
	Ok            bool
	Reason        string
	Time          time.Time
}

// StatusRecord captures one accepted taxi status update.
type StatusRecord struct {
	TaxiID string
	X      int
	Y      int
	State  string
	Time   time.Time
}

// Sink receives dispatch measurements. Implementations must tolerate
// concurrent calls.
type Sink interface {
	RecordAssignment(rec AssignmentRecord) error
	RecordStatusUpdate(rec StatusRecord) error
}

// NopSink discards every record.
type NopSink struct{}

func (NopSink) RecordAssignment(AssignmentRecord) error { return nil }
func (NopSink) RecordStatusUpdate(StatusRecord) error   { return nil }

// Config selects and configures the metric sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`

	InfluxEnabled bool   `json:"influx_enabled"`
	InfluxURL     string `json:"influx_url"`
	InfluxToken   string `json:"influx_token"`
	InfluxOrg     string `json:"influx_org"`
	InfluxBucket  string `json:"influx_bucket"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.PrometheusPort == "" {
		c.PrometheusPort = "2112"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.InfluxEnabled && (c.InfluxURL == "" || c.InfluxBucket == "" || c.InfluxOrg == "") {
		return fmt.Errorf("influx sink requires influx_url, influx_org and influx_bucket")
	}
	return nil
}
