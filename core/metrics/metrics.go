package metrics

import "time"

// ConfirmationEvent summarizes one finished confirmation run.
type ConfirmationEvent struct {
	Instance int
	Action   string
	Applied  bool
	Attempts int
	Nudged   bool
	// TransportDown marks runs aborted by a sustained broker outage.
	TransportDown bool
	Duration      time.Duration
	Time          time.Time
}

// ZoneStatusEvent is one decoded status observation for a zone.
type ZoneStatusEvent struct {
	Instance int
	Mode     string
	FanMode  string
	FanSpeed float64
	HeatF    float64
	CoolF    float64
	Time     time.Time
}

// Sink receives controller events. Implementations must be safe for
// concurrent use.
type Sink interface {
	RecordConfirmation(ev ConfirmationEvent) error
	RecordZoneStatus(ev ZoneStatusEvent) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecordConfirmation(ConfirmationEvent) error { return nil }
func (NopSink) RecordZoneStatus(ZoneStatusEvent) error     { return nil }

// Config selects which sinks are active.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    int    `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.PrometheusPort == 0 {
		c.PrometheusPort = 9105
	}
}
