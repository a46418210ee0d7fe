package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/rlust/rvcctl/core/metrics"
	"github.com/rlust/rvcctl/infra/logger"
)

// InfluxSink writes controller events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordConfirmation writes the run summary as one measurement point.
func (s *InfluxSink) RecordConfirmation(ev coremetrics.ConfirmationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("rvc_confirmation").
		AddTag("instance", strconv.Itoa(ev.Instance)).
		AddTag("action", ev.Action).
		AddTag("applied", strconv.FormatBool(ev.Applied)).
		AddTag("nudged", strconv.FormatBool(ev.Nudged)).
		AddTag("transport_down", strconv.FormatBool(ev.TransportDown)).
		AddField("attempts", ev.Attempts).
		AddField("duration_s", ev.Duration.Seconds()).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordZoneStatus writes one status observation point.
func (s *InfluxSink) RecordZoneStatus(ev coremetrics.ZoneStatusEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("rvc_zone_status").
		AddTag("instance", strconv.Itoa(ev.Instance)).
		AddTag("mode", ev.Mode).
		AddTag("fan_mode", ev.FanMode).
		AddField("fan_speed", ev.FanSpeed).
		AddField("setpoint_heat_f", ev.HeatF).
		AddField("setpoint_cool_f", ev.CoolF).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }
