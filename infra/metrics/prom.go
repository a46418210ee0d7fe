package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/rlust/rvcctl/core/metrics"
)

// PromSink records controller events in Prometheus metrics.
type PromSink struct {
	confirmations *prometheus.CounterVec
	attempts      *prometheus.HistogramVec
	duration      *prometheus.HistogramVec
	setpointHeat  *prometheus.GaugeVec
	setpointCool  *prometheus.GaugeVec
	fanSpeed      *prometheus.GaugeVec
}

// NewPromSink registers controller metrics on the default Prometheus
// registerer. The metrics server is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rvc_confirmations_total",
			Help: "Total confirmation runs by outcome",
		}, []string{"instance", "action", "applied", "nudged"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rvc_confirmation_attempts",
			Help:    "Attempts used per confirmation run",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		}, []string{"instance", "action"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rvc_confirmation_duration_seconds",
			Help:    "Wall time of a confirmation run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}, []string{"instance", "action", "applied"}),
		setpointHeat: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rvc_zone_setpoint_heat_fahrenheit",
			Help: "Last observed heat setpoint per zone",
		}, []string{"instance"}),
		setpointCool: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rvc_zone_setpoint_cool_fahrenheit",
			Help: "Last observed cool setpoint per zone",
		}, []string{"instance"}),
		fanSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rvc_zone_fan_speed_percent",
			Help: "Last observed fan speed per zone",
		}, []string{"instance"}),
	}

	collectors := []prometheus.Collector{
		s.confirmations, s.attempts, s.duration,
		s.setpointHeat, s.setpointCool, s.fanSpeed,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return s, nil
}

// RecordConfirmation increments the run counters and observes histograms.
func (s *PromSink) RecordConfirmation(ev coremetrics.ConfirmationEvent) error {
	inst := strconv.Itoa(ev.Instance)
	s.confirmations.WithLabelValues(inst, ev.Action,
		strconv.FormatBool(ev.Applied), strconv.FormatBool(ev.Nudged)).Inc()
	s.attempts.WithLabelValues(inst, ev.Action).Observe(float64(ev.Attempts))
	s.duration.WithLabelValues(inst, ev.Action, strconv.FormatBool(ev.Applied)).
		Observe(ev.Duration.Seconds())
	return nil
}

// RecordZoneStatus updates the per-zone gauges.
func (s *PromSink) RecordZoneStatus(ev coremetrics.ZoneStatusEvent) error {
	inst := strconv.Itoa(ev.Instance)
	s.setpointHeat.WithLabelValues(inst).Set(ev.HeatF)
	s.setpointCool.WithLabelValues(inst).Set(ev.CoolF)
	s.fanSpeed.WithLabelValues(inst).Set(ev.FanSpeed)
	return nil
}

// StartPromServer serves the /metrics endpoint on the given port. It blocks.
func StartPromServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
