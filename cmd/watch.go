package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	coremetrics "github.com/rlust/rvcctl/core/metrics"
	"github.com/rlust/rvcctl/core/rvc"
	"github.com/rlust/rvcctl/core/transport"
	"github.com/rlust/rvcctl/core/zonestatus"
	"github.com/rlust/rvcctl/infra/logger"
	"github.com/rlust/rvcctl/infra/metrics"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously track zone status and export metrics",
	Long: `Subscribes to all THERMOSTAT_STATUS_1 instances, keeps the last known
snapshot per zone and feeds the configured metrics sinks until interrupted.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("watch")

	sink, err := metrics.FromConfig(cfg.Metrics)
	if err != nil {
		return err
	}
	if cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(cfg.Metrics.PrometheusPort); err != nil {
				log.Errorf("prom server: %v", err)
			}
		}()
	}

	tr, err := newTransport(cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	store := zonestatus.NewMemoryStore()
	unsub, err := tr.Subscribe("RVC/THERMOSTAT_STATUS_1/+", func(msg transport.Message) {
		snap := rvc.DecodeStatus(msg.Payload, msg.ReceivedAt)
		if !snap.Valid {
			log.Warnf("unparseable status on %s", msg.Topic)
			return
		}
		store.Set(snap)
		ev := coremetrics.ZoneStatusEvent{
			Instance: snap.Instance,
			Mode:     snap.Mode,
			FanMode:  snap.FanMode,
			Time:     snap.CapturedAt,
		}
		if snap.FanSpeed != nil {
			ev.FanSpeed = *snap.FanSpeed
		}
		if snap.HeatF != nil {
			ev.HeatF = *snap.HeatF
		}
		if snap.CoolF != nil {
			ev.CoolF = *snap.CoolF
		}
		if err := sink.RecordZoneStatus(ev); err != nil {
			log.Errorf("metrics sink: %v", err)
		}
		log.Debugw("zone status", map[string]any{
			"instance": snap.Instance, "mode": snap.Mode,
			"fan_mode": snap.FanMode, "heat_f": snap.HeatF, "cool_f": snap.CoolF,
		})
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := unsub(); err != nil {
			log.Errorf("unsubscribe: %v", err)
		}
	}()

	log.Infof("watching zone status (instances %d-%d)", rvc.MinInstance, rvc.MaxInstance)
	<-ctx.Done()
	return nil
}
