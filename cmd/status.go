package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rlust/rvcctl/core/confirm"
	"github.com/rlust/rvcctl/core/rvc"
	"github.com/rlust/rvcctl/infra/logger"
)

var (
	statusInstance int
	statusWait     float64
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current status snapshot for a zone",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusInstance, "instance", 0, "zone instance (0-6)")
	statusCmd.Flags().Float64Var(&statusWait, "wait", 6, "seconds to wait for a status message")
	rootCmd.AddCommand(statusCmd)
}

// snapshotView is the stable JSON shape printed for humans and scripts.
type snapshotView struct {
	Mode     string   `json:"mode,omitempty"`
	FanMode  string   `json:"fan_mode,omitempty"`
	FanSpeed *float64 `json:"fan_speed,omitempty"`
	CoolF    *float64 `json:"cool_f,omitempty"`
	HeatF    *float64 `json:"heat_f,omitempty"`
	Data     string   `json:"data,omitempty"`
}

func viewOf(s rvc.StatusSnapshot) snapshotView {
	return snapshotView{
		Mode:     s.Mode,
		FanMode:  s.FanMode,
		FanSpeed: s.FanSpeed,
		CoolF:    s.CoolF,
		HeatF:    s.HeatF,
		Data:     s.DataHex,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := validInstance(statusInstance); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tr, err := newTransport(cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	corr := confirm.NewCorrelator(tr, logger.New("status"))
	snap, err := corr.Snapshot(ctx, statusInstance, time.Duration(statusWait*float64(time.Second)))
	if err != nil {
		return err
	}
	out := struct {
		OK       bool         `json:"ok"`
		Instance int          `json:"instance"`
		Latest   snapshotView `json:"latest"`
	}{OK: snap.Valid, Instance: statusInstance, Latest: viewOf(snap)}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if !snap.Valid {
		return fmt.Errorf("instance %d: %w", statusInstance, errNoStatus)
	}
	return nil
}
