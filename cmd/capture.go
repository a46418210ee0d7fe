package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rlust/rvcctl/core/confirm"
	"github.com/rlust/rvcctl/core/probe"
	"github.com/rlust/rvcctl/infra/logger"
)

var (
	captureInstance int
	captureSeconds  int
	captureOut      string
	captureTopics   []string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record command and status traffic to a JSONL file",
	RunE:  runCapture,
}

func init() {
	captureCmd.Flags().IntVar(&captureInstance, "instance", 0, "zone instance (0-6)")
	captureCmd.Flags().IntVar(&captureSeconds, "seconds", 20, "capture window")
	captureCmd.Flags().StringVar(&captureOut, "out", "captures/thermostat-capture.jsonl", "output path")
	captureCmd.Flags().StringSliceVar(&captureTopics, "topic", nil, "extra topic patterns to record (repeatable)")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	if err := validInstance(captureInstance); err != nil {
		return err
	}
	if captureSeconds <= 0 {
		return fmt.Errorf("--seconds must be positive")
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

	topics := confirm.DefaultProbeTopics(captureInstance)
	topics = append(topics, captureTopics...)

	rec := probe.NewCapture(tr, logger.New("capture"))
	n, err := rec.Capture(ctx, topics, time.Duration(captureSeconds)*time.Second, captureOut)
	if err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved=%s messages=%d\n", captureOut, n)
	return nil
}
