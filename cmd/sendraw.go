package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rlust/rvcctl/core/rvc"
	"github.com/rlust/rvcctl/infra/logger"
)

var (
	rawInstance int
	rawData     string
	rawDryRun   bool
)

var sendRawCmd = &cobra.Command{
	Use:   "send-raw",
	Short: "Publish a raw THERMOSTAT_COMMAND_1 data field once, unconfirmed",
	Long: `Escape hatch for probing new command signatures. No confirmation loop
runs: the raw frame is published once and the exit code only reflects the
broker hand-off.`,
	RunE: runSendRaw,
}

func init() {
	sendRawCmd.Flags().IntVar(&rawInstance, "instance", 0, "zone instance (0-6)")
	sendRawCmd.Flags().StringVar(&rawData, "data", "", "16-hex-char data field, e.g. 00FFFFFFFFF9FFFF")
	sendRawCmd.Flags().BoolVar(&rawDryRun, "dry-run", false, "print the topic and envelope without publishing")
	rootCmd.AddCommand(sendRawCmd)
}

func runSendRaw(cmd *cobra.Command, args []string) error {
	if err := validInstance(rawInstance); err != nil {
		return err
	}
	data := strings.ToUpper(rawData)
	if len(data) != 16 {
		return fmt.Errorf("--data must be 16 hex chars, got %d", len(data))
	}
	if _, err := hex.DecodeString(data); err != nil {
		return fmt.Errorf("--data is not valid hex: %v", err)
	}

	frame := rvc.RawFrame(rawInstance, data)
	out := struct {
		Topic   string          `json:"topic"`
		Payload json.RawMessage `json:"payload"`
	}{Topic: frame.Topic, Payload: frame.Envelope(time.Now())}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if rawDryRun {
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tr, err := newTransport(cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	if err := tr.Publish(frame.Topic, frame.Envelope(time.Now())); err != nil {
		return err
	}
	logger.New("send-raw").Infof("published raw frame %s to %s", data, frame.Topic)
	return nil
}
