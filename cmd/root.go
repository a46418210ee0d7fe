package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rlust/rvcctl/config"
	"github.com/rlust/rvcctl/core/transport"
	"github.com/rlust/rvcctl/infra/mqtt"
)

var cfgPath string

// ErrNotConfirmed marks a run that published but never observed the
// expected status change. Mapped to exit code 1.
var ErrNotConfirmed = errors.New("command published but not confirmed")

// errNoStatus marks an empty status read window. Also exit code 1.
var errNoStatus = errors.New("no status received")

var rootCmd = &cobra.Command{
	Use:           "rvcctl",
	Short:         "RV-C HVAC command and confirmation controller",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI and returns the process exit code: 0 when the
// command applied (or a dry run completed), 1 when it published but was not
// confirmed or the broker stayed unreachable, 2 for usage errors.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	switch {
	case errors.Is(err, ErrNotConfirmed), errors.Is(err, errNoStatus):
		return 1
	case errors.Is(err, transport.ErrConnect), errors.Is(err, transport.ErrPublish):
		return 1
	default:
		return 2
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newTransport(cfg *config.Config) (*mqtt.PahoTransport, error) {
	tr, err := mqtt.NewPahoTransport(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt transport: %w", err)
	}
	return tr, nil
}

func validInstance(instance int) error {
	if instance < 0 || instance > 6 {
		return fmt.Errorf("instance %d out of range 0-6", instance)
	}
	return nil
}
