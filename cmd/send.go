package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rlust/rvcctl/core/confirm"
	"github.com/rlust/rvcctl/core/probe"
	"github.com/rlust/rvcctl/core/rvc"
	"github.com/rlust/rvcctl/infra/logger"
	"github.com/rlust/rvcctl/infra/metrics"
)

var (
	sendInstance      int
	sendAction        string
	sendDelta         int
	sendDryRun        bool
	sendRetries       int
	sendRetryDelay    float64
	sendConfirmSec    float64
	sendBurstSec      float64
	sendBurstMS       int
	sendNudge         bool
	sendProbeOnFail   bool
	sendProbeSec      int
	sendProbeOut      string
)

var sendCmd = &cobra.Command{
	Use:   "send-known",
	Short: "Send a known-good command signature and confirm it applied",
	Long: `Runs one confirmation cycle: burst-publish the command, read status
telemetry, retry until the change is observed or the budget is exhausted.
Exit code 0 means applied and confirmed (or dry run), 1 means published but
not confirmed.`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().IntVar(&sendInstance, "instance", 0, "zone instance (0-6)")
	sendCmd.Flags().StringVar(&sendAction, "action", "", "named action: temp_up, temp_down, fan_high, fan_low, fan_auto")
	sendCmd.Flags().IntVar(&sendDelta, "delta", 0, "signed setpoint step in deg F (alternative to --action)")
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "print the topic and envelope without publishing")
	sendCmd.Flags().IntVar(&sendRetries, "retry", 3, "confirmation attempts before giving up")
	sendCmd.Flags().Float64Var(&sendRetryDelay, "retry-delay", 2, "seconds between attempts")
	sendCmd.Flags().Float64Var(&sendConfirmSec, "confirm-seconds", 6, "status read window per attempt")
	sendCmd.Flags().Float64Var(&sendBurstSec, "burst-seconds", 6, "burst duration")
	sendCmd.Flags().IntVar(&sendBurstMS, "burst-interval", 350, "milliseconds between burst publishes")
	sendCmd.Flags().BoolVar(&sendNudge, "nudge", false, "prompt for a manual panel touch before the final retry")
	sendCmd.Flags().BoolVar(&sendProbeOnFail, "probe-on-fail", false, "capture broad traffic after a confirmed failure")
	sendCmd.Flags().IntVar(&sendProbeSec, "probe-seconds", 20, "capture window for --probe-on-fail")
	sendCmd.Flags().StringVar(&sendProbeOut, "probe-out", "", "capture output path (default captures/probe-<ts>.jsonl)")
	rootCmd.AddCommand(sendCmd)
}

func buildCommand() (rvc.LogicalCommand, error) {
	if err := validInstance(sendInstance); err != nil {
		return rvc.LogicalCommand{}, err
	}
	if sendAction != "" && sendDelta != 0 {
		return rvc.LogicalCommand{}, fmt.Errorf("--action and --delta are mutually exclusive")
	}
	switch sendAction {
	case "temp_up":
		return rvc.LogicalCommand{Instance: sendInstance, Kind: rvc.SetpointStep, Delta: 1}, nil
	case "temp_down":
		return rvc.LogicalCommand{Instance: sendInstance, Kind: rvc.SetpointStep, Delta: -1}, nil
	case "fan_high":
		return rvc.LogicalCommand{Instance: sendInstance, Kind: rvc.FanProfile, Profile: rvc.ProfileHigh}, nil
	case "fan_low":
		return rvc.LogicalCommand{Instance: sendInstance, Kind: rvc.FanProfile, Profile: rvc.ProfileLow}, nil
	case "fan_auto":
		return rvc.LogicalCommand{Instance: sendInstance, Kind: rvc.FanProfile, Profile: rvc.ProfileAuto}, nil
	case "":
		if sendDelta == 0 {
			return rvc.LogicalCommand{}, fmt.Errorf("one of --action or --delta is required")
		}
		// Only single-step signatures were ever captured from the physical
		// controller; larger deltas run one confirmed step.
		step := 1
		if sendDelta < 0 {
			step = -1
		}
		return rvc.LogicalCommand{Instance: sendInstance, Kind: rvc.SetpointStep, Delta: step}, nil
	default:
		return rvc.LogicalCommand{}, fmt.Errorf("unknown action %q", sendAction)
	}
}

// attemptView flattens one attempt for the printed result.
type attemptView struct {
	Index        int          `json:"index"`
	Changed      bool         `json:"changed"`
	Sent         int          `json:"sent"`
	Before       snapshotView `json:"before"`
	After        snapshotView `json:"after"`
	PublishError string       `json:"publish_error,omitempty"`
}

func runSend(cmd *cobra.Command, args []string) error {
	lc, err := buildCommand()
	if err != nil {
		return err
	}
	log := logger.New("send-known")
	frame := rvc.Encode(lc)

	if sendDryRun {
		out := struct {
			Topic   string          `json:"topic"`
			Payload json.RawMessage `json:"payload"`
		}{Topic: frame.Topic, Payload: frame.Envelope(time.Now())}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
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

	sink, err := metrics.FromConfig(cfg.Metrics)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	var nudger confirm.Nudger
	if sendNudge {
		nudger = stdinNudger(cmd.InOrStdin(), cmd.ErrOrStderr())
	}
	prober := probe.NewCapture(tr, logger.New("probe"))
	engine, err := confirm.NewEngine(tr, nudger, prober, sink, log)
	if err != nil {
		return err
	}

	params := cfg.Confirm.Params()
	params.MaxRetries = sendRetries
	params.RetryDelay = time.Duration(sendRetryDelay * float64(time.Second))
	params.ConfirmWindow = time.Duration(sendConfirmSec * float64(time.Second))
	params.BurstDuration = time.Duration(sendBurstSec * float64(time.Second))
	params.BurstInterval = time.Duration(sendBurstMS) * time.Millisecond
	params.NudgeEnabled = sendNudge
	params.ProbeOnFail = sendProbeOnFail
	params.ProbeWindow = time.Duration(sendProbeSec) * time.Second
	if sendProbeOut != "" {
		params.ProbeOutPath = sendProbeOut
	} else if sendProbeOnFail {
		params.ProbeOutPath = fmt.Sprintf("captures/probe-%d.jsonl", time.Now().Unix())
	}

	res, err := engine.Confirm(ctx, lc, params)
	printResult(cmd.OutOrStdout(), lc, res)
	if err != nil {
		return err
	}
	if !res.Applied {
		return fmt.Errorf("%s on instance %d: %w", lc.Action(), lc.Instance, ErrNotConfirmed)
	}
	return nil
}

func printResult(w io.Writer, lc rvc.LogicalCommand, res confirm.Result) {
	attempts := make([]attemptView, 0, len(res.Attempts))
	for _, a := range res.Attempts {
		attempts = append(attempts, attemptView{
			Index:        a.Index,
			Changed:      a.Changed,
			Sent:         a.Sent,
			Before:       viewOf(a.Before),
			After:        viewOf(a.After),
			PublishError: a.PublishError,
		})
	}
	out := struct {
		OK            bool          `json:"ok"`
		Action        string        `json:"action"`
		Instance      int           `json:"instance"`
		Attempts      []attemptView `json:"attempts"`
		Nudged        bool          `json:"nudged"`
		TransportDown bool          `json:"transport_down"`
		ProbePath     string        `json:"probe_path,omitempty"`
		ProbeRecords  int           `json:"probe_records,omitempty"`
	}{
		OK:            res.Applied,
		Action:        lc.Action(),
		Instance:      lc.Instance,
		Attempts:      attempts,
		Nudged:        res.Nudged,
		TransportDown: res.TransportDown,
		ProbePath:     res.ProbePath,
		ProbeRecords:  res.ProbeRecords,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

// stdinNudger prompts on the terminal and waits for Enter, honoring
// cancellation.
func stdinNudger(in io.Reader, out io.Writer) confirm.NudgeFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, message string) error {
		fmt.Fprintf(out, "\n%s\npress Enter to retry: ", message)
		done := make(chan error, 1)
		go func() {
			_, err := reader.ReadString('\n')
			done <- err
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			return err
		}
	}
}
