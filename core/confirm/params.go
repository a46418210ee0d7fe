package confirm

import (
	"fmt"
	"time"

	"github.com/rlust/rvcctl/core/rvc"
)

// MinQuietPeriod is the minimum spacing between command bursts. The gated
// controller reads the bus in windows; overlapping bursts were observed to
// reduce the acceptance rate.
const MinQuietPeriod = 2 * time.Second

// Params tunes one confirmation run. The defaults mirror the values proven
// against the physical controller.
type Params struct {
	// MaxRetries is the number of burst+confirm cycles before giving up.
	MaxRetries int `json:"max_retries"`
	// RetryDelay is the pause between cycles. Values below MinQuietPeriod
	// are raised to it.
	RetryDelay time.Duration `json:"retry_delay"`
	// ConfirmWindow bounds each status read, before and after a burst.
	ConfirmWindow time.Duration `json:"confirm_window"`
	// BurstDuration and BurstInterval shape the publish burst.
	BurstDuration time.Duration `json:"burst_duration"`
	BurstInterval time.Duration `json:"burst_interval"`
	// NudgeEnabled allows one human-assisted retry after the budget is
	// exhausted.
	NudgeEnabled bool `json:"nudge_enabled"`
	// ProbeOnFail triggers a broad diagnostic capture after a confirmed
	// failure.
	ProbeOnFail bool `json:"probe_on_fail"`
	// ProbeWindow is the capture duration; ProbeTopics the patterns to
	// record (defaults to the thermostat command/status wildcards).
	ProbeWindow  time.Duration `json:"probe_window"`
	ProbeTopics  []string      `json:"probe_topics"`
	ProbeOutPath string        `json:"probe_out_path"`
}

// SetDefaults applies the empirically proven defaults.
func (p *Params) SetDefaults() {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 3
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = 2 * time.Second
	}
	if p.ConfirmWindow <= 0 {
		p.ConfirmWindow = 6 * time.Second
	}
	if p.BurstDuration < 0 {
		p.BurstDuration = 0
	}
	if p.BurstDuration == 0 && p.BurstInterval == 0 {
		p.BurstDuration = 6 * time.Second
	}
	if p.BurstInterval <= 0 {
		p.BurstInterval = 350 * time.Millisecond
	}
	if p.ProbeWindow <= 0 {
		p.ProbeWindow = 20 * time.Second
	}
	if p.ProbeOutPath == "" {
		p.ProbeOutPath = "captures/thermostat-capture.jsonl"
	}
}

// Validate checks that the run terminates in bounded time.
func (p Params) Validate() error {
	if p.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}
	if p.ConfirmWindow <= 0 {
		return fmt.Errorf("confirm_window must be positive")
	}
	if p.BurstInterval <= 0 {
		return fmt.Errorf("burst_interval must be positive")
	}
	return nil
}

// DefaultProbeTopics returns the capture patterns for a zone: its own
// command and status traffic plus the neighbouring HVAC message types that
// the controller emits while its acceptance window is open.
func DefaultProbeTopics(instance int) []string {
	return []string{
		rvc.CommandTopic(instance),
		rvc.StatusTopic(instance),
		"RVC/THERMOSTAT_STATUS_1/+",
		"RVC/AIR_CONDITIONER_COMMAND/+",
		"RVC/AIR_CONDITIONER_STATUS/+",
		"RVC/FURNACE_STATUS/+",
	}
}
