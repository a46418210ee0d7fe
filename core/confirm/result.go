package confirm

import (
	"time"

	"github.com/rlust/rvcctl/core/rvc"
)

// State names a position in the confirmation state machine.
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateConfirmed
	StateNudgeWait
	StateExhausted
	StateProbing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateConfirmed:
		return "confirmed"
	case StateNudgeWait:
		return "nudge_wait"
	case StateExhausted:
		return "exhausted"
	case StateProbing:
		return "probing"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Attempt records one burst+confirm cycle.
type Attempt struct {
	Index   int                `json:"index"`
	Before  rvc.StatusSnapshot `json:"-"`
	After   rvc.StatusSnapshot `json:"-"`
	Changed bool               `json:"changed"`
	// Sent counts successful publishes in the attempt's burst.
	Sent int `json:"sent"`
	// PublishError carries the burst-level failure, if the whole burst
	// was lost.
	PublishError string `json:"publish_error,omitempty"`
}

// Result is the terminal value of a confirmation run. Never mutated after
// Confirm returns.
type Result struct {
	Applied  bool      `json:"applied"`
	Attempts []Attempt `json:"attempts"`
	Nudged   bool      `json:"nudged"`
	// ProbePath is set when a diagnostic capture was written.
	ProbePath    string `json:"probe_path,omitempty"`
	ProbeRecords int    `json:"probe_records,omitempty"`
	// TransportDown distinguishes "broker unreachable" from "controller
	// gated".
	TransportDown bool      `json:"transport_down"`
	FinalState    State     `json:"-"`
	Started       time.Time `json:"started"`
	Finished      time.Time `json:"finished"`
}
