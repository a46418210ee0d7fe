package confirm

import (
	"context"
	"errors"
	"time"

	"github.com/rlust/rvcctl/core/logger"
	"github.com/rlust/rvcctl/core/rvc"
	"github.com/rlust/rvcctl/core/transport"
)

// Correlator reads status telemetry and decides whether a command took
// effect. It compares only the fields relevant to the command's action and
// fails toward "not confirmed": an invalid snapshot never produces a false
// confirmation.
type Correlator struct {
	tr  transport.Transport
	log logger.Logger
}

// NewCorrelator creates a Correlator over the given transport.
func NewCorrelator(tr transport.Transport, log logger.Logger) *Correlator {
	return &Correlator{tr: tr, log: log}
}

// Snapshot reads one status message for the instance with a bounded wait.
// An empty read window yields an invalid snapshot, not an error: absence of
// telemetry is evidence of non-application, not a fault. Transport faults
// are returned so the engine can tell the two apart.
func (c *Correlator) Snapshot(ctx context.Context, instance int, wait time.Duration) (rvc.StatusSnapshot, error) {
	topic := rvc.StatusTopic(instance)
	msg, err := c.tr.SubscribeOnce(ctx, topic, wait)
	if err != nil {
		if errors.Is(err, transport.ErrNoMessage) {
			c.log.Debugf("no status on %s within %s", topic, wait)
			return rvc.StatusSnapshot{Instance: instance, CapturedAt: time.Now()}, nil
		}
		return rvc.StatusSnapshot{Instance: instance, CapturedAt: time.Now()}, err
	}
	snap := rvc.DecodeStatus(msg.Payload, msg.ReceivedAt)
	if !snap.Valid {
		c.log.Warnf("unparseable status on %s", topic)
	}
	return snap, nil
}

// HasChanged reports whether after differs from before in the direction the
// command requested. False whenever either snapshot is invalid.
func HasChanged(cmd rvc.LogicalCommand, before, after rvc.StatusSnapshot) bool {
	if !before.Valid || !after.Valid {
		return false
	}
	switch cmd.Kind {
	case rvc.SetpointStep:
		if cmd.Delta >= 0 {
			return greater(after.CoolF, before.CoolF) || greater(after.HeatF, before.HeatF)
		}
		return greater(before.CoolF, after.CoolF) || greater(before.HeatF, after.HeatF)
	case rvc.FanProfile:
		if before.FanMode == after.FanMode && floatPtrEqual(before.FanSpeed, after.FanSpeed) {
			return false
		}
		switch cmd.Profile {
		case rvc.ProfileHigh:
			return after.FanMode == "on" && speedIs(after.FanSpeed, 100)
		case rvc.ProfileLow:
			return after.FanMode == "on" && speedIs(after.FanSpeed, 50)
		case rvc.ProfileAuto:
			return after.FanMode == "auto"
		}
	}
	return false
}

func greater(a, b *float64) bool {
	return a != nil && b != nil && *a > *b
}

func speedIs(p *float64, v float64) bool {
	return p != nil && *p == v
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
