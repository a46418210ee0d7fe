package confirm

import (
	"context"
	"fmt"
	"time"

	"github.com/rlust/rvcctl/core/logger"
	"github.com/rlust/rvcctl/core/rvc"
	"github.com/rlust/rvcctl/core/transport"
)

// Burst repeatedly publishes a command frame on a fixed cadence. Redundancy
// substitutes for acknowledgement: the transport gives no delivery
// guarantee and the receiving controller drops frames under its own gating,
// so a burst of identical timestamp-refreshed envelopes is the reliability
// mechanism.
type Burst struct {
	tr  transport.Transport
	log logger.Logger
}

// NewBurst creates a Burst over the given transport.
func NewBurst(tr transport.Transport, log logger.Logger) *Burst {
	return &Burst{tr: tr, log: log}
}

// Run publishes the frame once immediately, then once per interval until
// duration elapses or the context is canceled. Individual publish failures
// are swallowed and logged; only a burst in which every publish failed is
// reported, once, after the burst completes.
func (b *Burst) Run(ctx context.Context, frame rvc.EncodedFrame, duration, interval time.Duration) (int, error) {
	var sent, failed int
	var lastErr error

	publish := func() {
		if err := b.tr.Publish(frame.Topic, frame.Envelope(time.Now())); err != nil {
			failed++
			lastErr = err
			b.log.Warnf("burst tick dropped on %s: %v", frame.Topic, err)
			return
		}
		sent++
	}

	publish()
	deadline := time.Now().Add(duration)
	if duration > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-ticker.C:
				publish()
			}
		}
	}

	b.log.Debugw("burst complete", map[string]any{
		"topic": frame.Topic, "sent": sent, "failed": failed,
	})
	if sent == 0 {
		return 0, fmt.Errorf("burst: every publish failed: %w", lastErr)
	}
	return sent, nil
}
