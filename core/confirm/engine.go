package confirm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rlust/rvcctl/core/logger"
	"github.com/rlust/rvcctl/core/metrics"
	"github.com/rlust/rvcctl/core/rvc"
	"github.com/rlust/rvcctl/core/transport"
)

// Nudger asks a human for the external interaction that opens the gated
// controller's acceptance window. Decoupled from any particular I/O device;
// the CLI supplies a press-Enter prompt.
type Nudger interface {
	Nudge(ctx context.Context, message string) error
}

// NudgeFunc adapts a function to the Nudger interface.
type NudgeFunc func(ctx context.Context, message string) error

func (f NudgeFunc) Nudge(ctx context.Context, message string) error { return f(ctx, message) }

// Prober records broad topic traffic for offline analysis after a confirmed
// failure. Implemented by core/probe.
type Prober interface {
	Capture(ctx context.Context, topics []string, window time.Duration, outPath string) (int, error)
}

// outageAbortThreshold is the number of consecutive fully-failed transport
// cycles after which a run aborts instead of exhausting its retry budget.
const outageAbortThreshold = 2

// Engine drives the confirmation state machine: burst-publish, correlate,
// retry, optional human nudge, optional diagnostic probe.
//
// An Engine serializes its own bursts with a quiet period, but does not
// arbitrate between concurrent runs targeting the same instance; callers
// follow the one-zone-at-a-time rule.
type Engine struct {
	burst  *Burst
	corr   *Correlator
	nudger Nudger
	prober Prober
	sink   metrics.Sink
	log    logger.Logger

	mu           sync.Mutex
	lastBurstEnd time.Time
}

// NewEngine creates an Engine. nudger and prober may be nil, disabling the
// corresponding fallbacks; a nil sink discards metrics.
func NewEngine(tr transport.Transport, nudger Nudger, prober Prober, sink metrics.Sink, log logger.Logger) (*Engine, error) {
	if tr == nil || log == nil {
		return nil, fmt.Errorf("confirm: nil parameter provided to NewEngine")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Engine{
		burst:  NewBurst(tr, log),
		corr:   NewCorrelator(tr, log),
		nudger: nudger,
		prober: prober,
		sink:   sink,
		log:    log,
	}, nil
}

// Confirm executes one confirmation run for the command and returns its
// terminal result. "Not confirmed" is a valid result, not an error; the
// error return is reserved for usage faults, cancellation and sustained
// transport outage.
func (e *Engine) Confirm(ctx context.Context, cmd rvc.LogicalCommand, p Params) (Result, error) {
	p.SetDefaults()
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if len(p.ProbeTopics) == 0 {
		p.ProbeTopics = DefaultProbeTopics(cmd.Instance)
	}

	res := Result{Started: time.Now(), FinalState: StateIdle}
	frame := rvc.Encode(cmd)
	e.log.Infof("confirming %s on instance %d (retries=%d)", cmd.Action(), cmd.Instance, p.MaxRetries)

	before, err := e.corr.Snapshot(ctx, cmd.Instance, p.ConfirmWindow)
	if err != nil {
		if ctx.Err() != nil {
			return e.finalize(ctx, cmd, res, StateFailed), ctx.Err()
		}
		e.log.Warnf("before-snapshot read failed: %v", err)
	}

	outageStreak := 0
	runAttempt := func(idx int) (bool, error) {
		res.FinalState = StateAttempting
		if err := e.waitQuiet(ctx); err != nil {
			return false, err
		}
		att := Attempt{Index: idx, Before: before}
		sent, berr := e.burst.Run(ctx, frame, p.BurstDuration, p.BurstInterval)
		e.markBurstEnd()
		att.Sent = sent
		if berr != nil {
			if ctx.Err() != nil {
				res.Attempts = append(res.Attempts, att)
				return false, ctx.Err()
			}
			att.PublishError = berr.Error()
			outageStreak++
		} else {
			outageStreak = 0
		}

		after, serr := e.corr.Snapshot(ctx, cmd.Instance, p.ConfirmWindow)
		if serr != nil {
			if ctx.Err() != nil {
				res.Attempts = append(res.Attempts, att)
				return false, ctx.Err()
			}
			e.log.Warnf("after-snapshot read failed: %v", serr)
			outageStreak++
		}
		att.After = after
		att.Changed = HasChanged(cmd, before, after)
		res.Attempts = append(res.Attempts, att)

		if outageStreak >= outageAbortThreshold {
			res.TransportDown = true
			return false, fmt.Errorf("aborting after %d consecutive transport failures: %w",
				outageStreak, transport.ErrConnect)
		}
		return att.Changed, nil
	}

	for i := 1; i <= p.MaxRetries; i++ {
		changed, err := runAttempt(i)
		if err != nil {
			return e.finalize(ctx, cmd, res, StateFailed), err
		}
		if changed {
			return e.finalizeApplied(ctx, cmd, res), nil
		}
		if i < p.MaxRetries {
			delay := p.RetryDelay
			if delay < MinQuietPeriod {
				delay = MinQuietPeriod
			}
			if err := sleepCtx(ctx, delay); err != nil {
				return e.finalize(ctx, cmd, res, StateFailed), err
			}
		}
	}
	res.FinalState = StateExhausted

	if p.NudgeEnabled && e.nudger != nil {
		res.FinalState = StateNudgeWait
		e.log.Infof("not confirmed after %d attempts; requesting manual nudge", p.MaxRetries)
		if err := e.nudger.Nudge(ctx, "touch any control on the thermostat panel, then continue"); err != nil {
			if ctx.Err() != nil {
				return e.finalize(ctx, cmd, res, StateFailed), ctx.Err()
			}
			e.log.Warnf("nudge unavailable: %v", err)
		} else {
			res.Nudged = true
			changed, err := runAttempt(len(res.Attempts) + 1)
			if err != nil {
				return e.finalize(ctx, cmd, res, StateFailed), err
			}
			if changed {
				return e.finalizeApplied(ctx, cmd, res), nil
			}
		}
	}

	if p.ProbeOnFail && e.prober != nil {
		res.FinalState = StateProbing
		e.log.Infof("capturing %s of traffic to %s for offline analysis", p.ProbeWindow, p.ProbeOutPath)
		n, err := e.prober.Capture(ctx, p.ProbeTopics, p.ProbeWindow, p.ProbeOutPath)
		if err != nil {
			e.log.Errorf("probe capture failed: %v", err)
		} else {
			res.ProbePath = p.ProbeOutPath
			res.ProbeRecords = n
		}
	}
	return e.finalize(ctx, cmd, res, StateFailed), nil
}

func (e *Engine) finalizeApplied(ctx context.Context, cmd rvc.LogicalCommand, res Result) Result {
	res.Applied = true
	return e.finalize(ctx, cmd, res, StateConfirmed)
}

func (e *Engine) finalize(_ context.Context, cmd rvc.LogicalCommand, res Result, st State) Result {
	res.FinalState = st
	res.Finished = time.Now()
	ev := metrics.ConfirmationEvent{
		Instance:      cmd.Instance,
		Action:        cmd.Action(),
		Applied:       res.Applied,
		Attempts:      len(res.Attempts),
		Nudged:        res.Nudged,
		TransportDown: res.TransportDown,
		Duration:      res.Finished.Sub(res.Started),
		Time:          res.Finished,
	}
	if err := e.sink.RecordConfirmation(ev); err != nil {
		e.log.Errorf("metrics sink: %v", err)
	}
	e.log.Infof("run finished: state=%s applied=%t attempts=%d nudged=%t",
		st, res.Applied, len(res.Attempts), res.Nudged)
	return res
}

func (e *Engine) markBurstEnd() {
	e.mu.Lock()
	e.lastBurstEnd = time.Now()
	e.mu.Unlock()
}

// waitQuiet delays the next burst until MinQuietPeriod has passed since the
// previous one, so back-to-back runs on one engine never overlap the
// controller's reads.
func (e *Engine) waitQuiet(ctx context.Context) error {
	e.mu.Lock()
	last := e.lastBurstEnd
	e.mu.Unlock()
	if last.IsZero() {
		return nil
	}
	if remain := MinQuietPeriod - time.Since(last); remain > 0 {
		return sleepCtx(ctx, remain)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
