package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/rlust/rvcctl/core/logger"
	"github.com/rlust/rvcctl/core/transport"
)

// Record is one captured message: wall-clock arrival, topic and payload.
// Payloads that are not valid JSON are kept verbatim under "raw" so nothing
// observed is lost.
type Record struct {
	TS      float64         `json:"ts"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// TopicStats summarizes the message cadence observed on one topic. Cadence
// shifts around manual panel interactions are the main signal when reverse
// engineering the controller's acceptance gate.
type TopicStats struct {
	Topic         string  `json:"topic"`
	Messages      int     `json:"messages"`
	MeanGapSec    float64 `json:"mean_gap_sec"`
	StdDevGapSec  float64 `json:"stddev_gap_sec"`
	FirstToLastTS float64 `json:"first_to_last_sec"`
}

// Capture subscribes to a broad set of topic patterns and appends every
// received message to a JSONL file. Purely observational; it never
// publishes.
type Capture struct {
	tr  transport.Transport
	log logger.Logger
}

// NewCapture creates a Capture over the given transport.
func NewCapture(tr transport.Transport, log logger.Logger) *Capture {
	return &Capture{tr: tr, log: log}
}

// Capture records traffic on the given patterns for the window and returns
// the number of records written. Subscriptions run concurrently; the file
// writer is serialized so simultaneous deliveries never interleave lines.
// All subscriptions are released before returning, on every exit path.
func (c *Capture) Capture(ctx context.Context, patterns []string, window time.Duration, outPath string) (int, error) {
	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("capture dir: %w", err)
		}
	}
	f, err := os.OpenFile(outPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("capture file: %w", err)
	}
	defer func() { _ = f.Close() }()

	runID := uuid.NewString()[:8]
	c.log.Infof("capture %s: %d patterns for %s -> %s", runID, len(patterns), window, outPath)

	var (
		mu       sync.Mutex
		count    int
		arrivals = make(map[string][]float64)
		enc      = json.NewEncoder(f)
	)
	handler := func(msg transport.Message) {
		ts := float64(msg.ReceivedAt.UnixNano()) / 1e9
		payload := json.RawMessage(msg.Payload)
		if !json.Valid(msg.Payload) {
			raw, _ := json.Marshal(map[string]string{"raw": string(msg.Payload)})
			payload = raw
		}
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(Record{TS: ts, Topic: msg.Topic, Payload: payload}); err != nil {
			c.log.Errorf("capture write: %v", err)
			return
		}
		count++
		arrivals[msg.Topic] = append(arrivals[msg.Topic], ts)
	}

	var unsubs []func() error
	defer func() {
		for _, u := range unsubs {
			if err := u(); err != nil {
				c.log.Errorf("capture unsubscribe: %v", err)
			}
		}
	}()
	for _, p := range patterns {
		unsub, err := c.tr.Subscribe(p, handler)
		if err != nil {
			return 0, fmt.Errorf("capture subscribe %s: %w", p, err)
		}
		unsubs = append(unsubs, unsub)
	}

	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		// Partial captures still count; the file is already on disk.
	case <-timer.C:
	}

	mu.Lock()
	defer mu.Unlock()
	for _, s := range Summarize(arrivals) {
		c.log.Debugw("capture topic summary", map[string]any{
			"topic": s.Topic, "messages": s.Messages,
			"mean_gap_sec": s.MeanGapSec, "stddev_gap_sec": s.StdDevGapSec,
		})
	}
	c.log.Infof("capture %s: saved=%s messages=%d", runID, outPath, count)
	return count, ctx.Err()
}

// Summarize computes per-topic cadence statistics from arrival timestamps.
func Summarize(arrivals map[string][]float64) []TopicStats {
	var out []TopicStats
	for topic, ts := range arrivals {
		s := TopicStats{Topic: topic, Messages: len(ts)}
		if n := len(ts); n > 1 {
			sort.Float64s(ts)
			gaps := make([]float64, 0, n-1)
			for i := 1; i < n; i++ {
				gaps = append(gaps, ts[i]-ts[i-1])
			}
			s.MeanGapSec = stat.Mean(gaps, nil)
			if len(gaps) > 1 {
				s.StdDevGapSec = stat.StdDev(gaps, nil)
			}
			s.FirstToLastTS = ts[n-1] - ts[0]
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}
