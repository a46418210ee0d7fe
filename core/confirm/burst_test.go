package confirm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rlust/rvcctl/core/confirm"
	"github.com/rlust/rvcctl/core/rvc"
	"github.com/rlust/rvcctl/core/transport"
	"github.com/rlust/rvcctl/infra/logger"
	"github.com/rlust/rvcctl/infra/mqtt"
)

func testFrame() rvc.EncodedFrame {
	return rvc.Encode(rvc.LogicalCommand{Instance: 2, Kind: rvc.SetpointStep, Delta: 1})
}

func TestBurstSingleShot(t *testing.T) {
	tr := mqtt.NewMockTransport()
	b := confirm.NewBurst(tr, logger.NopLogger{})

	sent, err := b.Run(context.Background(), testFrame(), 0, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sent != 1 || tr.PublishCount() != 1 {
		t.Fatalf("expected exactly one publish, sent=%d published=%d", sent, tr.PublishCount())
	}
	if got := tr.Published[0].Topic; got != "RVC/THERMOSTAT_COMMAND_1/2" {
		t.Fatalf("unexpected topic %q", got)
	}
}

func TestBurstCadence(t *testing.T) {
	tr := mqtt.NewMockTransport()
	b := confirm.NewBurst(tr, logger.NopLogger{})

	sent, err := b.Run(context.Background(), testFrame(), 120*time.Millisecond, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sent < 3 {
		t.Fatalf("expected several publishes over the window, got %d", sent)
	}
}

func TestBurstSwallowsPartialFailures(t *testing.T) {
	tr := mqtt.NewMockTransport()
	// First publish succeeds, every later tick fails.
	tr.OnPublish = func(string, []byte) { tr.PublishErr = errors.New("broker gone") }
	b := confirm.NewBurst(tr, logger.NopLogger{})

	sent, err := b.Run(context.Background(), testFrame(), 80*time.Millisecond, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("partial failure must not surface: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
}

func TestBurstTotalOutage(t *testing.T) {
	tr := mqtt.NewMockTransport()
	tr.PublishErr = transport.ErrPublish
	b := confirm.NewBurst(tr, logger.NopLogger{})

	sent, err := b.Run(context.Background(), testFrame(), 60*time.Millisecond, 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected an error when every publish fails")
	}
	if !errors.Is(err, transport.ErrPublish) {
		t.Fatalf("error does not wrap the publish failure: %v", err)
	}
	if sent != 0 {
		t.Fatalf("sent = %d, want 0", sent)
	}
}

func TestBurstHonorsCancel(t *testing.T) {
	tr := mqtt.NewMockTransport()
	b := confirm.NewBurst(tr, logger.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Run(ctx, testFrame(), time.Second, 20*time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
