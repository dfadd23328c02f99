package publisher

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"
)

func TestRandomTickRange(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	now := time.UnixMilli(1700000000123)
	for i := 0; i < 1000; i++ {
		tick := RandomTick("EURUSD", r, now)
		if tick.Bid < 1.05 || tick.Bid > 1.06 {
			t.Fatalf("bid out of range: %v", tick.Bid)
		}
		if tick.Ask < 1.0501 || tick.Ask > 1.0601 {
			t.Fatalf("ask out of range: %v", tick.Ask)
		}
		if round5(tick.Bid) != tick.Bid || round5(tick.Ask) != tick.Ask {
			t.Fatalf("prices not rounded to 5 places: %v %v", tick.Bid, tick.Ask)
		}
		if tick.TimestampMillis != 1700000000123 || tick.Symbol != "EURUSD" {
			t.Fatalf("unexpected tick %+v", tick)
		}
	}
}

func TestGeneratorPublishesEverySymbol(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticks, _ := b.Subscribe(ctx)

	g := NewGenerator(b, []string{"EURUSD", "GBPUSD"}, 10*time.Millisecond, nil)
	errCh := make(chan error, 1)
	go func() { errCh <- g.Run(ctx) }()

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case tick := <-ticks:
			seen[tick.Symbol] = true
		case <-deadline:
			t.Fatalf("symbols seen: %v", seen)
		}
	}
	cancel()
	if err := <-errCh; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewGeneratorDefaults(t *testing.T) {
	g := NewGenerator(NewMemoryBroker(), nil, 0, nil)
	if g.interval != 500*time.Millisecond {
		t.Fatalf("unexpected default interval %v", g.interval)
	}
	if len(g.symbols) != 1 || g.symbols[0] != "EURUSD" {
		t.Fatalf("unexpected default symbols %v", g.symbols)
	}
}
