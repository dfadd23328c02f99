package publisher

import (
	"context"
	"testing"
	"time"

	"mngfx-livechart/internal/config"
	"mngfx-livechart/internal/market"
)

func TestMemoryBrokerFanOut(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first, _ := b.Subscribe(ctx)
	second, _ := b.Subscribe(ctx)

	tick := market.Tick{Symbol: "EURUSD", Bid: 1.05, TimestampMillis: 1}
	if err := b.Publish(ctx, tick); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for _, ch := range []<-chan market.Tick{first, second} {
		select {
		case got := <-ch:
			if got != tick {
				t.Fatalf("unexpected tick %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("tick not delivered")
		}
	}
}

func TestMemoryBrokerUnsubscribeOnCancel(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx)
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", b.Subscribers())
	}
}

func TestMemoryBrokerSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, _ = b.Subscribe(ctx)
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			_ = b.Publish(ctx, market.Tick{Symbol: "EURUSD"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
}

func TestMemoryBrokerClose(t *testing.T) {
	b := NewMemoryBroker()
	ch, _ := b.Subscribe(context.Background())
	_ = b.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after broker close")
	}
	late, _ := b.Subscribe(context.Background())
	if _, ok := <-late; ok {
		t.Fatalf("expected closed channel from closed broker")
	}
}

func TestNewBroker(t *testing.T) {
	b, err := NewBroker(context.Background(), config.PublisherConfig{}, nil)
	if err != nil {
		t.Fatalf("memory broker: %v", err)
	}
	if _, ok := b.(*MemoryBroker); !ok {
		t.Fatalf("expected memory broker, got %T", b)
	}
	if _, err := NewBroker(context.Background(), config.PublisherConfig{Broker: "nats"}, nil); err == nil {
		t.Fatalf("expected error for unknown broker")
	}
}

func TestNewRedisBrokerValidates(t *testing.T) {
	ctx := context.Background()
	if _, err := NewRedisBroker(ctx, config.RedisConfig{Channel: "market_broadcast"}, nil); err == nil {
		t.Fatalf("expected error for empty addr")
	}
	if _, err := NewRedisBroker(ctx, config.RedisConfig{Addr: "127.0.0.1:6379"}, nil); err == nil {
		t.Fatalf("expected error for empty channel")
	}
	cfg := config.RedisConfig{Addr: "127.0.0.1:1", Channel: "market_broadcast", DialTimeout: 200 * time.Millisecond}
	if _, err := NewRedisBroker(ctx, cfg, nil); err == nil {
		t.Fatalf("expected ping error for unreachable redis")
	}
}
