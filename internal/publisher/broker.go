package publisher

import (
	"context"
	"sync"

	"mngfx-livechart/internal/market"
)

const subscriberBuffer = 64

// Broker fans ticks out to every subscriber. A slow subscriber loses ticks
// rather than stalling the publisher.
type Broker interface {
	Publish(ctx context.Context, t market.Tick) error
	// Subscribe returns a channel that is closed once ctx is done.
	Subscribe(ctx context.Context) (<-chan market.Tick, error)
	Close() error
}

type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[chan market.Tick]struct{}
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[chan market.Tick]struct{})}
}

func (b *MemoryBroker) Publish(_ context.Context, t market.Tick) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- t:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context) (<-chan market.Tick, error) {
	ch := make(chan market.Tick, subscriberBuffer)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()
	return ch, nil
}

func (b *MemoryBroker) remove(ch chan market.Tick) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *MemoryBroker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}
