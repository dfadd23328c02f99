package alerts

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	sendTimeout = 10 * time.Second
	queueSize   = 16
)

type Sender interface {
	Send(ctx context.Context, message string) error
}

// FeedAlerts turns feed connection changes into messages. Messages are sent
// from a background goroutine so callers never wait on the network. Repeated
// disconnects inside the cooldown are folded into the next message.
type FeedAlerts struct {
	sender   Sender
	log      *zap.Logger
	cooldown time.Duration
	now      func() time.Time
	queue    chan string
	started  atomic.Bool

	down       bool
	lastSent   time.Time
	suppressed int
}

func NewFeedAlerts(sender Sender, cooldown time.Duration, log *zap.Logger) *FeedAlerts {
	if log == nil {
		log = zap.NewNop()
	}
	return &FeedAlerts{
		sender:   sender,
		log:      log,
		cooldown: cooldown,
		now:      time.Now,
		queue:    make(chan string, queueSize),
	}
}

func (a *FeedAlerts) Start(ctx context.Context) {
	if a == nil || a.sender == nil {
		return
	}
	if !a.started.CompareAndSwap(false, true) {
		return
	}
	go a.run(ctx)
}

// Disconnected must be called from a single goroutine, like Restored.
func (a *FeedAlerts) Disconnected(symbol, url string, err error) {
	if a == nil {
		return
	}
	a.down = true
	now := a.now()
	if !a.lastSent.IsZero() && now.Sub(a.lastSent) < a.cooldown {
		a.suppressed++
		return
	}
	msg := fmt.Sprintf("livechart: feed for %s disconnected (%s)", symbol, url)
	if err != nil {
		msg += ": " + err.Error()
	}
	if a.suppressed > 0 {
		msg += fmt.Sprintf(" [%d earlier disconnects suppressed]", a.suppressed)
		a.suppressed = 0
	}
	a.lastSent = now
	a.enqueue(msg)
}

func (a *FeedAlerts) Restored(symbol string) {
	if a == nil || !a.down {
		return
	}
	a.down = false
	a.enqueue(fmt.Sprintf("livechart: feed for %s connected again", symbol))
}

func (a *FeedAlerts) enqueue(msg string) {
	select {
	case a.queue <- msg:
	default:
		a.log.Warn("alert queue full", zap.String("message", msg))
	}
}

func (a *FeedAlerts) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.queue:
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			if err := a.sender.Send(sendCtx, msg); err != nil {
				a.log.Warn("alert send failed", zap.Error(err))
			}
			cancel()
		}
	}
}
