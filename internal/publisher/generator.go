package publisher

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"mngfx-livechart/internal/market"

	"go.uber.org/zap"
)

const (
	basePrice = 1.05
	priceBand = 0.01
	spread    = 0.0001
)

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

// RandomTick draws bid and ask independently, so ask is not guaranteed to
// exceed bid.
func RandomTick(symbol string, r *rand.Rand, now time.Time) market.Tick {
	return market.Tick{
		Symbol:          symbol,
		Bid:             round5(basePrice + r.Float64()*priceBand),
		Ask:             round5(basePrice + r.Float64()*priceBand + spread),
		TimestampMillis: now.UnixMilli(),
	}
}

type Generator struct {
	broker   Broker
	symbols  []string
	interval time.Duration
	rand     *rand.Rand
	now      func() time.Time
	log      *zap.Logger
}

func NewGenerator(broker Broker, symbols []string, interval time.Duration, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if len(symbols) == 0 {
		symbols = []string{"EURUSD"}
	}
	seed := uint64(time.Now().UnixNano())
	return &Generator{
		broker:   broker,
		symbols:  append([]string(nil), symbols...),
		interval: interval,
		rand:     rand.New(rand.NewPCG(seed, seed>>1)),
		now:      time.Now,
		log:      log,
	}
}

// Run publishes one tick per symbol every interval until ctx is done.
func (g *Generator) Run(ctx context.Context) error {
	g.log.Info("tick generator started", zap.Strings("symbols", g.symbols), zap.Duration("interval", g.interval))
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		g.publishAll(ctx)
		select {
		case <-ctx.Done():
			g.log.Info("tick generator stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *Generator) publishAll(ctx context.Context) {
	now := g.now()
	for _, symbol := range g.symbols {
		tick := RandomTick(symbol, g.rand, now)
		if err := g.broker.Publish(ctx, tick); err != nil {
			g.log.Warn("tick publish failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}
