package feed

import (
	"math"
	"math/rand/v2"
	"time"

	"mngfx-livechart/internal/config"
)

// ReconnectPolicy decides whether a closed feed connection is dialled again
// and after how long. attempt counts consecutive failures starting at 0.
type ReconnectPolicy interface {
	Next(attempt int) (time.Duration, bool)
}

// NoReconnect leaves the chart frozen on the last candle after a close.
type NoReconnect struct{}

func (NoReconnect) Next(int) (time.Duration, bool) {
	return 0, false
}

// Backoff retries with min(Min*Factor^attempt, Max) plus up to Jitter of
// random delay. MaxAttempts of 0 retries forever.
type Backoff struct {
	Min         time.Duration
	Max         time.Duration
	Factor      float64
	Jitter      time.Duration
	MaxAttempts int
}

func (b Backoff) Next(attempt int) (time.Duration, bool) {
	if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
		return 0, false
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	delay := float64(b.Min) * math.Pow(factor, float64(attempt))
	if b.Max > 0 && (delay > float64(b.Max) || math.IsInf(delay, 0)) {
		delay = float64(b.Max)
	}
	backoff := time.Duration(delay)
	if b.Jitter > 0 {
		backoff += time.Duration(rand.Int64N(int64(b.Jitter)))
	}
	return backoff, true
}

func PolicyFromConfig(cfg config.ReconnectConfig) ReconnectPolicy {
	if !cfg.Enabled {
		return NoReconnect{}
	}
	return Backoff{
		Min:         cfg.MinBackoff,
		Max:         cfg.MaxBackoff,
		Factor:      cfg.Factor,
		Jitter:      cfg.Jitter,
		MaxAttempts: cfg.MaxAttempts,
	}
}
