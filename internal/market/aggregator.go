package market

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// OrderPolicy decides what happens to a tick whose bucket is older than the
// current candle.
type OrderPolicy string

const (
	// OrderArrival trusts feed order: any bucket change rolls the candle,
	// including a move backwards.
	OrderArrival OrderPolicy = "arrival"
	// OrderDropStale drops ticks that belong to an interval before the
	// current one.
	OrderDropStale OrderPolicy = "drop_stale"
)

func ParseOrderPolicy(raw string) (OrderPolicy, error) {
	switch OrderPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", OrderArrival:
		return OrderArrival, nil
	case OrderDropStale:
		return OrderDropStale, nil
	default:
		return "", fmt.Errorf("unknown order policy %q", raw)
	}
}

var ErrInvalidPrice = errors.New("tick bid is not a finite price")

// Update is the result of folding one tick.
type Update struct {
	// Current is the in-progress candle after the fold.
	Current Candle
	// Closed is the candle that was finalized by this tick; only set when
	// Rolled is true.
	Closed Candle
	Rolled bool
	// Dropped reports a stale tick discarded under OrderDropStale; Current
	// is left as it was.
	Dropped bool
}

// Aggregator folds ticks into one-minute bid OHLC candles. It keeps at most
// one mutable candle; a tick in a different bucket finalizes it and opens the
// next one. It is not safe for concurrent use.
type Aggregator struct {
	policy  OrderPolicy
	current Candle
	open    bool
}

func NewAggregator(policy OrderPolicy) *Aggregator {
	if policy == "" {
		policy = OrderArrival
	}
	return &Aggregator{policy: policy}
}

func (a *Aggregator) Policy() OrderPolicy {
	return a.policy
}

// Fold applies one tick and returns the candle to upsert.
func (a *Aggregator) Fold(tick Tick) (Update, error) {
	if math.IsNaN(tick.Bid) || math.IsInf(tick.Bid, 0) {
		return Update{}, ErrInvalidPrice
	}
	bucket := Bucket(tick.TimestampMillis)
	if !a.open || bucket != a.current.IntervalStart {
		if a.open && bucket < a.current.IntervalStart && a.policy == OrderDropStale {
			return Update{Current: a.current, Dropped: true}, nil
		}
		var update Update
		if a.open {
			update.Closed = a.current
			update.Rolled = true
		}
		a.current = Candle{
			Symbol:        tick.Symbol,
			IntervalStart: bucket,
			Open:          tick.Bid,
			High:          tick.Bid,
			Low:           tick.Bid,
			Close:         tick.Bid,
		}
		a.open = true
		update.Current = a.current
		return update, nil
	}
	a.current.High = math.Max(a.current.High, tick.Bid)
	a.current.Low = math.Min(a.current.Low, tick.Bid)
	a.current.Close = tick.Bid
	return Update{Current: a.current}, nil
}

// Current returns the in-progress candle, if any.
func (a *Aggregator) Current() (Candle, bool) {
	return a.current, a.open
}

// Reset drops the in-progress candle without emitting it.
func (a *Aggregator) Reset() {
	a.current = Candle{}
	a.open = false
}
