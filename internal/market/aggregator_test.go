package market

import (
	"math"
	"testing"
)

func TestBucket(t *testing.T) {
	cases := []struct {
		ts   int64
		want int64
	}{
		{1700000045123, 1700000040},
		{0, 0},
		{59999, 0},
		{60000, 60},
		{-1, -60},
	}
	for _, tc := range cases {
		if got := Bucket(tc.ts); got != tc.want {
			t.Fatalf("bucket(%d): expected %d, got %d", tc.ts, tc.want, got)
		}
	}
}

func TestFoldSameBucketOHLC(t *testing.T) {
	agg := NewAggregator(OrderArrival)
	var last Update
	for i, bid := range []float64{1.1000, 1.1005, 1.0998, 1.1002} {
		update, err := agg.Fold(Tick{Symbol: "EURUSD", Bid: bid, Ask: bid + 0.0002, TimestampMillis: 1700000040000 + int64(i)*1000})
		if err != nil {
			t.Fatalf("fold: %v", err)
		}
		if update.Rolled {
			t.Fatalf("unexpected rollover at tick %d", i)
		}
		last = update
	}
	want := Candle{Symbol: "EURUSD", IntervalStart: 1700000040, Open: 1.1000, High: 1.1005, Low: 1.0998, Close: 1.1002}
	if last.Current != want {
		t.Fatalf("unexpected candle: %#v", last.Current)
	}
}

func TestFoldRolloverEmitsClosedOnce(t *testing.T) {
	agg := NewAggregator(OrderArrival)
	mustFold(t, agg, Tick{Bid: 1.1, TimestampMillis: 60_000})
	mustFold(t, agg, Tick{Bid: 1.2, TimestampMillis: 90_000})
	update := mustFold(t, agg, Tick{Bid: 1.3, TimestampMillis: 120_000})
	if !update.Rolled {
		t.Fatalf("expected rollover")
	}
	if update.Closed.IntervalStart != 60 || update.Closed.Close != 1.2 {
		t.Fatalf("unexpected closed candle: %#v", update.Closed)
	}
	want := Candle{IntervalStart: 120, Open: 1.3, High: 1.3, Low: 1.3, Close: 1.3}
	if update.Current != want {
		t.Fatalf("unexpected new candle: %#v", update.Current)
	}
	next := mustFold(t, agg, Tick{Bid: 1.25, TimestampMillis: 121_000})
	if next.Rolled {
		t.Fatalf("closed candle emitted twice")
	}
}

func TestFoldScenario(t *testing.T) {
	agg := NewAggregator(OrderArrival)
	var closed []Candle
	var current Candle
	for _, tick := range []Tick{
		{Bid: 1.2000, TimestampMillis: 0},
		{Bid: 1.2010, TimestampMillis: 30000},
		{Bid: 1.1990, TimestampMillis: 65000},
	} {
		update := mustFold(t, agg, tick)
		if update.Rolled {
			closed = append(closed, update.Closed)
		}
		current = update.Current
	}
	if len(closed) != 1 {
		t.Fatalf("expected one closed candle, got %d", len(closed))
	}
	if closed[0] != (Candle{IntervalStart: 0, Open: 1.2000, High: 1.2010, Low: 1.2000, Close: 1.2010}) {
		t.Fatalf("unexpected first candle: %#v", closed[0])
	}
	if current != (Candle{IntervalStart: 60, Open: 1.1990, High: 1.1990, Low: 1.1990, Close: 1.1990}) {
		t.Fatalf("unexpected second candle: %#v", current)
	}
}

func TestFoldGapEmitsNoEmptyCandle(t *testing.T) {
	agg := NewAggregator(OrderArrival)
	mustFold(t, agg, Tick{Bid: 1, TimestampMillis: 0})
	update := mustFold(t, agg, Tick{Bid: 2, TimestampMillis: 5 * 60_000})
	if update.Closed.IntervalStart != 0 || update.Current.IntervalStart != 300 {
		t.Fatalf("expected direct jump from 0 to 300, got closed=%d current=%d", update.Closed.IntervalStart, update.Current.IntervalStart)
	}
}

func TestFoldCloseFollowsArrivalOrder(t *testing.T) {
	agg := NewAggregator(OrderArrival)
	mustFold(t, agg, Tick{Bid: 1.5, TimestampMillis: 10_000})
	update := mustFold(t, agg, Tick{Bid: 1.4, TimestampMillis: 5_000})
	if update.Current.Close != 1.4 {
		t.Fatalf("expected last arrival to set close, got %f", update.Current.Close)
	}
}

func TestFoldArrivalPolicyRollsBackwards(t *testing.T) {
	agg := NewAggregator(OrderArrival)
	mustFold(t, agg, Tick{Bid: 1, TimestampMillis: 120_000})
	update := mustFold(t, agg, Tick{Bid: 2, TimestampMillis: 60_000})
	if !update.Rolled || update.Current.IntervalStart != 60 {
		t.Fatalf("expected arrival policy to open bucket 60, got %#v", update)
	}
}

func TestFoldDropStalePolicy(t *testing.T) {
	agg := NewAggregator(OrderDropStale)
	mustFold(t, agg, Tick{Bid: 1, TimestampMillis: 120_000})
	update := mustFold(t, agg, Tick{Bid: 2, TimestampMillis: 60_000})
	if !update.Dropped || update.Rolled {
		t.Fatalf("expected stale tick to be dropped, got %#v", update)
	}
	current, ok := agg.Current()
	if !ok || current.IntervalStart != 120 || current.High != 1 {
		t.Fatalf("stale tick mutated state: %#v", current)
	}
}

func TestFoldRejectsNaN(t *testing.T) {
	agg := NewAggregator(OrderArrival)
	if _, err := agg.Fold(Tick{Bid: math.NaN()}); err == nil {
		t.Fatalf("expected error for NaN bid")
	}
	if _, ok := agg.Current(); ok {
		t.Fatalf("NaN bid opened a candle")
	}
}

func TestReset(t *testing.T) {
	agg := NewAggregator("")
	if agg.Policy() != OrderArrival {
		t.Fatalf("expected default arrival policy, got %s", agg.Policy())
	}
	mustFold(t, agg, Tick{Bid: 1.2, TimestampMillis: 0})
	agg.Reset()
	if _, ok := agg.Current(); ok {
		t.Fatalf("expected no candle after reset")
	}
	update := mustFold(t, agg, Tick{Bid: 0.9, TimestampMillis: 1000})
	if update.Rolled {
		t.Fatalf("reset candle must not be emitted as closed")
	}
	if update.Current.Open != 0.9 || update.Current.High != 0.9 {
		t.Fatalf("values leaked across reset: %#v", update.Current)
	}
}

func TestParseOrderPolicy(t *testing.T) {
	if p, err := ParseOrderPolicy(""); err != nil || p != OrderArrival {
		t.Fatalf("expected arrival default, got %s %v", p, err)
	}
	if p, err := ParseOrderPolicy("DROP_STALE"); err != nil || p != OrderDropStale {
		t.Fatalf("expected drop_stale, got %s %v", p, err)
	}
	if _, err := ParseOrderPolicy("reorder"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestCandleStart(t *testing.T) {
	c := Candle{IntervalStart: 1700000040}
	if c.Start().Unix() != 1700000040 {
		t.Fatalf("unexpected start %v", c.Start())
	}
}

func mustFold(t *testing.T, agg *Aggregator, tick Tick) Update {
	t.Helper()
	update, err := agg.Fold(tick)
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	return update
}
