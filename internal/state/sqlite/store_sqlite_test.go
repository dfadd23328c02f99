package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"mngfx-livechart/internal/market"
	"mngfx-livechart/internal/state"
)

var (
	_ state.Store       = (*Store)(nil)
	_ state.CandleStore = (*Store)(nil)
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Set(ctx, "key", "value"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Set(ctx, "key", "value2"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	val, ok, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || val != "value2" {
		t.Fatalf("unexpected value: %v (ok=%v)", val, ok)
	}
	if err := store.Delete(ctx, "key"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, err = store.Get(ctx, "key"); err != nil || ok {
		t.Fatalf("expected key to be deleted (ok=%v err=%v)", ok, err)
	}
}

func TestStoreCandleHistory(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		c := market.Candle{Symbol: "EURUSD", IntervalStart: i * 60, Open: 1, High: 1.2, Low: 0.9, Close: float64(i)}
		if err := store.SaveCandle(ctx, c); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	updated := market.Candle{Symbol: "EURUSD", IntervalStart: 300, Open: 1, High: 1.5, Low: 0.9, Close: 9}
	if err := store.SaveCandle(ctx, updated); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := store.SaveCandle(ctx, market.Candle{Symbol: "USDJPY", IntervalStart: 60, Open: 150, High: 150, Low: 150, Close: 150}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	recent, err := store.RecentCandles(ctx, "EURUSD", 2)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].IntervalStart != 240 || recent[1] != updated {
		t.Fatalf("unexpected recent candles: %+v", recent)
	}

	if err := store.PruneCandles(ctx, "EURUSD", 3); err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	all, err := store.RecentCandles(ctx, "EURUSD", 0)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(all) != 3 || all[0].IntervalStart != 180 {
		t.Fatalf("unexpected candles after prune: %+v", all)
	}
	other, _ := store.RecentCandles(ctx, "USDJPY", 0)
	if len(other) != 1 {
		t.Fatalf("prune removed another symbol's candles")
	}
}
