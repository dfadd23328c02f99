package state

import (
	"context"

	"mngfx-livechart/internal/market"
)

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// CandleStore keeps closed candles per symbol. RecentCandles returns at most
// limit candles in ascending interval order.
type CandleStore interface {
	SaveCandle(ctx context.Context, c market.Candle) error
	RecentCandles(ctx context.Context, symbol string, limit int) ([]market.Candle, error)
	PruneCandles(ctx context.Context, symbol string, keep int) error
}
