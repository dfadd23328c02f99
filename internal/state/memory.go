package state

import (
	"context"
	"sort"
	"sync"

	"mngfx-livechart/internal/market"
)

// Memory is a Store and CandleStore that lives for the process only.
type Memory struct {
	mu      sync.Mutex
	kv      map[string]string
	candles map[string]map[int64]market.Candle
}

func NewMemory() *Memory {
	return &Memory{
		kv:      make(map[string]string),
		candles: make(map[string]map[int64]market.Candle),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) SaveCandle(_ context.Context, c market.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySymbol := m.candles[c.Symbol]
	if bySymbol == nil {
		bySymbol = make(map[int64]market.Candle)
		m.candles[c.Symbol] = bySymbol
	}
	bySymbol[c.IntervalStart] = c
	return nil
}

func (m *Memory) RecentCandles(_ context.Context, symbol string, limit int) ([]market.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted(symbol)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *Memory) PruneCandles(_ context.Context, symbol string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(symbol)
	if keep < 0 || len(all) <= keep {
		return nil
	}
	for _, c := range all[:len(all)-keep] {
		delete(m.candles[symbol], c.IntervalStart)
	}
	return nil
}

func (m *Memory) sorted(symbol string) []market.Candle {
	out := make([]market.Candle, 0, len(m.candles[symbol]))
	for _, c := range m.candles[symbol] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IntervalStart < out[j].IntervalStart })
	return out
}
