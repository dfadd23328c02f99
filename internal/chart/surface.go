package chart

import (
	"errors"
	"sync"

	"mngfx-livechart/internal/market"
)

var (
	ErrOutOfOrder = errors.New("bar time is before the last bar")
	ErrClosed     = errors.New("chart surface is closed")
)

type Bar struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

func BarFromCandle(c market.Candle) Bar {
	return Bar{Time: c.IntervalStart, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close}
}

// Surface is a candlestick drawing surface. Update appends a bar, or
// replaces the last one when the time matches; times must not go backwards.
type Surface interface {
	Update(bar Bar) error
	Resize(width, height int)
	Destroy()
}

// SurfaceFactory creates a chart with an empty candlestick series.
type SurfaceFactory func(width, height int) (Surface, error)

// Series is an in-memory Surface.
type Series struct {
	mu        sync.RWMutex
	bars      []Bar
	width     int
	height    int
	destroyed bool
}

func NewSeries(width, height int) *Series {
	return &Series{width: width, height: height}
}

func SeriesFactory(width, height int) (Surface, error) {
	return NewSeries(width, height), nil
}

func (s *Series) Update(bar Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrClosed
	}
	if n := len(s.bars); n > 0 {
		last := s.bars[n-1]
		switch {
		case bar.Time == last.Time:
			s.bars[n-1] = bar
			return nil
		case bar.Time < last.Time:
			return ErrOutOfOrder
		}
	}
	s.bars = append(s.bars, bar)
	return nil
}

func (s *Series) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width = width
	s.height = height
}

func (s *Series) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	s.bars = nil
}

func (s *Series) Bars() []Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Bar(nil), s.bars...)
}

func (s *Series) Last() (Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

func (s *Series) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

func (s *Series) Destroyed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.destroyed
}
