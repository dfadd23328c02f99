package chart

import (
	"errors"

	"mngfx-livechart/internal/market"
	"mngfx-livechart/internal/metrics"

	"go.uber.org/zap"
)

// Renderer upserts candles into a Surface keyed by interval start. Width
// follows layout notifications and height follows the view mode; candle data
// never changes either. It is driven from a single goroutine.
type Renderer struct {
	factory SurfaceFactory
	surface Surface
	log     *zap.Logger
	metrics *metrics.Metrics

	width          int
	mode           ViewMode
	viewportHeight int

	last    int64
	hasLast bool
	closed  bool
}

func NewRenderer(factory SurfaceFactory, width int, mode ViewMode, viewportHeight int, log *zap.Logger, m *metrics.Metrics) (*Renderer, error) {
	if factory == nil {
		return nil, errors.New("surface factory is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	if mode == "" {
		mode = ModeDefault
	}
	r := &Renderer{
		factory:        factory,
		log:            log,
		metrics:        m,
		width:          width,
		mode:           mode,
		viewportHeight: viewportHeight,
	}
	surface, err := factory(width, mode.Height(viewportHeight))
	if err != nil {
		return nil, err
	}
	r.surface = surface
	return r, nil
}

// Upsert overwrites the bar for the candle's interval or appends a new one.
// A candle older than the last bar is rejected before it reaches the surface.
func (r *Renderer) Upsert(c market.Candle) error {
	if r.closed {
		return ErrClosed
	}
	if r.hasLast && c.IntervalStart < r.last {
		r.metrics.BarsRejected.Inc()
		r.log.Warn("bar rejected", zap.Int64("interval_start", c.IntervalStart), zap.Int64("last", r.last))
		return ErrOutOfOrder
	}
	if err := r.surface.Update(BarFromCandle(c)); err != nil {
		if errors.Is(err, ErrOutOfOrder) {
			r.metrics.BarsRejected.Inc()
		}
		r.log.Warn("surface update failed", zap.Int64("interval_start", c.IntervalStart), zap.Error(err))
		return err
	}
	r.last = c.IntervalStart
	r.hasLast = true
	return nil
}

// OnLayout tracks the container width. Zero or negative widths are ignored.
func (r *Renderer) OnLayout(width int) {
	if r.closed || width <= 0 || width == r.width {
		return
	}
	r.width = width
	r.surface.Resize(r.width, r.Height())
}

func (r *Renderer) SetViewMode(mode ViewMode, viewportHeight int) {
	if r.closed {
		return
	}
	before := r.Height()
	r.mode = mode
	if viewportHeight > 0 {
		r.viewportHeight = viewportHeight
	}
	if after := r.Height(); after != before {
		r.surface.Resize(r.width, after)
	}
}

func (r *Renderer) Mode() ViewMode {
	return r.mode
}

func (r *Renderer) Height() int {
	return r.mode.Height(r.viewportHeight)
}

func (r *Renderer) Width() int {
	return r.width
}

// Reset replaces the surface with an empty one of the same size.
func (r *Renderer) Reset() error {
	if r.closed {
		return ErrClosed
	}
	r.surface.Destroy()
	r.hasLast = false
	r.last = 0
	surface, err := r.factory(r.width, r.Height())
	if err != nil {
		r.closed = true
		return err
	}
	r.surface = surface
	return nil
}

// Close destroys the surface. Later calls are no-ops or return ErrClosed.
func (r *Renderer) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.surface.Destroy()
}
