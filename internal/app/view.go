package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"mngfx-livechart/internal/alerts"
	"mngfx-livechart/internal/chart"
	"mngfx-livechart/internal/feed"
	"mngfx-livechart/internal/market"
	"mngfx-livechart/internal/metrics"
	"mngfx-livechart/internal/state"

	"go.uber.org/zap"
)

const storeTimeout = 2 * time.Second

type FeedClient interface {
	URL() string
	Run(ctx context.Context, symbol string, handler func(feed.Event)) error
}

type StatusSink interface {
	SetStatus(symbol string, connected bool)
}

// CandleSink receives every closed candle. Implementations must not block.
type CandleSink interface {
	EnqueueCandle(c market.Candle)
}

type ViewOptions struct {
	Client      FeedClient
	Symbol      string
	OrderPolicy market.OrderPolicy
	Renderer    *chart.Renderer
	Controls    <-chan chart.Control
	Status      StatusSink
	History     state.CandleStore
	HistorySize int
	Preferences state.Store
	Sinks       []CandleSink
	Alerts      *alerts.FeedAlerts
	Log         *zap.Logger
	Metrics     *metrics.Metrics
}

// viewEvent carries a feed event together with the connection generation it
// came from. exited marks the end of that connection's Run.
type viewEvent struct {
	gen    uint64
	ev     feed.Event
	exited bool
	err    error
}

// View is the chart's event loop. A single goroutine owns the session, the
// aggregator and the renderer; feed connections only hand events to it.
type View struct {
	opts     ViewOptions
	log      *zap.Logger
	metrics  *metrics.Metrics
	session  *feed.Session
	renderer *chart.Renderer
	events   chan viewEvent

	gen        uint64
	connCancel context.CancelFunc
	connDone   chan struct{}

	mu      sync.Mutex
	running bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

func NewView(opts ViewOptions) (*View, error) {
	if opts.Client == nil {
		return nil, errors.New("feed client is required")
	}
	if opts.Renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if strings.TrimSpace(opts.Symbol) == "" {
		return nil, errors.New("symbol is required")
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	v := &View{
		opts:     opts,
		log:      opts.Log,
		metrics:  opts.Metrics,
		renderer: opts.Renderer,
		events:   make(chan viewEvent, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	v.session = feed.NewSession(strings.TrimSpace(opts.Symbol), market.NewAggregator(opts.OrderPolicy), v.onUpdate, opts.Log, opts.Metrics)
	return v, nil
}

func (v *View) Symbol() string {
	return v.session.Symbol()
}

// Run blocks until ctx is done or Close is called. It tears the view down
// before returning.
func (v *View) Run(ctx context.Context) error {
	v.mu.Lock()
	if v.closed || v.running {
		v.mu.Unlock()
		return errors.New("view already closed or running")
	}
	v.running = true
	v.mu.Unlock()
	defer close(v.done)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	v.seedHistory(loopCtx)
	v.publishStatus(false)
	v.connect(loopCtx)

	for {
		select {
		case <-loopCtx.Done():
			v.teardown()
			return loopCtx.Err()
		case <-v.stop:
			cancel()
			v.teardown()
			return nil
		case e := <-v.events:
			if e.gen != v.gen {
				continue
			}
			v.handleEvent(e)
		case ctrl, ok := <-v.opts.Controls:
			if !ok {
				v.opts.Controls = nil
				continue
			}
			v.handleControl(loopCtx, ctrl)
		}
	}
}

// Close stops the loop and waits for it. No feed or control handler runs
// after Close returns.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	close(v.stop)
	running := v.running
	v.mu.Unlock()
	if running {
		<-v.done
		return
	}
	v.session.Teardown()
	v.renderer.Close()
}

func (v *View) teardown() {
	v.disconnect()
	v.session.Teardown()
	v.renderer.Close()
	v.log.Info("chart view closed", zap.String("symbol", v.session.Symbol()))
}

func (v *View) connect(ctx context.Context) {
	v.gen++
	gen := v.gen
	symbol := v.session.Symbol()
	connCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	v.connCancel = cancel
	v.connDone = done

	go func() {
		defer close(done)
		err := v.opts.Client.Run(connCtx, symbol, func(ev feed.Event) {
			select {
			case v.events <- viewEvent{gen: gen, ev: ev}:
			case <-connCtx.Done():
			}
		})
		select {
		case v.events <- viewEvent{gen: gen, exited: true, err: err}:
		case <-connCtx.Done():
		}
	}()
}

// disconnect cancels the current connection and waits for its goroutine.
// Events it already queued carry a stale generation and are skipped.
func (v *View) disconnect() {
	if v.connCancel == nil {
		return
	}
	v.connCancel()
	<-v.connDone
	v.connCancel = nil
	v.connDone = nil
}

func (v *View) handleEvent(e viewEvent) {
	symbol := v.session.Symbol()
	if e.exited {
		if e.err != nil && !errors.Is(e.err, context.Canceled) {
			v.log.Info("feed stopped", zap.String("symbol", symbol), zap.Error(e.err))
		}
		return
	}
	switch e.ev.Kind {
	case feed.EventDialing:
		if e.ev.Attempt > 0 {
			v.metrics.FeedReconnects.Inc()
		}
		v.session.Dialing()
	case feed.EventOpen:
		if v.session.Opened() == feed.StateOpen {
			v.publishStatus(true)
			v.opts.Alerts.Restored(symbol)
		}
	case feed.EventMessage:
		v.session.Message(e.ev.Data)
	case feed.EventClose:
		wasOpen := v.session.State() == feed.StateOpen
		v.session.Closed(e.ev.Err)
		v.publishStatus(false)
		if wasOpen {
			v.opts.Alerts.Disconnected(symbol, v.opts.Client.URL(), e.ev.Err)
		}
	}
}

func (v *View) onUpdate(u market.Update) {
	if u.Rolled {
		_ = v.renderer.Upsert(u.Closed)
		v.recordClosed(u.Closed)
	}
	_ = v.renderer.Upsert(u.Current)
}

func (v *View) recordClosed(c market.Candle) {
	for _, sink := range v.opts.Sinks {
		sink.EnqueueCandle(c)
	}
	if v.opts.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := v.opts.History.SaveCandle(ctx, c); err != nil {
		v.log.Warn("candle history save failed", zap.String("symbol", c.Symbol), zap.Error(err))
		return
	}
	if v.opts.HistorySize > 0 {
		if err := v.opts.History.PruneCandles(ctx, c.Symbol, v.opts.HistorySize); err != nil {
			v.log.Warn("candle history prune failed", zap.String("symbol", c.Symbol), zap.Error(err))
		}
	}
}

func (v *View) seedHistory(ctx context.Context) {
	if v.opts.History == nil || v.opts.HistorySize <= 0 {
		return
	}
	symbol := v.session.Symbol()
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	candles, err := v.opts.History.RecentCandles(ctx, symbol, v.opts.HistorySize)
	if err != nil {
		v.log.Warn("candle history load failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	for _, c := range candles {
		_ = v.renderer.Upsert(c)
	}
	if len(candles) > 0 {
		v.log.Info("chart seeded from history", zap.String("symbol", symbol), zap.Int("candles", len(candles)))
	}
}

func (v *View) handleControl(ctx context.Context, ctrl chart.Control) {
	switch ctrl.Type {
	case chart.ControlLayout:
		v.renderer.OnLayout(ctrl.Width)
	case chart.ControlMode:
		mode, err := chart.ParseViewMode(ctrl.Mode)
		if err != nil {
			v.log.Warn("view mode rejected", zap.String("mode", ctrl.Mode))
			return
		}
		v.renderer.SetViewMode(mode, ctrl.ViewportHeight)
		v.savePreferences(ctx)
	case chart.ControlSymbol:
		v.SwitchSymbol(ctx, ctrl.Symbol)
	}
}

// SwitchSymbol drops the live connection and the in-progress candle, clears
// the chart and subscribes to the new symbol. It must run on the loop
// goroutine.
func (v *View) SwitchSymbol(ctx context.Context, symbol string) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" || symbol == v.session.Symbol() {
		return
	}
	previous := v.session.Symbol()
	v.disconnect()
	v.session.SwitchSymbol(symbol)
	if err := v.renderer.Reset(); err != nil {
		v.log.Error("chart reset failed", zap.Error(err))
		return
	}
	v.log.Info("symbol switched", zap.String("from", previous), zap.String("to", symbol))
	v.seedHistory(ctx)
	v.publishStatus(false)
	v.savePreferences(ctx)
	v.connect(ctx)
}

func (v *View) publishStatus(connected bool) {
	if v.opts.Status != nil {
		v.opts.Status.SetStatus(v.session.Symbol(), connected)
	}
}

func (v *View) savePreferences(ctx context.Context) {
	if v.opts.Preferences == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	prefs := state.Preferences{Symbol: v.session.Symbol(), ViewMode: string(v.renderer.Mode())}
	if err := state.SavePreferences(ctx, v.opts.Preferences, prefs); err != nil {
		v.log.Warn("preferences save failed", zap.Error(err))
	}
}
