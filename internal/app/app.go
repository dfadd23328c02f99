package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mngfx-livechart/internal/alerts"
	"mngfx-livechart/internal/chart"
	"mngfx-livechart/internal/config"
	"mngfx-livechart/internal/feed"
	"mngfx-livechart/internal/kafka"
	"mngfx-livechart/internal/market"
	"mngfx-livechart/internal/metrics"
	"mngfx-livechart/internal/state"
	"mngfx-livechart/internal/state/sqlite"
	"mngfx-livechart/internal/timescale"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const alertCooldown = time.Minute

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *sqlite.Store
	metrics   *metrics.Metrics
	prom      *metrics.Prometheus
	hub       *chart.Hub
	view      *View
	timescale *timescale.Writer
	kafka     *kafka.Publisher
	alerts    *alerts.FeedAlerts
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	policy, err := market.ParseOrderPolicy(cfg.Chart.OrderPolicy)
	if err != nil {
		return nil, err
	}
	mode, err := chart.ParseViewMode(cfg.Chart.ViewMode)
	if err != nil {
		return nil, err
	}
	feedURL, err := resolveFeedURL(cfg.Feed)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.State.SQLitePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	symbol := cfg.Feed.Symbol
	prefs, ok, err := state.LoadPreferences(context.Background(), store)
	if err != nil {
		log.Warn("preferences load failed", zap.Error(err))
	} else if ok {
		if prefs.Symbol != "" {
			symbol = prefs.Symbol
		}
		if restored, err := chart.ParseViewMode(prefs.ViewMode); err == nil && prefs.ViewMode != "" {
			mode = restored
		}
		log.Info("preferences restored", zap.String("symbol", symbol), zap.String("view_mode", string(mode)))
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	a := &App{cfg: cfg, log: log, store: store, metrics: m, prom: prom}
	fail := func(err error) (*App, error) {
		a.closeResources()
		return nil, err
	}

	if a.timescale, err = timescale.New(cfg.Timescale, log); err != nil {
		return fail(err)
	}
	if a.kafka, err = kafka.New(cfg.Kafka, log); err != nil {
		return fail(err)
	}
	if telegram := alerts.NewTelegram(cfg.Telegram, log); telegram.Enabled() {
		a.alerts = alerts.NewFeedAlerts(telegram, alertCooldown, log)
	}

	if !strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	a.hub = chart.NewHub(log)
	renderer, err := chart.NewRenderer(a.hub.NewSurface, cfg.Chart.Width, mode, cfg.Chart.ViewportHeight, log, m)
	if err != nil {
		return fail(err)
	}
	client := feed.New(feedURL, feed.PolicyFromConfig(cfg.Feed.Reconnect), cfg.Feed.PingInterval, log)

	var sinks []CandleSink
	if a.timescale != nil {
		sinks = append(sinks, a.timescale)
	}
	if a.kafka != nil {
		sinks = append(sinks, a.kafka)
	}
	a.view, err = NewView(ViewOptions{
		Client:      client,
		Symbol:      symbol,
		OrderPolicy: policy,
		Renderer:    renderer,
		Controls:    a.hub.Controls(),
		Status:      a.hub,
		History:     store,
		HistorySize: cfg.Chart.HistorySize,
		Preferences: store,
		Sinks:       sinks,
		Alerts:      a.alerts,
		Log:         log,
		Metrics:     m,
	})
	if err != nil {
		return fail(err)
	}
	log.Info("chart configured",
		zap.String("feed_url", feedURL),
		zap.String("symbol", symbol),
		zap.String("order_policy", string(policy)),
		zap.String("view_mode", string(mode)),
	)
	return a, nil
}

func resolveFeedURL(cfg config.FeedConfig) (string, error) {
	if u := strings.TrimSpace(cfg.URL); u != "" {
		return u, nil
	}
	return feed.DeriveURL(cfg.PageURL, cfg.Port, cfg.Path)
}

func (a *App) Run(ctx context.Context) error {
	defer a.closeResources()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.timescale.Start(ctx)
	a.kafka.Start(ctx)
	a.alerts.Start(ctx)

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hub.Run(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := serveHTTP(ctx, a.cfg.Chart.Listen, a.hub.Router(), a.log); err != nil {
			errCh <- err
		}
	}()
	if a.prom != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveMetrics(ctx, a.cfg.Metrics, a.prom, a.log); err != nil {
				errCh <- err
			}
		}()
	}

	viewErr := make(chan error, 1)
	go func() { viewErr <- a.view.Run(ctx) }()

	var err error
	select {
	case err = <-viewErr:
	case err = <-errCh:
		cancel()
		<-viewErr
	}
	cancel()
	wg.Wait()
	return err
}

func (a *App) closeResources() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if err := a.timescale.Close(); err != nil {
		a.log.Warn("timescale close failed", zap.Error(err))
	}
	if err := a.kafka.Close(); err != nil {
		a.log.Warn("kafka close failed", zap.Error(err))
	}
}
