package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mngfx-livechart/internal/config"
	"mngfx-livechart/internal/feed"
	"mngfx-livechart/internal/logging"
	"mngfx-livechart/internal/market"
	"mngfx-livechart/internal/state/sqlite"

	"go.uber.org/zap"
)

const (
	defaultVerifyDuration = 90 * time.Second
	defaultPageURL        = "http://localhost:3000"
	defaultFeedPort       = "8000"
	defaultFeedPath       = "/ws/market/"
	defaultSymbol         = "EURUSD"
	defaultVerifyEnvFile  = ".env"
)

type candleLine struct {
	Symbol        string  `json:"symbol"`
	IntervalStart int64   `json:"interval_start"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Final         bool    `json:"final"`
}

func main() {
	configPath := flag.String("config", "", "optional config path for feed settings")
	urlFlag := flag.String("url", "", "feed websocket url (overrides config)")
	symbolFlag := flag.String("symbol", "", "symbol to subscribe to (overrides config)")
	duration := flag.Duration("duration", defaultVerifyDuration, "how long to stay subscribed")
	history := flag.Int("history", 0, "print the last N stored candles for the symbol and exit")
	flag.Parse()

	if err := config.LoadEnv(defaultVerifyEnvFile); err != nil {
		fatal(err)
	}

	logCfg := config.LoggingConfig{Level: "info"}
	feedCfg := config.FeedConfig{PageURL: defaultPageURL, Port: defaultFeedPort, Path: defaultFeedPath, Symbol: defaultSymbol}
	sqlitePath := ""
	var policy market.OrderPolicy = market.OrderArrival
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		logCfg = cfg.Log
		feedCfg = cfg.Feed
		sqlitePath = cfg.State.SQLitePath
		if policy, err = market.ParseOrderPolicy(cfg.Chart.OrderPolicy); err != nil {
			fatal(err)
		}
	}
	symbol := strings.TrimSpace(*symbolFlag)
	if symbol == "" {
		symbol = feedCfg.Symbol
	}

	log := logging.New(logCfg)
	defer func() { _ = log.Sync() }()

	if *history > 0 {
		if sqlitePath == "" {
			fatal(errors.New("-history requires -config with state.sqlite_path"))
		}
		printHistory(sqlitePath, symbol, *history)
		return
	}

	url := strings.TrimSpace(*urlFlag)
	if url == "" {
		url = feedCfg.URL
	}
	if url == "" {
		derived, err := feed.DeriveURL(feedCfg.PageURL, feedCfg.Port, feedCfg.Path)
		if err != nil {
			fatal(err)
		}
		url = derived
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	session := feed.NewSession(symbol, market.NewAggregator(policy), func(u market.Update) {
		if u.Rolled {
			_ = enc.Encode(lineFor(u.Closed, true))
		}
	}, log, nil)

	log.Info("verifying feed", zap.String("url", url), zap.String("symbol", symbol), zap.Duration("duration", *duration))
	client := feed.New(url, feed.NoReconnect{}, feedCfg.PingInterval, log)
	ticks := 0
	err := client.Run(ctx, symbol, func(ev feed.Event) {
		switch ev.Kind {
		case feed.EventDialing:
			session.Dialing()
		case feed.EventOpen:
			session.Opened()
		case feed.EventMessage:
			if session.Message(ev.Data) {
				ticks++
			}
		case feed.EventClose:
			session.Closed(ev.Err)
		}
	})
	if current, ok := session.Aggregator().Current(); ok {
		_ = enc.Encode(lineFor(current, false))
	}
	session.Teardown()
	log.Info("feed verification finished", zap.Int("ticks", ticks))
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
	if ticks == 0 {
		fatal(errors.New("no ticks received"))
	}
}

func lineFor(c market.Candle, final bool) candleLine {
	return candleLine{
		Symbol:        c.Symbol,
		IntervalStart: c.IntervalStart,
		Open:          c.Open,
		High:          c.High,
		Low:           c.Low,
		Close:         c.Close,
		Final:         final,
	}
}

func printHistory(path, symbol string, limit int) {
	store, err := sqlite.New(path)
	if err != nil {
		fatal(err)
	}
	defer store.Close()
	candles, err := store.RecentCandles(context.Background(), symbol, limit)
	if err != nil {
		fatal(err)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, c := range candles {
		_ = enc.Encode(lineFor(c, true))
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
