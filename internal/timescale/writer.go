package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"mngfx-livechart/internal/config"
	"mngfx-livechart/internal/market"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	writeTimeout  = 3 * time.Second
	candleInterval = "1m"
)

// Writer stores closed candles in a TimescaleDB hypertable. A nil *Writer
// is valid and drops everything.
type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	schema  string
	candles chan market.Candle
	started atomic.Bool
	dropped atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := newWriter(db, cfg, log)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db *sql.DB, cfg config.TimescaleConfig, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Writer{
		db:      db,
		log:     log,
		schema:  schema,
		candles: make(chan market.Candle, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// EnqueueCandle never blocks; candles are dropped while the queue is full.
func (w *Writer) EnqueueCandle(candle market.Candle) {
	if w == nil {
		return
	}
	select {
	case w.candles <- candle:
	default:
		if w.dropped.Add(1) == 1 {
			w.log.Warn("timescale candle queue full", zap.String("symbol", candle.Symbol))
		}
	}
}

func (w *Writer) Dropped() uint64 {
	if w == nil {
		return 0
	}
	return w.dropped.Load()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case candle := <-w.candles:
			w.writeCandle(ctx, candle)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, w.createTableQuery()); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("market_ohlc"))); err != nil {
		w.log.Warn("timescale market_ohlc hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) createTableQuery() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		asset TEXT NOT NULL,
		interval TEXT NOT NULL,
		open DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (ts, asset, interval)
	)`, w.table("market_ohlc"))
}

func (w *Writer) upsertQuery() string {
	return fmt.Sprintf(`INSERT INTO %s (
		ts, asset, interval, open, high, low, close
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7
	)
	ON CONFLICT (ts, asset, interval) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close`, w.table("market_ohlc"))
}

func upsertArgs(c market.Candle) []any {
	return []any{c.Start(), c.Symbol, candleInterval, c.Open, c.High, c.Low, c.Close}
}

func (w *Writer) writeCandle(ctx context.Context, candle market.Candle) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if _, err := w.db.ExecContext(ctx, w.upsertQuery(), upsertArgs(candle)...); err != nil {
		w.log.Warn("timescale candle upsert failed", zap.String("symbol", candle.Symbol), zap.Int64("interval_start", candle.IntervalStart), zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
