package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"mngfx-livechart/internal/market"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT NOT NULL,
			interval_start INTEGER NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			PRIMARY KEY (symbol, interval_start)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *Store) SaveCandle(ctx context.Context, c market.Candle) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO candles (symbol, interval_start, open, high, low, close)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol, interval_start) DO UPDATE SET
	open = excluded.open, high = excluded.high, low = excluded.low, close = excluded.close`,
		c.Symbol, c.IntervalStart, c.Open, c.High, c.Low, c.Close)
	return err
}

func (s *Store) RecentCandles(ctx context.Context, symbol string, limit int) ([]market.Candle, error) {
	query := `SELECT interval_start, open, high, low, close FROM candles WHERE symbol = ? ORDER BY interval_start DESC`
	args := []any{symbol}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Candle
	for rows.Next() {
		c := market.Candle{Symbol: symbol}
		if err := rows.Scan(&c.IntervalStart, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) PruneCandles(ctx context.Context, symbol string, keep int) error {
	if keep < 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM candles WHERE symbol = ? AND interval_start NOT IN (
	SELECT interval_start FROM candles WHERE symbol = ? ORDER BY interval_start DESC LIMIT ?
)`, symbol, symbol, keep)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
