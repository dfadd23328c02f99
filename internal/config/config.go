package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Feed      FeedConfig      `yaml:"feed"`
	Chart     ChartConfig     `yaml:"chart"`
	State     StateConfig     `yaml:"state"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Publisher PublisherConfig `yaml:"publisher"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type FeedConfig struct {
	// URL overrides the address derived from PageURL, Port and Path.
	URL          string          `yaml:"url"`
	PageURL      string          `yaml:"page_url"`
	Port         string          `yaml:"port"`
	Path         string          `yaml:"path"`
	Symbol       string          `yaml:"symbol"`
	PingInterval time.Duration   `yaml:"ping_interval"`
	Reconnect    ReconnectConfig `yaml:"reconnect"`
}

type ReconnectConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MinBackoff  time.Duration `yaml:"min_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	Factor      float64       `yaml:"factor"`
	Jitter      time.Duration `yaml:"jitter"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type ChartConfig struct {
	Listen         string `yaml:"listen"`
	ViewMode       string `yaml:"view_mode"`
	Width          int    `yaml:"width"`
	ViewportHeight int    `yaml:"viewport_height"`
	OrderPolicy    string `yaml:"order_policy"`
	HistorySize    int    `yaml:"history_size"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	QueueSize    int           `yaml:"queue_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type PublisherConfig struct {
	Listen   string        `yaml:"listen"`
	Path     string        `yaml:"path"`
	Symbols  []string      `yaml:"symbols"`
	Interval time.Duration `yaml:"interval"`
	Broker   string        `yaml:"broker"`
	Redis    RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	Channel     string        `yaml:"channel"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"

	defaultFeedPath = "/ws/market/"
)

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Feed.PageURL == "" {
		cfg.Feed.PageURL = "http://localhost:3000"
	}
	if cfg.Feed.Port == "" {
		cfg.Feed.Port = "8000"
	}
	if cfg.Feed.Path == "" {
		cfg.Feed.Path = defaultFeedPath
	}
	if cfg.Feed.Symbol == "" {
		cfg.Feed.Symbol = "EURUSD"
	}
	if cfg.Feed.PingInterval == 0 {
		cfg.Feed.PingInterval = 30 * time.Second
	}
	if cfg.Feed.Reconnect.MinBackoff == 0 {
		cfg.Feed.Reconnect.MinBackoff = 500 * time.Millisecond
	}
	if cfg.Feed.Reconnect.MaxBackoff == 0 {
		cfg.Feed.Reconnect.MaxBackoff = 30 * time.Second
	}
	if cfg.Feed.Reconnect.Factor == 0 {
		cfg.Feed.Reconnect.Factor = 2
	}
	if cfg.Chart.Listen == "" {
		cfg.Chart.Listen = "127.0.0.1:8080"
	}
	if cfg.Chart.ViewMode == "" {
		cfg.Chart.ViewMode = "default"
	}
	if cfg.Chart.Width == 0 {
		cfg.Chart.Width = 800
	}
	if cfg.Chart.OrderPolicy == "" {
		cfg.Chart.OrderPolicy = "arrival"
	}
	if cfg.Chart.HistorySize == 0 {
		cfg.Chart.HistorySize = 500
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/livechart.db"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "market.candles.1m"
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 5 * time.Second
	}
	if cfg.Publisher.Listen == "" {
		cfg.Publisher.Listen = ":" + cfg.Feed.Port
	}
	if cfg.Publisher.Path == "" {
		cfg.Publisher.Path = cfg.Feed.Path
	}
	if len(cfg.Publisher.Symbols) == 0 {
		cfg.Publisher.Symbols = []string{cfg.Feed.Symbol}
	}
	if cfg.Publisher.Interval == 0 {
		cfg.Publisher.Interval = 500 * time.Millisecond
	}
	if cfg.Publisher.Broker == "" {
		cfg.Publisher.Broker = BrokerMemory
	}
	if cfg.Publisher.Redis.Addr == "" {
		cfg.Publisher.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Publisher.Redis.Channel == "" {
		cfg.Publisher.Redis.Channel = "market_broadcast"
	}
	if cfg.Publisher.Redis.DialTimeout == 0 {
		cfg.Publisher.Redis.DialTimeout = 5 * time.Second
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Feed.Symbol) == "" {
		return errors.New("feed.symbol is required")
	}
	if !strings.HasPrefix(cfg.Feed.Path, "/") {
		return errors.New("feed.path must start with /")
	}
	if cfg.Feed.PingInterval < 0 {
		return errors.New("feed.ping_interval must be >= 0")
	}
	reconnect := cfg.Feed.Reconnect
	if reconnect.MinBackoff < 0 || reconnect.MaxBackoff < 0 || reconnect.Jitter < 0 {
		return errors.New("feed.reconnect backoff values must be >= 0")
	}
	if reconnect.MaxBackoff < reconnect.MinBackoff {
		return errors.New("feed.reconnect.max_backoff must be >= min_backoff")
	}
	if reconnect.Factor < 1 {
		return errors.New("feed.reconnect.factor must be >= 1")
	}
	if reconnect.MaxAttempts < 0 {
		return errors.New("feed.reconnect.max_attempts must be >= 0")
	}
	switch cfg.Chart.ViewMode {
	case "compact", "default", "expanded", "fullscreen":
	default:
		return fmt.Errorf("chart.view_mode %q is not one of compact, default, expanded, fullscreen", cfg.Chart.ViewMode)
	}
	switch strings.ToLower(cfg.Chart.OrderPolicy) {
	case "arrival", "drop_stale":
	default:
		return fmt.Errorf("chart.order_policy %q is not one of arrival, drop_stale", cfg.Chart.OrderPolicy)
	}
	if cfg.Chart.Width < 0 || cfg.Chart.ViewportHeight < 0 {
		return errors.New("chart dimensions must be >= 0")
	}
	if cfg.Chart.HistorySize < 0 {
		return errors.New("chart.history_size must be >= 0")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	if cfg.Telegram.Enabled && (strings.TrimSpace(cfg.Telegram.Token) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Publisher.Interval < 0 {
		return errors.New("publisher.interval must be >= 0")
	}
	switch cfg.Publisher.Broker {
	case BrokerMemory, BrokerRedis:
	default:
		return fmt.Errorf("publisher.broker %q is not one of memory, redis", cfg.Publisher.Broker)
	}
	return nil
}
