package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadEnv reads a .env file into the process environment without replacing
// variables that are already set. A missing file is not an error.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type envOverrides struct {
	FeedURL        string `env:"LIVECHART_FEED_URL"`
	FeedPort       string `env:"LIVECHART_FEED_PORT"`
	FeedSymbol     string `env:"LIVECHART_FEED_SYMBOL"`
	TimescaleDSN   string `env:"LIVECHART_TIMESCALE_DSN"`
	RedisPassword  string `env:"LIVECHART_REDIS_PASSWORD"`
	TelegramToken  string `env:"LIVECHART_TELEGRAM_TOKEN"`
	TelegramChatID string `env:"LIVECHART_TELEGRAM_CHAT_ID"`
}

func applyEnvOverrides(cfg *Config) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return err
	}
	setIfPresent(&cfg.Feed.URL, overrides.FeedURL)
	setIfPresent(&cfg.Feed.Port, overrides.FeedPort)
	setIfPresent(&cfg.Feed.Symbol, overrides.FeedSymbol)
	setIfPresent(&cfg.Timescale.DSN, overrides.TimescaleDSN)
	setIfPresent(&cfg.Publisher.Redis.Password, overrides.RedisPassword)
	setIfPresent(&cfg.Telegram.Token, overrides.TelegramToken)
	setIfPresent(&cfg.Telegram.ChatID, overrides.TelegramChatID)
	return nil
}

func setIfPresent(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
