package config

import (
	"fmt"
	"os"
	"strings"
)

// BotConfig is everything the Discord front end and the worker share: the
// database, the market data feed, and the chat transport.
type BotConfig struct {
	DatabaseURL   string
	DiscordToken  string
	CommandPrefix string
	IEXBaseURL    string
	IEXToken      string
	Lookback      string
}

// WorkerConfig drives the scheduled jobs. The worker never talks to
// Discord, so the token is not part of it.
type WorkerConfig struct {
	DatabaseURL string
	IEXBaseURL  string
	IEXToken    string
	Lookback    string
}

type APIConfig struct {
	Addr        string
	DatabaseURL string
}

func LoadBotFromEnv() (BotConfig, error) {
	cfg := BotConfig{
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DiscordToken:  strings.TrimSpace(os.Getenv("STONKS_DISCORD_TOKEN")),
		CommandPrefix: envDefault("STONKS_COMMAND_PREFIX", "$"),
		IEXBaseURL:    strings.TrimRight(envDefault("STONKS_IEX_BASE_URL", "https://cloud.iexapis.com/stable"), "/"),
		IEXToken:      strings.TrimSpace(os.Getenv("STONKS_IEX_TOKEN")),
		Lookback:      envDefault("STONKS_LOOKBACK", "1m"),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.DiscordToken == "" {
		return cfg, fmt.Errorf("STONKS_DISCORD_TOKEN is required")
	}
	if cfg.IEXToken == "" {
		return cfg, fmt.Errorf("STONKS_IEX_TOKEN is required")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		IEXBaseURL:  strings.TrimRight(envDefault("STONKS_IEX_BASE_URL", "https://cloud.iexapis.com/stable"), "/"),
		IEXToken:    strings.TrimSpace(os.Getenv("STONKS_IEX_TOKEN")),
		Lookback:    envDefault("STONKS_LOOKBACK", "1m"),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.IEXToken == "" {
		return cfg, fmt.Errorf("STONKS_IEX_TOKEN is required")
	}
	return cfg, nil
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := strings.TrimSpace(os.Getenv("PORT"))
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("STONKS_API_ADDR", ":8080")
	}
	cfg := APIConfig{
		Addr:        addr,
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}
