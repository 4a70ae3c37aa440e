package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Alpaca struct {
	Enabled    bool   `json:"enabled"`
	APIKey     string `json:"api_key"`
	APISecret  string `json:"api_secret"`
	DataURL    string `json:"data_url"`
	NewsURL    string `json:"news_url"`
	TradeURL   string `json:"trade_url"`
	Feed       string `json:"feed"`
	Paper      bool   `json:"paper"`
	MaxRetries int    `json:"max_retries"`
}

type Yahoo struct {
	Enabled    bool   `json:"enabled"`
	ChartURL   string `json:"chart_url"`
	SummaryURL string `json:"summary_url"`
	MaxRetries int    `json:"max_retries"`
}

type AlphaVantage struct {
	Enabled              bool   `json:"enabled"`
	APIKey               string `json:"api_key"`
	Endpoint             string `json:"endpoint"`
	OutputSize           string `json:"output_size"`
	MaxRequestsPerMinute int    `json:"max_requests_per_minute"`
	Burst                int    `json:"burst"`
	MaxRetries           int    `json:"max_retries"`
}

type NewsAPI struct {
	Enabled               bool   `json:"enabled"`
	APIKey                string `json:"api_key"`
	Endpoint              string `json:"endpoint"`
	PageSize              int    `json:"page_size"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec"`
	MaxRetries            int    `json:"max_retries"`
}

type Cache struct {
	TTLSeconds int `json:"ttl_sec"`
	MaxEntries int `json:"max_entries"`
}

type Recorder struct {
	Path string `json:"path"`
}

type Config struct {
	Server       Server       `json:"server"`
	Alpaca       Alpaca       `json:"alpaca"`
	Yahoo        Yahoo        `json:"yahoo"`
	AlphaVantage AlphaVantage `json:"alphavantage"`
	NewsAPI      NewsAPI      `json:"newsapi"`
	Cache        Cache        `json:"cache"`
	Recorder     Recorder     `json:"recorder"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 30},
		Alpaca: Alpaca{
			Enabled:    true,
			Feed:       "iex",
			Paper:      true,
			MaxRetries: 3,
		},
		Yahoo: Yahoo{
			Enabled:    true,
			MaxRetries: 3,
		},
		AlphaVantage: AlphaVantage{
			Enabled:              true,
			OutputSize:           "full",
			MaxRequestsPerMinute: 5,
			Burst:                1,
			MaxRetries:           3,
		},
		NewsAPI: NewsAPI{
			Enabled:               true,
			PageSize:              100,
			MinRequestIntervalSec: 1,
			MaxRetries:            3,
		},
		Cache: Cache{
			TTLSeconds: 0, // never expire; historical windows are immutable
			MaxEntries: 0,
		},
	}
}

// Load reads JSON config from path. If path is empty or file does not exist,
// it returns defaults. Environment variables override select fields for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("ALPACA_NEWS_URL"); v != "" {
		cfg.Alpaca.NewsURL = v
	}
	if v := os.Getenv("ALPACA_TRADE_URL"); v != "" {
		cfg.Alpaca.TradeURL = v
	}
	if v := os.Getenv("ALPACA_FEED"); v != "" {
		cfg.Alpaca.Feed = v
	}
	if v := os.Getenv("ALPACA_PAPER"); v != "" {
		if b, ok := parseBool(v); ok {
			cfg.Alpaca.Paper = b
		}
	}
	if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		cfg.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("ALPHA_VANTAGE_MAX_RPM"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.AlphaVantage.MaxRequestsPerMinute = x
		}
	}
	if v := os.Getenv("NEWS_API_KEY"); v != "" {
		cfg.NewsAPI.APIKey = v
	}
	if v := os.Getenv("NEWS_API_MIN_INTERVAL_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.NewsAPI.MinRequestIntervalSec = x
		}
	}
	if v := os.Getenv("CACHE_TTL_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.Cache.TTLSeconds = x
		}
	}
	if v := os.Getenv("CACHE_MAX_ENTRIES"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Cache.MaxEntries = x
		}
	}
	if v := os.Getenv("RECORDER_DB"); v != "" {
		cfg.Recorder.Path = v
	}
}

func parseBool(v string) (value, ok bool) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y":
		return true, true
	case "0", "false", "no", "n":
		return false, true
	}
	return false, false
}
