// Package config loads the YAML runtime configuration, filling defaults
// for anything the file leaves out. The API key can also arrive via the
// BIRDEYE_API_KEY environment variable, which wins over the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tokenradar/application/scoring"
)

// Config is the full runtime configuration.
type Config struct {
	Birdeye   BirdeyeConfig   `yaml:"birdeye"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry"`
	Cache     CacheConfig     `yaml:"cache"`
	Collect   CollectConfig   `yaml:"collect"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

type BirdeyeConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type RateLimitConfig struct {
	MaxRequests    int `yaml:"max_requests"`
	WindowSeconds  int `yaml:"window_seconds"`
	PaceIntervalMs int `yaml:"pace_interval_ms"`
}

type RetryConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`
	BackoffFactor   float64 `yaml:"backoff_factor_seconds"`
	BreakerFailures int     `yaml:"breaker_failures"`
	BreakerTimeout  int     `yaml:"breaker_timeout_seconds"`
}

type CacheConfig struct {
	Backend             string `yaml:"backend"` // memory | file | redis | postgres
	Dir                 string `yaml:"dir"`
	TokenMaxAgeMinutes  int    `yaml:"token_max_age_minutes"`
	TraderMaxAgeSeconds int    `yaml:"trader_max_age_seconds"`
	RedisAddr           string `yaml:"redis_addr"`
	RedisPassword       string `yaml:"redis_password"`
	RedisDB             int    `yaml:"redis_db"`
	PostgresDSN         string `yaml:"postgres_dsn"`
}

type CollectConfig struct {
	TargetCount      int  `yaml:"target_count"`
	BatchSize        int  `yaml:"batch_size"`
	Enrich           bool `yaml:"enrich"`
	TraderTradeLimit int  `yaml:"trader_trade_limit"`
}

type ScoringConfig struct {
	Weights    scoring.Weights    `yaml:"weights"`
	Thresholds scoring.Thresholds `yaml:"thresholds"`
	Filter     *scoring.Filter    `yaml:"filter"`
	NoFilter   bool               `yaml:"no_filter"`
}

type MonitorConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Birdeye: BirdeyeConfig{
			BaseURL:        "https://public-api.birdeye.so",
			TimeoutSeconds: 10,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:    60,
			WindowSeconds:  60,
			PaceIntervalMs: 1000,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			BackoffFactor:   0.3,
			BreakerFailures: 5,
			BreakerTimeout:  30,
		},
		Cache: CacheConfig{
			Backend:             "file",
			Dir:                 "data/snapshots",
			TokenMaxAgeMinutes:  30,
			TraderMaxAgeSeconds: 60,
		},
		Collect: CollectConfig{
			TargetCount:      200,
			BatchSize:        50,
			TraderTradeLimit: 25,
		},
		Scoring: ScoringConfig{
			Thresholds: scoring.DefaultThresholds,
		},
		Monitor: MonitorConfig{
			ListenAddr: ":8900",
		},
	}
}

// Load reads path over the defaults. An empty path yields Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if key := os.Getenv("BIRDEYE_API_KEY"); key != "" {
		cfg.Birdeye.APIKey = key
	}
	return cfg, nil
}

// Timeout returns the HTTP timeout as a duration.
func (b BirdeyeConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// Window returns the budget window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// PaceInterval returns the inter-page pacing interval.
func (r RateLimitConfig) PaceInterval() time.Duration {
	return time.Duration(r.PaceIntervalMs) * time.Millisecond
}

// Backoff returns the retry backoff factor as a duration.
func (r RetryConfig) Backoff() time.Duration {
	return time.Duration(r.BackoffFactor * float64(time.Second))
}

// TokenMaxAge returns the token snapshot expiry.
func (c CacheConfig) TokenMaxAge() time.Duration {
	return time.Duration(c.TokenMaxAgeMinutes) * time.Minute
}

// TraderMaxAge returns the trader snapshot expiry.
func (c CacheConfig) TraderMaxAge() time.Duration {
	return time.Duration(c.TraderMaxAgeSeconds) * time.Second
}
