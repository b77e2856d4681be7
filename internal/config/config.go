package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	API     APIConfig     `yaml:"api"`
	Predict PredictConfig `yaml:"predict"`
	Trading TradingConfig `yaml:"trading"`
	Store   StoreConfig   `yaml:"store"`
	Web     WebConfig     `yaml:"web"`
}

// APIConfig holds external API settings
type APIConfig struct {
	Finnhub      ProviderConfig `yaml:"finnhub"`
	AlphaVantage ProviderConfig `yaml:"alphavantage"`
	GeminiKey    string         `yaml:"gemini_key"`
}

// ProviderConfig holds individual provider settings
type ProviderConfig struct {
	Key       string `yaml:"key"`
	RateLimit int    `yaml:"rate_limit"` // requests per minute
}

// PredictConfig holds prediction batch settings
type PredictConfig struct {
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
}

// TradingConfig holds trade engine settings
type TradingConfig struct {
	UserID       string  `yaml:"user_id"`
	StartingCash float64 `yaml:"starting_cash"`
}

// StoreConfig holds persistence settings. An empty PostgresDSN keeps
// everything in memory.
type StoreConfig struct {
	PostgresDSN string        `yaml:"postgres_dsn"`
	RedisAddr   string        `yaml:"redis_addr"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// WebConfig holds the dashboard API settings
type WebConfig struct {
	Port int `yaml:"port"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Finnhub: ProviderConfig{
				Key:       os.Getenv("FINNHUB_API_KEY"),
				RateLimit: 60,
			},
			AlphaVantage: ProviderConfig{
				Key:       os.Getenv("ALPHAVANTAGE_API_KEY"),
				RateLimit: 5,
			},
			GeminiKey: os.Getenv("GEMINI_API_KEY"),
		},
		Predict: PredictConfig{
			Workers: 4,
			Timeout: 5 * time.Minute,
		},
		Trading: TradingConfig{
			UserID:       "default",
			StartingCash: 100000,
		},
		Store: StoreConfig{
			PostgresDSN: os.Getenv("DATABASE_URL"),
			RedisAddr:   os.Getenv("REDIS_ADDR"),
			CacheTTL:    time.Minute,
		},
		Web: WebConfig{
			Port: 8080,
		},
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if file doesn't exist
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Override with environment variables if set
	if key := os.Getenv("FINNHUB_API_KEY"); key != "" {
		cfg.API.Finnhub.Key = key
	}
	if key := os.Getenv("ALPHAVANTAGE_API_KEY"); key != "" {
		cfg.API.AlphaVantage.Key = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.API.GeminiKey = key
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Store.PostgresDSN = dsn
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Store.RedisAddr = addr
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.API.Finnhub.Key == "" && c.API.AlphaVantage.Key == "" {
		return fmt.Errorf("at least one API key (FINNHUB_API_KEY or ALPHAVANTAGE_API_KEY) is required")
	}
	if c.Predict.Workers < 1 {
		return fmt.Errorf("predict workers must be at least 1")
	}
	if c.Trading.StartingCash < 0 {
		return fmt.Errorf("starting_cash must not be negative")
	}
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web port %d", c.Web.Port)
	}
	return nil
}
