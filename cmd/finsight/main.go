package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"finsight/internal/config"
	"finsight/internal/provider"
	"finsight/internal/store"
)

var cfgFile string

func main() {
	// A local .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[MAIN] skipping .env: %v", err)
	}

	rootCmd := &cobra.Command{
		Use:   "finsight",
		Short: "Personal finance dashboard: predictions, paper trading, assistant",
		Long: `Finsight predicts short-term stock moves from technical indicators and
runs a paper-trading portfolio against live quotes.

Examples:
  finsight predict --symbols AAPL,MSFT,GOOGL
  finsight trade buy 10 AAPL
  finsight assist "should I buy more apple?"
  finsight portfolio
  finsight serve --port 8080`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")

	rootCmd.AddCommand(
		newPredictCmd(),
		newTradeCmd(),
		newAssistCmd(),
		newPortfolioCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// buildProvider assembles the quote provider chain: configured providers with
// fallback, wrapped in a Redis or in-memory cache
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	var providers []provider.Provider

	// Finnhub (primary - higher rate limit)
	if cfg.API.Finnhub.Key != "" {
		providers = append(providers, provider.NewFinnhubProvider(cfg.API.Finnhub.Key, cfg.API.Finnhub.RateLimit))
	}

	// Alpha Vantage (secondary)
	if cfg.API.AlphaVantage.Key != "" {
		providers = append(providers, provider.NewAlphaVantageProvider(cfg.API.AlphaVantage.Key, cfg.API.AlphaVantage.RateLimit))
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no API providers available. Set FINNHUB_API_KEY or ALPHAVANTAGE_API_KEY environment variable")
	}

	base := provider.NewFallbackProvider(providers...)

	if cfg.Store.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		return provider.NewRedisCachingProvider(base, rdb, cfg.Store.CacheTTL, 4*time.Hour), nil
	}

	return provider.NewCachingProvider(base, cfg.Store.CacheTTL, 250), nil
}

// buildStore opens the persistent store, falling back to memory when no
// database is configured
func buildStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store.PostgresDSN == "" {
		log.Printf("[MAIN] no DATABASE_URL set, state will not survive restarts")
		return store.NewMemoryStore(), nil
	}

	st, err := store.OpenGorm(cfg.Store.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return st, nil
}
