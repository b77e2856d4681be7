package provider

import (
	"context"

	"finsight/pkg/model"
)

// Provider defines the interface for market data providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// GetQuote fetches the current price for a symbol
	GetQuote(ctx context.Context, symbol string) (*model.Quote, error)

	// GetDailyHistory fetches up to limit daily bars for a symbol,
	// ordered ascending by time
	GetDailyHistory(ctx context.Context, symbol string, limit int) ([]model.PricePoint, error)

	// IsAvailable checks if the provider is usable (has a valid API key)
	IsAvailable() bool

	// RateLimit returns the rate limit per minute
	RateLimit() int
}

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// FallbackProvider tries multiple providers in order
type FallbackProvider struct {
	providers []Provider
}

// NewFallbackProvider creates a new fallback provider from the available ones
func NewFallbackProvider(providers ...Provider) *FallbackProvider {
	available := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.IsAvailable() {
			available = append(available, p)
		}
	}
	return &FallbackProvider{providers: available}
}

// Name returns the combined provider name
func (f *FallbackProvider) Name() string {
	return "fallback"
}

// GetQuote tries each provider in order until one succeeds
func (f *FallbackProvider) GetQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	var lastErr error
	for _, p := range f.providers {
		quote, err := p.GetQuote(ctx, symbol)
		if err == nil {
			return quote, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// GetDailyHistory tries each provider in order
func (f *FallbackProvider) GetDailyHistory(ctx context.Context, symbol string, limit int) ([]model.PricePoint, error) {
	var lastErr error
	for _, p := range f.providers {
		bars, err := p.GetDailyHistory(ctx, symbol, limit)
		if err == nil {
			return bars, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// IsAvailable returns true if any provider is available
func (f *FallbackProvider) IsAvailable() bool {
	return len(f.providers) > 0
}

// RateLimit returns the highest rate limit among providers
func (f *FallbackProvider) RateLimit() int {
	maxRate := 0
	for _, p := range f.providers {
		if p.RateLimit() > maxRate {
			maxRate = p.RateLimit()
		}
	}
	return maxRate
}

// Providers returns the list of underlying providers
func (f *FallbackProvider) Providers() []Provider {
	return f.providers
}
