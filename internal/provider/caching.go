package provider

import (
	"context"
	"sync"
	"time"

	"finsight/pkg/model"
)

// CachingProvider wraps a Provider with an in-memory TTL cache. Quotes expire
// quickly; daily history is fetched once at the widest window and sliced for
// narrower requests so a batch of predictions costs one upstream call per
// symbol.
type CachingProvider struct {
	inner    Provider
	quoteTTL time.Duration
	maxBars  int

	mu      sync.Mutex
	quotes  map[string]cachedQuote
	history map[string][]model.PricePoint
}

type cachedQuote struct {
	quote   *model.Quote
	fetched time.Time
}

// NewCachingProvider creates a caching wrapper. maxBars is the history window
// to always fetch (use 250 to satisfy the SMA200 requirement).
func NewCachingProvider(inner Provider, quoteTTL time.Duration, maxBars int) *CachingProvider {
	return &CachingProvider{
		inner:    inner,
		quoteTTL: quoteTTL,
		maxBars:  maxBars,
		quotes:   make(map[string]cachedQuote),
		history:  make(map[string][]model.PricePoint),
	}
}

func (p *CachingProvider) Name() string      { return p.inner.Name() }
func (p *CachingProvider) IsAvailable() bool { return p.inner.IsAvailable() }
func (p *CachingProvider) RateLimit() int    { return p.inner.RateLimit() }

func (p *CachingProvider) GetQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	p.mu.Lock()
	if cached, ok := p.quotes[symbol]; ok && time.Since(cached.fetched) < p.quoteTTL {
		p.mu.Unlock()
		return cached.quote, nil
	}
	p.mu.Unlock()

	quote, err := p.inner.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.quotes[symbol] = cachedQuote{quote: quote, fetched: time.Now()}
	p.mu.Unlock()

	return quote, nil
}

func (p *CachingProvider) GetDailyHistory(ctx context.Context, symbol string, limit int) ([]model.PricePoint, error) {
	p.mu.Lock()
	if cached, ok := p.history[symbol]; ok {
		p.mu.Unlock()
		if len(cached) >= limit {
			return cached[len(cached)-limit:], nil
		}
		return cached, nil
	}
	p.mu.Unlock()

	fetchBars := p.maxBars
	if limit > fetchBars {
		fetchBars = limit
	}

	bars, err := p.inner.GetDailyHistory(ctx, symbol, fetchBars)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.history[symbol] = bars
	p.mu.Unlock()

	if len(bars) >= limit {
		return bars[len(bars)-limit:], nil
	}
	return bars, nil
}
