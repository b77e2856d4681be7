package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"finsight/pkg/model"
)

// RedisCachingProvider wraps a Provider with a Redis-backed TTL cache so
// several dashboard processes share one upstream quota. Cache failures fall
// through to the inner provider; a dead Redis must not take quotes down.
type RedisCachingProvider struct {
	inner      Provider
	rdb        *redis.Client
	quoteTTL   time.Duration
	historyTTL time.Duration
}

// NewRedisCachingProvider creates a Redis caching wrapper
func NewRedisCachingProvider(inner Provider, rdb *redis.Client, quoteTTL, historyTTL time.Duration) *RedisCachingProvider {
	return &RedisCachingProvider{
		inner:      inner,
		rdb:        rdb,
		quoteTTL:   quoteTTL,
		historyTTL: historyTTL,
	}
}

func (p *RedisCachingProvider) Name() string      { return p.inner.Name() }
func (p *RedisCachingProvider) IsAvailable() bool { return p.inner.IsAvailable() }
func (p *RedisCachingProvider) RateLimit() int    { return p.inner.RateLimit() }

func quoteKey(symbol string) string {
	return fmt.Sprintf("stock:%s:quote", symbol)
}

func historyKey(symbol string, limit int) string {
	return fmt.Sprintf("stock:%s:history:%d", symbol, limit)
}

func (p *RedisCachingProvider) GetQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	if data, err := p.rdb.Get(ctx, quoteKey(symbol)).Bytes(); err == nil {
		var quote model.Quote
		if err := json.Unmarshal(data, &quote); err == nil {
			return &quote, nil
		}
	}

	quote, err := p.inner.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(quote); err == nil {
		p.rdb.Set(ctx, quoteKey(symbol), data, p.quoteTTL)
	}

	return quote, nil
}

func (p *RedisCachingProvider) GetDailyHistory(ctx context.Context, symbol string, limit int) ([]model.PricePoint, error) {
	if data, err := p.rdb.Get(ctx, historyKey(symbol, limit)).Bytes(); err == nil {
		var bars []model.PricePoint
		if err := json.Unmarshal(data, &bars); err == nil && len(bars) > 0 {
			return bars, nil
		}
	}

	bars, err := p.inner.GetDailyHistory(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(bars); err == nil {
		p.rdb.Set(ctx, historyKey(symbol, limit), data, p.historyTTL)
	}

	return bars, nil
}
