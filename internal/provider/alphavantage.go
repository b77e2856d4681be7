package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"finsight/internal/ratelimit"
	"finsight/pkg/model"
)

const alphaVantageBaseURL = "https://www.alphavantage.co/query"

// AlphaVantageProvider implements the Provider interface for Alpha Vantage
type AlphaVantageProvider struct {
	apiKey    string
	client    *http.Client
	limiter   *ratelimit.Limiter
	rateLimit int
}

// NewAlphaVantageProvider creates a new Alpha Vantage provider
func NewAlphaVantageProvider(apiKey string, rateLimitPerMin int) *AlphaVantageProvider {
	return &AlphaVantageProvider{
		apiKey:    apiKey,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   ratelimit.NewLimiter("alphavantage", rateLimitPerMin),
		rateLimit: rateLimitPerMin,
	}
}

// Name returns the provider name
func (p *AlphaVantageProvider) Name() string {
	return "alphavantage"
}

// IsAvailable checks if the provider has an API key
func (p *AlphaVantageProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// RateLimit returns the rate limit per minute
func (p *AlphaVantageProvider) RateLimit() int {
	return p.rateLimit
}

// alphaVantageResponse represents the API response structure
type alphaVantageResponse struct {
	GlobalQuote struct {
		Price         string `json:"05. price"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
	TimeSeriesDaily map[string]map[string]string `json:"Time Series (Daily)"`
	Note            string                       `json:"Note"` // Rate limit message
	Error           string                       `json:"Error Message"`
}

func (p *AlphaVantageProvider) fetch(ctx context.Context, url string) (*alphaVantageResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		p.limiter.SignalRateLimited()
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("rate limited"), Retryable: true}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("status %d", resp.StatusCode), Retryable: false}
	}

	p.limiter.ResetBackoff()

	var data alphaVantageResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if data.Note != "" {
		p.limiter.SignalRateLimited()
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("rate limited: %s", data.Note), Retryable: true}
	}

	if data.Error != "" {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%s", data.Error), Retryable: false}
	}

	return &data, nil
}

// GetQuote fetches the current price via the GLOBAL_QUOTE endpoint
func (p *AlphaVantageProvider) GetQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	url := fmt.Sprintf("%s?function=GLOBAL_QUOTE&symbol=%s&apikey=%s", alphaVantageBaseURL, symbol, p.apiKey)

	data, err := p.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if data.GlobalQuote.Price == "" {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("no quote for %s", symbol), Retryable: false}
	}

	price, err := strconv.ParseFloat(data.GlobalQuote.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing price %q: %w", data.GlobalQuote.Price, err)
	}

	change, _ := strconv.ParseFloat(data.GlobalQuote.Change, 64)
	pctStr := data.GlobalQuote.ChangePercent
	if n := len(pctStr); n > 0 && pctStr[n-1] == '%' {
		pctStr = pctStr[:n-1]
	}
	changePct, _ := strconv.ParseFloat(pctStr, 64)

	return &model.Quote{
		Symbol:        symbol,
		Price:         price,
		Change:        change,
		ChangePercent: changePct,
	}, nil
}

// GetDailyHistory fetches daily bars via the TIME_SERIES_DAILY endpoint
func (p *AlphaVantageProvider) GetDailyHistory(ctx context.Context, symbol string, limit int) ([]model.PricePoint, error) {
	outputSize := "compact" // last 100 bars
	if limit > 100 {
		outputSize = "full"
	}
	url := fmt.Sprintf("%s?function=TIME_SERIES_DAILY&symbol=%s&outputsize=%s&apikey=%s",
		alphaVantageBaseURL, symbol, outputSize, p.apiKey)

	data, err := p.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if len(data.TimeSeriesDaily) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("no data available"), Retryable: false}
	}

	bars := make([]model.PricePoint, 0, len(data.TimeSeriesDaily))
	for dateStr, values := range data.TimeSeriesDaily {
		t, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}

		open, _ := strconv.ParseFloat(values["1. open"], 64)
		high, _ := strconv.ParseFloat(values["2. high"], 64)
		low, _ := strconv.ParseFloat(values["3. low"], 64)
		closePrice, _ := strconv.ParseFloat(values["4. close"], 64)
		volume, _ := strconv.ParseInt(values["5. volume"], 10, 64)

		bars = append(bars, model.PricePoint{
			Time:   t,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Time.Before(bars[j].Time)
	})

	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}

	return bars, nil
}
