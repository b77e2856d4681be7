package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"finsight/pkg/model"
)

// MemoryStore is an in-memory Store for tests and offline runs. Reconciliation
// holds the same atomicity contract as the database implementation: the
// version check and all three writes happen under one lock.
type MemoryStore struct {
	mu          sync.Mutex
	prices      map[string][]model.PricePoint // keyed by symbol
	predictions map[string][]model.Prediction
	positions   map[string]positionRow // keyed by userID|symbol
	summaries   map[string]model.PortfolioSummary
	orders      []model.Order
}

type positionRow struct {
	position model.Position
	version  int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prices:      make(map[string][]model.PricePoint),
		predictions: make(map[string][]model.Prediction),
		positions:   make(map[string]positionRow),
		summaries:   make(map[string]model.PortfolioSummary),
	}
}

func posKey(userID, symbol string) string {
	return userID + "|" + symbol
}

func (m *MemoryStore) SavePricePoints(ctx context.Context, symbol string, bars []model.PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.prices[symbol]
	byDay := make(map[string]model.PricePoint, len(existing)+len(bars))
	for _, b := range existing {
		byDay[b.Time.Format("2006-01-02")] = b
	}
	for _, b := range bars {
		byDay[b.Time.Format("2006-01-02")] = b
	}

	merged := make([]model.PricePoint, 0, len(byDay))
	for _, b := range byDay {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Time.Before(merged[j].Time) })
	m.prices[symbol] = merged
	return nil
}

func (m *MemoryStore) GetPricePoints(ctx context.Context, symbol string, from, to time.Time) ([]model.PricePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.PricePoint
	for _, b := range m.prices[symbol] {
		if b.Time.Before(from) || b.Time.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *MemoryStore) SavePrediction(ctx context.Context, p model.Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions[p.Symbol] = append(m.predictions[p.Symbol], p)
	return nil
}

func (m *MemoryStore) GetPredictions(ctx context.Context, symbol string, from, to time.Time) ([]model.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Prediction
	for _, p := range m.predictions[symbol] {
		if p.PredictionDate.Before(from) || p.PredictionDate.After(to) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PredictionDate.After(out[j].PredictionDate) })
	return out, nil
}

func (m *MemoryStore) GetPosition(ctx context.Context, userID, symbol string) (*model.Position, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.positions[posKey(userID, symbol)]
	if !ok {
		return nil, 0, ErrNotFound
	}
	p := row.position
	return &p, row.version, nil
}

func (m *MemoryStore) ListPositions(ctx context.Context, userID string) ([]model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Position
	for _, row := range m.positions {
		if row.position.UserID == userID {
			out = append(out, row.position)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *MemoryStore) GetSummary(ctx context.Context, userID string) (*model.PortfolioSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.summaries[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) SaveSummary(ctx context.Context, s model.PortfolioSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[s.UserID] = s
	return nil
}

func (m *MemoryStore) SaveOrder(ctx context.Context, o model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, o)
	return nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Order
	for i := len(m.orders) - 1; i >= 0; i-- {
		if m.orders[i].UserID != userID {
			continue
		}
		out = append(out, m.orders[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) ApplyReconciliation(ctx context.Context, r Reconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := posKey(r.UserID, r.Symbol)
	row, exists := m.positions[key]

	if r.ExpectedVersion == 0 {
		if exists {
			return ErrVersionConflict
		}
	} else if !exists || row.version != r.ExpectedVersion {
		return ErrVersionConflict
	}

	if r.Position == nil {
		delete(m.positions, key)
	} else {
		m.positions[key] = positionRow{position: *r.Position, version: r.ExpectedVersion + 1}
	}
	m.summaries[r.UserID] = r.Summary
	m.orders = append(m.orders, r.Order)
	return nil
}
