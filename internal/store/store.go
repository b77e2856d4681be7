package store

import (
	"context"
	"errors"
	"time"

	"finsight/pkg/model"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when an optimistic reconciliation loses a
// race on a position row
var ErrVersionConflict = errors.New("version conflict")

// Reconciliation is the atomic outcome of one filled trade: the new state of
// a single (user, symbol) position, the recomputed portfolio summary, and the
// immutable order record. The whole struct commits in one transaction or not
// at all.
type Reconciliation struct {
	UserID string
	Symbol string

	// Position is the post-trade position. Nil means the position reached
	// zero quantity and its row must be deleted.
	Position *model.Position

	// ExpectedVersion is the version the position row had when the trade was
	// priced. Zero means the row must not exist yet. A mismatch at commit time
	// fails with ErrVersionConflict and no state changes.
	ExpectedVersion int64

	Summary model.PortfolioSummary
	Order   model.Order
}

// Store is the persistence boundary for prices, predictions, holdings and
// orders. Implementations must make ApplyReconciliation atomic.
type Store interface {
	// SavePricePoints upserts daily bars for a symbol; one row per (symbol, day)
	SavePricePoints(ctx context.Context, symbol string, bars []model.PricePoint) error

	// GetPricePoints returns a symbol's bars in [from, to], ascending
	GetPricePoints(ctx context.Context, symbol string, from, to time.Time) ([]model.PricePoint, error)

	// SavePrediction appends one prediction row
	SavePrediction(ctx context.Context, p model.Prediction) error

	// GetPredictions returns a symbol's predictions in [from, to], newest first
	GetPredictions(ctx context.Context, symbol string, from, to time.Time) ([]model.Prediction, error)

	// GetPosition returns a position and its current version, or ErrNotFound
	GetPosition(ctx context.Context, userID, symbol string) (*model.Position, int64, error)

	// ListPositions returns all of a user's open positions
	ListPositions(ctx context.Context, userID string) ([]model.Position, error)

	// GetSummary returns the user's portfolio summary, or ErrNotFound
	GetSummary(ctx context.Context, userID string) (*model.PortfolioSummary, error)

	// SaveSummary upserts the user's portfolio summary
	SaveSummary(ctx context.Context, s model.PortfolioSummary) error

	// SaveOrder appends one immutable order row (used for rejection audit
	// records; fills go through ApplyReconciliation)
	SaveOrder(ctx context.Context, o model.Order) error

	// ListOrders returns a user's most recent orders, newest first
	ListOrders(ctx context.Context, userID string, limit int) ([]model.Order, error)

	// ApplyReconciliation commits one trade's position, summary and order
	// atomically, honoring the optimistic version check
	ApplyReconciliation(ctx context.Context, r Reconciliation) error
}
