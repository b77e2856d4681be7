package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"finsight/pkg/model"
)

func day(d int) time.Time {
	return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func TestSavePricePointsDedupesByDay(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	first := []model.PricePoint{
		{Time: day(0), Close: 100},
		{Time: day(1), Close: 101},
	}
	if err := st.SavePricePoints(ctx, "AAPL", first); err != nil {
		t.Fatal(err)
	}

	// Re-save day 1 with a corrected close plus a new day
	second := []model.PricePoint{
		{Time: day(1), Close: 102},
		{Time: day(2), Close: 103},
	}
	if err := st.SavePricePoints(ctx, "AAPL", second); err != nil {
		t.Fatal(err)
	}

	bars, err := st.GetPricePoints(ctx, "AAPL", day(0), day(2))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 3 {
		t.Fatalf("Expected 3 bars, got %d", len(bars))
	}
	if bars[1].Close != 102 {
		t.Errorf("Expected re-saved bar to win, got close %f", bars[1].Close)
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i-1].Time.Before(bars[i].Time) {
			t.Error("Bars must come back ascending")
		}
	}
}

func TestGetPredictionsNewestFirst(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := st.SavePrediction(ctx, model.Prediction{
			Symbol:         "AAPL",
			PredictedPrice: float64(100 + i),
			PredictionDate: day(i),
		}); err != nil {
			t.Fatal(err)
		}
	}

	preds, err := st.GetPredictions(ctx, "AAPL", day(0), day(5))
	if err != nil {
		t.Fatal(err)
	}
	if len(preds) != 3 {
		t.Fatalf("Expected 3 predictions, got %d", len(preds))
	}
	if !preds[0].PredictionDate.After(preds[1].PredictionDate) {
		t.Error("Predictions must come back newest first")
	}
}

func reconciliation(userID, symbol string, pos *model.Position, expected int64) Reconciliation {
	return Reconciliation{
		UserID:          userID,
		Symbol:          symbol,
		Position:        pos,
		ExpectedVersion: expected,
		Summary:         model.PortfolioSummary{UserID: userID, Cash: 1000},
		Order: model.Order{
			OrderID: "o-" + symbol,
			UserID:  userID,
			Symbol:  symbol,
			Status:  model.OrderFilled,
		},
	}
}

func TestApplyReconciliationCreate(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	pos := &model.Position{UserID: "u1", Symbol: "AAPL", Quantity: 10, CostBasis: 100}
	if err := st.ApplyReconciliation(ctx, reconciliation("u1", "AAPL", pos, 0)); err != nil {
		t.Fatalf("ApplyReconciliation: %v", err)
	}

	got, version, err := st.GetPosition(ctx, "u1", "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if got.Quantity != 10 || version != 1 {
		t.Errorf("Expected qty 10 at version 1, got %d at %d", got.Quantity, version)
	}

	// Summary and order landed in the same commit
	if _, err := st.GetSummary(ctx, "u1"); err != nil {
		t.Errorf("Summary missing after reconciliation: %v", err)
	}
	orders, _ := st.ListOrders(ctx, "u1", 0)
	if len(orders) != 1 {
		t.Errorf("Expected 1 order, got %d", len(orders))
	}
}

func TestApplyReconciliationCreateConflictsWithExistingRow(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	pos := &model.Position{UserID: "u1", Symbol: "AAPL", Quantity: 10}
	if err := st.ApplyReconciliation(ctx, reconciliation("u1", "AAPL", pos, 0)); err != nil {
		t.Fatal(err)
	}

	err := st.ApplyReconciliation(ctx, reconciliation("u1", "AAPL", pos, 0))
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("Expected ErrVersionConflict, got %v", err)
	}
}

func TestApplyReconciliationStaleVersionConflicts(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	pos := &model.Position{UserID: "u1", Symbol: "AAPL", Quantity: 10}
	if err := st.ApplyReconciliation(ctx, reconciliation("u1", "AAPL", pos, 0)); err != nil {
		t.Fatal(err)
	}
	// Row is now at version 1; an update expecting version 2 is stale
	err := st.ApplyReconciliation(ctx, reconciliation("u1", "AAPL", pos, 2))
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("Expected ErrVersionConflict, got %v", err)
	}

	// The correct version succeeds and bumps it
	if err := st.ApplyReconciliation(ctx, reconciliation("u1", "AAPL", pos, 1)); err != nil {
		t.Fatalf("ApplyReconciliation: %v", err)
	}
	_, version, _ := st.GetPosition(ctx, "u1", "AAPL")
	if version != 2 {
		t.Errorf("Expected version 2, got %d", version)
	}
}

func TestApplyReconciliationDelete(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	pos := &model.Position{UserID: "u1", Symbol: "AAPL", Quantity: 10}
	if err := st.ApplyReconciliation(ctx, reconciliation("u1", "AAPL", pos, 0)); err != nil {
		t.Fatal(err)
	}

	if err := st.ApplyReconciliation(ctx, reconciliation("u1", "AAPL", nil, 1)); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, _, err := st.GetPosition(ctx, "u1", "AAPL"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestListPositionsScopedToUser(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	a := &model.Position{UserID: "u1", Symbol: "AAPL", Quantity: 1}
	b := &model.Position{UserID: "u2", Symbol: "MSFT", Quantity: 2}
	if err := st.ApplyReconciliation(ctx, reconciliation("u1", "AAPL", a, 0)); err != nil {
		t.Fatal(err)
	}
	if err := st.ApplyReconciliation(ctx, reconciliation("u2", "MSFT", b, 0)); err != nil {
		t.Fatal(err)
	}

	positions, err := st.ListPositions(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 || positions[0].Symbol != "AAPL" {
		t.Errorf("Expected only u1's AAPL position, got %v", positions)
	}
}

func TestListOrdersLimitAndOrder(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := st.SaveOrder(ctx, model.Order{
			OrderID:   string(rune('a' + i)),
			UserID:    "u1",
			CreatedAt: day(i),
		}); err != nil {
			t.Fatal(err)
		}
	}

	orders, err := st.ListOrders(ctx, "u1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 2 {
		t.Fatalf("Expected 2 orders, got %d", len(orders))
	}
	if orders[0].OrderID != "e" || orders[1].OrderID != "d" {
		t.Errorf("Expected newest first, got %s then %s", orders[0].OrderID, orders[1].OrderID)
	}
}
