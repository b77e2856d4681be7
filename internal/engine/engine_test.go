package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"finsight/internal/broker"
	"finsight/internal/store"
	"finsight/pkg/model"
)

// fakeProvider serves fixed quotes
type fakeProvider struct {
	prices map[string]float64
	err    error
}

func (f *fakeProvider) Name() string      { return "fake" }
func (f *fakeProvider) IsAvailable() bool { return true }
func (f *fakeProvider) RateLimit() int    { return 60 }

func (f *fakeProvider) GetQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	price, ok := f.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &model.Quote{Symbol: symbol, Price: price}, nil
}

func (f *fakeProvider) GetDailyHistory(ctx context.Context, symbol string, limit int) ([]model.PricePoint, error) {
	return nil, fmt.Errorf("not implemented")
}

// fakeGateway fills at the provider price and counts submissions
type fakeGateway struct {
	provider *fakeProvider
	submits  int
	err      error
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) SubmitOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResult, error) {
	g.submits++
	if g.err != nil {
		return nil, g.err
	}
	quote, err := g.provider.GetQuote(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	return &broker.OrderResult{
		OrderID:     fmt.Sprintf("order-%d", g.submits),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Quantity:    req.Quantity,
		FillPrice:   quote.Price,
		Status:      model.OrderFilled,
		SubmittedAt: time.Now(),
	}, nil
}

func newTestEngine(t *testing.T, cash float64, prices map[string]float64) (*Engine, *store.MemoryStore, *fakeGateway) {
	t.Helper()

	st := store.NewMemoryStore()
	p := &fakeProvider{prices: prices}
	g := &fakeGateway{provider: p}
	e := New(st, p, g)

	if err := e.EnsureAccount(context.Background(), "u1", cash); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	return e, st, g
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuyCreatesPosition(t *testing.T) {
	e, st, _ := newTestEngine(t, 10000, map[string]float64{"AAPL": 100})
	ctx := context.Background()

	order, err := e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: 10, Side: model.OrderSideBuy})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if order.Status != model.OrderFilled {
		t.Errorf("Expected filled order, got %s", order.Status)
	}

	pos, _, err := st.GetPosition(ctx, "u1", "AAPL")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if pos.Quantity != 10 {
		t.Errorf("Expected quantity 10, got %d", pos.Quantity)
	}
	if !almostEqual(pos.CostBasis, 100) {
		t.Errorf("Expected cost basis 100, got %f", pos.CostBasis)
	}

	summary, err := st.GetSummary(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if !almostEqual(summary.Cash, 9000) {
		t.Errorf("Expected cash 9000, got %f", summary.Cash)
	}
	if !almostEqual(summary.Equity, 1000) {
		t.Errorf("Expected equity 1000, got %f", summary.Equity)
	}
}

func TestWeightedAverageCostBasis(t *testing.T) {
	e, st, _ := newTestEngine(t, 10000, map[string]float64{"AAPL": 100})
	ctx := context.Background()

	if _, err := e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: 10, Side: model.OrderSideBuy}); err != nil {
		t.Fatalf("first buy: %v", err)
	}

	// Price moves to 120, buy 10 more
	e.provider.(*fakeProvider).prices["AAPL"] = 120
	if _, err := e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: 10, Side: model.OrderSideBuy}); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	pos, _, err := st.GetPosition(ctx, "u1", "AAPL")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if pos.Quantity != 20 {
		t.Errorf("Expected quantity 20, got %d", pos.Quantity)
	}
	// (100*10 + 120*10) / 20 = 110
	if !almostEqual(pos.CostBasis, 110) {
		t.Errorf("Expected cost basis 110, got %f", pos.CostBasis)
	}
}

func TestSellKeepsCostBasis(t *testing.T) {
	e, st, _ := newTestEngine(t, 10000, map[string]float64{"AAPL": 100})
	ctx := context.Background()

	if _, err := e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: 10, Side: model.OrderSideBuy}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	e.provider.(*fakeProvider).prices["AAPL"] = 110
	if _, err := e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: 4, Side: model.OrderSideSell}); err != nil {
		t.Fatalf("sell: %v", err)
	}

	pos, _, err := st.GetPosition(ctx, "u1", "AAPL")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if pos.Quantity != 6 {
		t.Errorf("Expected quantity 6, got %d", pos.Quantity)
	}
	if !almostEqual(pos.CostBasis, 100) {
		t.Errorf("Sell must not change cost basis, got %f", pos.CostBasis)
	}

	summary, _ := st.GetSummary(ctx, "u1")
	// 10000 - 1000 + 4*110 = 9440
	if !almostEqual(summary.Cash, 9440) {
		t.Errorf("Expected cash 9440, got %f", summary.Cash)
	}
}

func TestSellToZeroDeletesPosition(t *testing.T) {
	e, st, _ := newTestEngine(t, 10000, map[string]float64{"AAPL": 100})
	ctx := context.Background()

	if _, err := e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: 5, Side: model.OrderSideBuy}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: 5, Side: model.OrderSideSell}); err != nil {
		t.Fatalf("sell: %v", err)
	}

	_, _, err := st.GetPosition(ctx, "u1", "AAPL")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected position row to be deleted, got err=%v", err)
	}

	summary, _ := st.GetSummary(ctx, "u1")
	if !almostEqual(summary.Cash, 10000) {
		t.Errorf("Expected cash restored to 10000, got %f", summary.Cash)
	}
	if !almostEqual(summary.Equity, 0) {
		t.Errorf("Expected equity 0, got %f", summary.Equity)
	}
}

func TestInsufficientFundsLeavesStateUnchanged(t *testing.T) {
	e, st, g := newTestEngine(t, 500, map[string]float64{"AAPL": 100})
	ctx := context.Background()

	_, err := e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: 10, Side: model.OrderSideBuy})

	var ferr *InsufficientFundsError
	if !errors.As(err, &ferr) {
		t.Fatalf("Expected InsufficientFundsError, got %v", err)
	}
	if g.submits != 0 {
		t.Errorf("Order must not reach the gateway, got %d submissions", g.submits)
	}

	summary, _ := st.GetSummary(ctx, "u1")
	if !almostEqual(summary.Cash, 500) {
		t.Errorf("Cash must be unchanged, got %f", summary.Cash)
	}
	if _, _, err := st.GetPosition(ctx, "u1", "AAPL"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("No position should exist, got err=%v", err)
	}

	// Rejection still produces an audit order row
	orders, _ := st.ListOrders(ctx, "u1", 0)
	if len(orders) != 1 {
		t.Fatalf("Expected 1 audit order, got %d", len(orders))
	}
	if orders[0].Status != model.OrderStatusRejected {
		t.Errorf("Expected rejected order, got %s", orders[0].Status)
	}
}

func TestOversellRejected(t *testing.T) {
	e, _, g := newTestEngine(t, 10000, map[string]float64{"AAPL": 100})
	ctx := context.Background()

	if _, err := e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: 3, Side: model.OrderSideBuy}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	submitsAfterBuy := g.submits

	_, err := e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: 5, Side: model.OrderSideSell})

	var serr *InsufficientSharesError
	if !errors.As(err, &serr) {
		t.Fatalf("Expected InsufficientSharesError, got %v", err)
	}
	if g.submits != submitsAfterBuy {
		t.Error("Oversell must be rejected before submission")
	}
}

func TestPriceUnavailableRejectsTrade(t *testing.T) {
	e, _, g := newTestEngine(t, 10000, map[string]float64{"AAPL": 100})
	e.provider.(*fakeProvider).err = fmt.Errorf("upstream down")
	ctx := context.Background()

	_, err := e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: 1, Side: model.OrderSideBuy})

	var perr *PriceUnavailableError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected PriceUnavailableError, got %v", err)
	}
	if g.submits != 0 {
		t.Error("No order may be submitted without a fresh price")
	}
}

func TestGatewayErrorSurfacedWithoutRetry(t *testing.T) {
	e, st, g := newTestEngine(t, 10000, map[string]float64{"AAPL": 100})
	g.err = fmt.Errorf("gateway said no")
	ctx := context.Background()

	_, err := e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: 1, Side: model.OrderSideBuy})

	var rerr *OrderRejectedError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected OrderRejectedError, got %v", err)
	}
	if g.submits != 1 {
		t.Errorf("Submission must happen exactly once, got %d", g.submits)
	}

	summary, _ := st.GetSummary(ctx, "u1")
	if !almostEqual(summary.Cash, 10000) {
		t.Errorf("Cash must be unchanged after gateway rejection, got %f", summary.Cash)
	}
}

func TestInvalidRequests(t *testing.T) {
	e, _, _ := newTestEngine(t, 1000, map[string]float64{"AAPL": 100})
	ctx := context.Background()

	cases := []TradeRequest{
		{UserID: "u1", Symbol: "", Quantity: 1, Side: model.OrderSideBuy},
		{UserID: "u1", Symbol: "AAPL", Quantity: 0, Side: model.OrderSideBuy},
		{UserID: "u1", Symbol: "AAPL", Quantity: -3, Side: model.OrderSideSell},
		{UserID: "u1", Symbol: "AAPL", Quantity: 1, Side: "short"},
	}
	for i, req := range cases {
		if _, err := e.Execute(ctx, req); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestCancelledContextAbandonsBeforeSubmit(t *testing.T) {
	e, _, g := newTestEngine(t, 10000, map[string]float64{"AAPL": 100})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: 1, Side: model.OrderSideBuy})
	if err == nil {
		t.Fatal("Expected error from cancelled context")
	}
	if g.submits != 0 {
		t.Error("Cancelled trade must never reach the gateway")
	}
}

// conflictStore wraps a store and fails the first n reconciliations with a
// version conflict
type conflictStore struct {
	store.Store
	failures int
}

func (c *conflictStore) ApplyReconciliation(ctx context.Context, r store.Reconciliation) error {
	if c.failures > 0 {
		c.failures--
		return store.ErrVersionConflict
	}
	return c.Store.ApplyReconciliation(ctx, r)
}

func TestReconcileReplaysOnConflictWithoutResubmitting(t *testing.T) {
	mem := store.NewMemoryStore()
	p := &fakeProvider{prices: map[string]float64{"AAPL": 100}}
	g := &fakeGateway{provider: p}
	cs := &conflictStore{Store: mem, failures: 2}
	e := New(cs, p, g)
	ctx := context.Background()

	if err := e.EnsureAccount(ctx, "u1", 10000); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}

	order, err := e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: 2, Side: model.OrderSideBuy})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if order == nil || order.Status != model.OrderFilled {
		t.Fatal("Expected a filled order after replay")
	}
	if g.submits != 1 {
		t.Errorf("Order must be submitted exactly once, got %d", g.submits)
	}

	pos, _, err := mem.GetPosition(ctx, "u1", "AAPL")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if pos.Quantity != 2 {
		t.Errorf("Expected quantity 2, got %d", pos.Quantity)
	}
}

func TestReconcileGivesUpAfterRepeatedConflicts(t *testing.T) {
	mem := store.NewMemoryStore()
	p := &fakeProvider{prices: map[string]float64{"AAPL": 100}}
	g := &fakeGateway{provider: p}
	cs := &conflictStore{Store: mem, failures: 100}
	e := New(cs, p, g)
	ctx := context.Background()

	if err := e.EnsureAccount(ctx, "u1", 10000); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}

	_, err := e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: 2, Side: model.OrderSideBuy})

	var conflict *ReconciliationConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected ReconciliationConflictError, got %v", err)
	}
	if g.submits != 1 {
		t.Errorf("Conflicts must never resubmit the order, got %d submissions", g.submits)
	}
}

func TestQuantityNeverNegativeAcrossSequence(t *testing.T) {
	e, st, _ := newTestEngine(t, 100000, map[string]float64{"AAPL": 50})
	ctx := context.Background()

	trades := []struct {
		side model.OrderSide
		qty  int64
	}{
		{model.OrderSideBuy, 10},
		{model.OrderSideSell, 4},
		{model.OrderSideBuy, 6},
		{model.OrderSideSell, 12},
		{model.OrderSideSell, 5}, // oversell, rejected
	}

	for _, tr := range trades {
		e.Execute(ctx, TradeRequest{UserID: "u1", Symbol: "AAPL", Quantity: tr.qty, Side: tr.side})

		pos, _, err := st.GetPosition(ctx, "u1", "AAPL")
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			t.Fatalf("GetPosition: %v", err)
		}
		if pos.Quantity <= 0 {
			t.Fatalf("Zero or negative quantity %d must not be stored", pos.Quantity)
		}

		summary, _ := st.GetSummary(ctx, "u1")
		if summary.Cash < 0 {
			t.Fatalf("Cash went negative: %f", summary.Cash)
		}
	}
}
