package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"finsight/internal/broker"
	"finsight/internal/provider"
	"finsight/internal/store"
	"finsight/pkg/model"
)

// maxReconcileRetries bounds the replay of the reconcile step after a version
// conflict. The order submission is never replayed: the fill already happened
// and is reused as-is.
const maxReconcileRetries = 3

// TradeRequest is a validated-on-entry trade instruction
type TradeRequest struct {
	UserID   string
	Symbol   string
	Quantity int64
	Side     model.OrderSide
}

// Engine executes trades and keeps positions and portfolio summaries
// consistent. Trades on the same (user, symbol) are serialized; trades on
// different positions proceed concurrently.
type Engine struct {
	store    store.Store
	provider provider.Provider
	gateway  broker.Gateway

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a trade engine
func New(s store.Store, p provider.Provider, g broker.Gateway) *Engine {
	return &Engine{
		store:    s,
		provider: p,
		gateway:  g,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns the serialization lock for one (user, symbol) position
func (e *Engine) lockFor(userID, symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := userID + "|" + symbol
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// EnsureAccount creates the user's portfolio summary with the given starting
// cash if none exists yet
func (e *Engine) EnsureAccount(ctx context.Context, userID string, startingCash float64) error {
	_, err := e.store.GetSummary(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return e.store.SaveSummary(ctx, model.PortfolioSummary{
		UserID:    userID,
		Cash:      startingCash,
		Equity:    0,
		UpdatedAt: time.Now(),
	})
}

// Execute runs one trade through validate, price, submit, reconcile. All
// rejections leave positions and the summary untouched and still append an
// order row for audit. Once the order is submitted it is never resubmitted,
// even when the reconcile step has to be replayed.
func (e *Engine) Execute(ctx context.Context, req TradeRequest) (*model.Order, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		return nil, fmt.Errorf("trade: symbol is required")
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("trade: quantity must be positive, got %d", req.Quantity)
	}
	if req.Side != model.OrderSideBuy && req.Side != model.OrderSideSell {
		return nil, fmt.Errorf("trade: unknown side %q", req.Side)
	}

	lock := e.lockFor(req.UserID, req.Symbol)
	lock.Lock()
	defer lock.Unlock()

	// Validate against current holdings and cash
	position, _, err := e.loadPosition(ctx, req.UserID, req.Symbol)
	if err != nil {
		return nil, err
	}
	summary, err := e.loadSummary(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	// Price: a fresh quote or nothing
	quote, err := e.provider.GetQuote(ctx, req.Symbol)
	if err != nil {
		perr := &PriceUnavailableError{Symbol: req.Symbol, Err: err}
		e.auditReject(ctx, req, 0, perr.Error())
		return nil, perr
	}

	if req.Side == model.OrderSideBuy {
		cost := quote.Price * float64(req.Quantity)
		if cost > summary.Cash {
			ferr := &InsufficientFundsError{Symbol: req.Symbol, Required: cost, Available: summary.Cash}
			e.auditReject(ctx, req, quote.Price, ferr.Error())
			return nil, ferr
		}
	} else {
		held := int64(0)
		if position != nil {
			held = position.Quantity
		}
		if req.Quantity > held {
			serr := &InsufficientSharesError{Symbol: req.Symbol, Requested: req.Quantity, Held: held}
			e.auditReject(ctx, req, quote.Price, serr.Error())
			return nil, serr
		}
	}

	// Last point where the trade can be abandoned with no side effects
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Submit: gateway failures surface verbatim, never retried
	result, err := e.gateway.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
	})
	if err != nil {
		rerr := &OrderRejectedError{Symbol: req.Symbol, Err: err}
		e.auditReject(ctx, req, quote.Price, rerr.Error())
		return nil, rerr
	}
	if result.Status != model.OrderFilled {
		rerr := &OrderRejectedError{Symbol: req.Symbol, Reason: result.Message}
		e.auditReject(ctx, req, result.FillPrice, rerr.Error())
		return nil, rerr
	}

	// Reconcile on fill; replay on version conflict with the same fill
	var order *model.Order
	for attempt := 0; ; attempt++ {
		order, err = e.reconcile(ctx, req, result)
		if err == nil {
			return order, nil
		}

		var conflict *ReconciliationConflictError
		if !errors.As(err, &conflict) || attempt+1 >= maxReconcileRetries {
			return nil, err
		}
		log.Printf("[ENGINE] reconcile conflict on %s/%s, replaying (%d/%d)",
			req.UserID, req.Symbol, attempt+1, maxReconcileRetries)
	}
}

// reconcile applies one fill to the position and the portfolio summary in a
// single atomic store transaction
func (e *Engine) reconcile(ctx context.Context, req TradeRequest, fill *broker.OrderResult) (*model.Order, error) {
	position, version, err := e.loadPosition(ctx, req.UserID, req.Symbol)
	if err != nil {
		return nil, err
	}
	summary, err := e.loadSummary(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	oldQty := int64(0)
	oldBasis := 0.0
	if position != nil {
		oldQty = position.Quantity
		oldBasis = position.CostBasis
	}

	fillValue := fill.FillPrice * float64(req.Quantity)

	var newQty int64
	newBasis := oldBasis
	newCash := summary.Cash

	if req.Side == model.OrderSideBuy {
		newQty = oldQty + req.Quantity
		newBasis = (oldBasis*float64(oldQty) + fillValue) / float64(newQty)
		newCash -= fillValue
	} else {
		newQty = oldQty - req.Quantity
		if newQty < 0 {
			return nil, &InsufficientSharesError{Symbol: req.Symbol, Requested: req.Quantity, Held: oldQty}
		}
		newCash += fillValue
	}

	if newCash < 0 {
		ferr := &InsufficientFundsError{Symbol: req.Symbol, Required: fillValue, Available: summary.Cash}
		e.auditReject(ctx, req, fill.FillPrice, ferr.Error())
		return nil, ferr
	}

	var newPosition *model.Position
	if newQty > 0 {
		marketValue := float64(newQty) * fill.FillPrice
		costValue := newBasis * float64(newQty)
		pl := marketValue - costValue
		pct := 0.0
		if costValue > 0 {
			pct = pl / costValue * 100
		}
		newPosition = &model.Position{
			UserID:        req.UserID,
			Symbol:        req.Symbol,
			Quantity:      newQty,
			CostBasis:     newBasis,
			MarketValue:   marketValue,
			UnrealizedPL:  pl,
			UnrealizedPct: pct,
		}
	}

	// Equity is the sum of all position market values after this trade
	equity := 0.0
	others, err := e.store.ListPositions(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	for _, p := range others {
		if p.Symbol != req.Symbol {
			equity += p.MarketValue
		}
	}
	if newPosition != nil {
		equity += newPosition.MarketValue
	}

	now := time.Now()
	order := model.Order{
		OrderID:   fill.OrderID,
		UserID:    req.UserID,
		Symbol:    req.Symbol,
		Quantity:  req.Quantity,
		Price:     fill.FillPrice,
		Side:      req.Side,
		Status:    model.OrderFilled,
		CreatedAt: now,
	}

	err = e.store.ApplyReconciliation(ctx, store.Reconciliation{
		UserID:          req.UserID,
		Symbol:          req.Symbol,
		Position:        newPosition,
		ExpectedVersion: version,
		Summary: model.PortfolioSummary{
			UserID:    req.UserID,
			Cash:      newCash,
			Equity:    equity,
			UpdatedAt: now,
		},
		Order: order,
	})
	if errors.Is(err, store.ErrVersionConflict) {
		return nil, &ReconciliationConflictError{UserID: req.UserID, Symbol: req.Symbol}
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// loadPosition returns the current position, or (nil, 0) when none exists
func (e *Engine) loadPosition(ctx context.Context, userID, symbol string) (*model.Position, int64, error) {
	position, version, err := e.store.GetPosition(ctx, userID, symbol)
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return position, version, nil
}

// loadSummary returns the user's summary, defaulting to an empty account
func (e *Engine) loadSummary(ctx context.Context, userID string) (*model.PortfolioSummary, error) {
	summary, err := e.store.GetSummary(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &model.PortfolioSummary{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// auditReject appends the immutable order row for a rejected trade. Audit
// failures are logged, not returned: the rejection itself is the answer.
func (e *Engine) auditReject(ctx context.Context, req TradeRequest, price float64, note string) {
	err := e.store.SaveOrder(ctx, model.Order{
		OrderID:   uuid.NewString(),
		UserID:    req.UserID,
		Symbol:    req.Symbol,
		Quantity:  req.Quantity,
		Price:     price,
		Side:      req.Side,
		Status:    model.OrderStatusRejected,
		Note:      note,
		CreatedAt: time.Now(),
	})
	if err != nil {
		log.Printf("[ENGINE] recording rejected order for %s: %v", req.Symbol, err)
	}
}
