package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finsight/internal/provider"
	"finsight/pkg/model"
)

// PaperGateway fills market orders instantly at the provider's current quote.
// It is the default gateway when no live broker is configured, and what the
// dashboard's simulated trading runs on.
type PaperGateway struct {
	provider provider.Provider
}

// NewPaperGateway creates a paper trading gateway
func NewPaperGateway(p provider.Provider) *PaperGateway {
	return &PaperGateway{provider: p}
}

// Name returns the gateway name
func (g *PaperGateway) Name() string {
	return "paper"
}

// SubmitOrder fills the order at the current market price
func (g *PaperGateway) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("paper: invalid quantity %d", req.Quantity)
	}

	quote, err := g.provider.GetQuote(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("paper: quote %s: %w", req.Symbol, err)
	}

	return &OrderResult{
		OrderID:     uuid.NewString(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Quantity:    req.Quantity,
		FillPrice:   quote.Price,
		Status:      model.OrderFilled,
		Message:     "paper fill at market",
		SubmittedAt: time.Now(),
	}, nil
}
