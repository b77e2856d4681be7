package broker

import (
	"context"
	"time"

	"finsight/pkg/model"
)

// OrderRequest is a market order handed to the gateway
type OrderRequest struct {
	Symbol   string
	Side     model.OrderSide
	Quantity int64
}

// OrderResult reports what the gateway did with an order
type OrderResult struct {
	OrderID     string
	Symbol      string
	Side        model.OrderSide
	Quantity    int64
	FillPrice   float64
	Status      model.OrderStatus
	Message     string
	SubmittedAt time.Time
}

// Gateway is the trade execution gateway. Implementations must treat
// SubmitOrder as non-idempotent: callers never resubmit, and neither should a
// gateway retry internally.
type Gateway interface {
	// Name returns the gateway name
	Name() string

	// SubmitOrder places a market order and reports the fill
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
}
