package engine

import "fmt"

// InsufficientFundsError rejects a buy priced above available cash, before
// anything is submitted to the gateway
type InsufficientFundsError struct {
	Symbol    string
	Required  float64
	Available float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for %s: need $%.2f, have $%.2f", e.Symbol, e.Required, e.Available)
}

// InsufficientSharesError rejects a sell that would drive quantity negative
type InsufficientSharesError struct {
	Symbol    string
	Requested int64
	Held      int64
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("insufficient shares of %s: selling %d, holding %d", e.Symbol, e.Requested, e.Held)
}

// PriceUnavailableError rejects a trade when no fresh quote could be obtained.
// Trading at a stale or assumed price is never acceptable.
type PriceUnavailableError struct {
	Symbol string
	Err    error
}

func (e *PriceUnavailableError) Error() string {
	return fmt.Sprintf("price unavailable for %s: %v", e.Symbol, e.Err)
}

func (e *PriceUnavailableError) Unwrap() error { return e.Err }

// OrderRejectedError surfaces a gateway failure verbatim. The engine never
// retries a submission: a duplicate order is a correctness hazard.
type OrderRejectedError struct {
	Symbol string
	Reason string
	Err    error
}

func (e *OrderRejectedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("order rejected for %s: %s", e.Symbol, e.Reason)
	}
	return fmt.Sprintf("order rejected for %s: %v", e.Symbol, e.Err)
}

func (e *OrderRejectedError) Unwrap() error { return e.Err }

// ReconciliationConflictError reports a concurrent-update race on a position.
// The caller may replay the whole validate, price, reconcile sequence; the
// order that was already submitted is never resubmitted.
type ReconciliationConflictError struct {
	UserID string
	Symbol string
}

func (e *ReconciliationConflictError) Error() string {
	return fmt.Sprintf("reconciliation conflict on %s for user %s", e.Symbol, e.UserID)
}
