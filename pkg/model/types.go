package model

import "time"

// PricePoint represents a single daily bar (OHLCV data).
// A symbol's series is ordered ascending by time with no duplicate timestamps.
type PricePoint struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Quote represents the current market price of a symbol
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

// RiskLevel classifies a prediction by recent volatility
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Recommendation is the discrete trading recommendation of a prediction
type Recommendation string

const (
	StrongBuy  Recommendation = "Strong Buy"
	Buy        Recommendation = "Buy"
	Hold       Recommendation = "Hold"
	Sell       Recommendation = "Sell"
	StrongSell Recommendation = "Strong Sell"
)

// IndicatorSnapshot is the full set of indicator values a prediction was
// derived from, stored alongside it so every score can be explained.
type IndicatorSnapshot struct {
	RSI14     float64 `json:"rsi_14"`
	MACD      float64 `json:"macd"`
	EMA20     float64 `json:"ema_20"`
	SMA50     float64 `json:"sma_50"`
	SMA200    float64 `json:"sma_200"`
	UpperBand float64 `json:"upper_band"`
	LowerBand float64 `json:"lower_band"`
	ATR14     float64 `json:"atr_14"`
	LastClose float64 `json:"last_close"`
}

// Prediction is one immutable prediction for a symbol. Predictions accumulate
// over time; a new cycle appends rather than overwrites.
type Prediction struct {
	Symbol         string            `json:"symbol"`
	PredictedPrice float64           `json:"predicted_price"`
	Confidence     int               `json:"confidence_level"` // 0-100
	Risk           RiskLevel         `json:"risk_level"`
	Recommendation Recommendation    `json:"recommendation"`
	PredictionDate time.Time         `json:"prediction_date"`
	TargetDate     time.Time         `json:"target_date"`
	ModelVersion   string            `json:"model_version"`
	Features       IndicatorSnapshot `json:"features_used"`
}

// Position is an open holding for one (user, symbol). Quantity is always
// positive: a position whose quantity reaches zero is deleted, not kept.
type Position struct {
	UserID        string  `json:"user_id"`
	Symbol        string  `json:"symbol"`
	Quantity      int64   `json:"quantity"`
	CostBasis     float64 `json:"cost_basis"` // weighted-average price per share
	MarketValue   float64 `json:"market_value"`
	UnrealizedPL  float64 `json:"unrealized_pl"`
	UnrealizedPct float64 `json:"unrealized_plpc"`
}

// PortfolioSummary is the per-user account summary, recomputed after every
// trade. Cash never goes negative; equity is the sum of position market values.
type PortfolioSummary struct {
	UserID    string    `json:"user_id"`
	Cash      float64   `json:"cash"`
	Equity    float64   `json:"equity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderSide is the direction of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus reports the final outcome of an order
type OrderStatus string

const (
	OrderFilled         OrderStatus = "filled"
	OrderStatusRejected OrderStatus = "rejected"
)

// Order is the immutable audit record of a single trade attempt. One row is
// written for every outcome, rejections included, independent of the current
// Position state.
type Order struct {
	OrderID   string      `json:"order_id"`
	UserID    string      `json:"user_id"`
	Symbol    string      `json:"symbol"`
	Quantity  int64       `json:"quantity"`
	Price     float64     `json:"price"`
	Side      OrderSide   `json:"side"`
	Status    OrderStatus `json:"status"`
	Note      string      `json:"note,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
