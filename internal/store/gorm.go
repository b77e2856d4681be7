package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"finsight/pkg/model"
)

// priceRecord is the persisted form of a PricePoint. The composite unique
// index keeps one row per (symbol, day).
type priceRecord struct {
	ID     uint      `gorm:"primarykey"`
	Symbol string    `gorm:"uniqueIndex:idx_price_symbol_time;index"`
	Time   time.Time `gorm:"uniqueIndex:idx_price_symbol_time"`
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

type predictionRecord struct {
	ID             uint      `gorm:"primarykey"`
	Symbol         string    `gorm:"index:idx_pred_symbol_date"`
	PredictedPrice float64
	Confidence     int
	Risk           string
	Recommendation string
	PredictionDate time.Time `gorm:"index:idx_pred_symbol_date"`
	TargetDate     time.Time
	ModelVersion   string
	Features       string // IndicatorSnapshot as JSON
}

// positionRecord carries an optimistic version counter; every reconciliation
// bumps it and stale writers lose.
type positionRecord struct {
	ID            uint   `gorm:"primarykey"`
	UserID        string `gorm:"uniqueIndex:idx_pos_user_symbol"`
	Symbol        string `gorm:"uniqueIndex:idx_pos_user_symbol"`
	Quantity      int64
	CostBasis     float64
	MarketValue   float64
	UnrealizedPL  float64
	UnrealizedPct float64
	Version       int64
}

type summaryRecord struct {
	ID        uint   `gorm:"primarykey"`
	UserID    string `gorm:"uniqueIndex"`
	Cash      float64
	Equity    float64
	UpdatedAt time.Time
}

type orderRecord struct {
	ID        uint   `gorm:"primarykey"`
	OrderID   string `gorm:"uniqueIndex"`
	UserID    string `gorm:"index"`
	Symbol    string
	Quantity  int64
	Price     float64
	Side      string
	Status    string
	Note      string
	CreatedAt time.Time
}

// GormStore implements Store on PostgreSQL via gorm
type GormStore struct {
	db *gorm.DB
}

// OpenGorm connects to PostgreSQL and migrates the schema
func OpenGorm(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := db.AutoMigrate(
		&priceRecord{},
		&predictionRecord{},
		&positionRecord{},
		&summaryRecord{},
		&orderRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &GormStore{db: db}, nil
}

// NewGormStore wraps an existing gorm connection (used by tests against sqlite
// or a prepared pool)
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) SavePricePoints(ctx context.Context, symbol string, bars []model.PricePoint) error {
	if len(bars) == 0 {
		return nil
	}

	records := make([]priceRecord, len(bars))
	for i, b := range bars {
		records[i] = priceRecord{
			Symbol: symbol,
			Time:   b.Time,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "time"}},
			DoNothing: true, // bars are immutable once stored
		}).
		CreateInBatches(records, 100).Error
}

func (s *GormStore) GetPricePoints(ctx context.Context, symbol string, from, to time.Time) ([]model.PricePoint, error) {
	var records []priceRecord
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND time BETWEEN ? AND ?", symbol, from, to).
		Order("time ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	bars := make([]model.PricePoint, len(records))
	for i, r := range records {
		bars[i] = model.PricePoint{
			Time:   r.Time,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return bars, nil
}

func (s *GormStore) SavePrediction(ctx context.Context, p model.Prediction) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("encoding features: %w", err)
	}

	return s.db.WithContext(ctx).Create(&predictionRecord{
		Symbol:         p.Symbol,
		PredictedPrice: p.PredictedPrice,
		Confidence:     p.Confidence,
		Risk:           string(p.Risk),
		Recommendation: string(p.Recommendation),
		PredictionDate: p.PredictionDate,
		TargetDate:     p.TargetDate,
		ModelVersion:   p.ModelVersion,
		Features:       string(features),
	}).Error
}

func (s *GormStore) GetPredictions(ctx context.Context, symbol string, from, to time.Time) ([]model.Prediction, error) {
	var records []predictionRecord
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND prediction_date BETWEEN ? AND ?", symbol, from, to).
		Order("prediction_date DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.Prediction, len(records))
	for i, r := range records {
		p := model.Prediction{
			Symbol:         r.Symbol,
			PredictedPrice: r.PredictedPrice,
			Confidence:     r.Confidence,
			Risk:           model.RiskLevel(r.Risk),
			Recommendation: model.Recommendation(r.Recommendation),
			PredictionDate: r.PredictionDate,
			TargetDate:     r.TargetDate,
			ModelVersion:   r.ModelVersion,
		}
		if r.Features != "" {
			json.Unmarshal([]byte(r.Features), &p.Features)
		}
		out[i] = p
	}
	return out, nil
}

func (s *GormStore) GetPosition(ctx context.Context, userID, symbol string) (*model.Position, int64, error) {
	var r positionRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ?", userID, symbol).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	p := recordToPosition(r)
	return &p, r.Version, nil
}

func (s *GormStore) ListPositions(ctx context.Context, userID string) ([]model.Position, error) {
	var records []positionRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("symbol ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.Position, len(records))
	for i, r := range records {
		out[i] = recordToPosition(r)
	}
	return out, nil
}

func (s *GormStore) GetSummary(ctx context.Context, userID string) (*model.PortfolioSummary, error) {
	var r summaryRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &model.PortfolioSummary{
		UserID:    r.UserID,
		Cash:      r.Cash,
		Equity:    r.Equity,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func (s *GormStore) SaveSummary(ctx context.Context, sum model.PortfolioSummary) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"cash", "equity", "updated_at"}),
		}).
		Create(&summaryRecord{
			UserID:    sum.UserID,
			Cash:      sum.Cash,
			Equity:    sum.Equity,
			UpdatedAt: sum.UpdatedAt,
		}).Error
}

func (s *GormStore) SaveOrder(ctx context.Context, o model.Order) error {
	return s.db.WithContext(ctx).Create(orderToRecord(o)).Error
}

func (s *GormStore) ListOrders(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var records []orderRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}

	out := make([]model.Order, len(records))
	for i, r := range records {
		out[i] = model.Order{
			OrderID:   r.OrderID,
			UserID:    r.UserID,
			Symbol:    r.Symbol,
			Quantity:  r.Quantity,
			Price:     r.Price,
			Side:      model.OrderSide(r.Side),
			Status:    model.OrderStatus(r.Status),
			Note:      r.Note,
			CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}

// ApplyReconciliation commits one trade inside a single database transaction.
// The position write is guarded by the version the caller read at pricing
// time; a stale version aborts the transaction with ErrVersionConflict.
func (s *GormStore) ApplyReconciliation(ctx context.Context, r Reconciliation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch {
		case r.ExpectedVersion == 0:
			// First buy of this symbol: the row must not exist
			if r.Position == nil {
				return fmt.Errorf("reconciliation: nil position with no prior row")
			}
			var count int64
			if err := tx.Model(&positionRecord{}).
				Where("user_id = ? AND symbol = ?", r.UserID, r.Symbol).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrVersionConflict
			}
			if err := tx.Create(positionToRecord(*r.Position, 1)).Error; err != nil {
				return err
			}

		case r.Position == nil:
			// Position closed out: delete the row, never keep a zero row
			res := tx.Where("user_id = ? AND symbol = ? AND version = ?", r.UserID, r.Symbol, r.ExpectedVersion).
				Delete(&positionRecord{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrVersionConflict
			}

		default:
			res := tx.Model(&positionRecord{}).
				Where("user_id = ? AND symbol = ? AND version = ?", r.UserID, r.Symbol, r.ExpectedVersion).
				Updates(map[string]interface{}{
					"quantity":       r.Position.Quantity,
					"cost_basis":     r.Position.CostBasis,
					"market_value":   r.Position.MarketValue,
					"unrealized_pl":  r.Position.UnrealizedPL,
					"unrealized_pct": r.Position.UnrealizedPct,
					"version":        r.ExpectedVersion + 1,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrVersionConflict
			}
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"cash", "equity", "updated_at"}),
		}).Create(&summaryRecord{
			UserID:    r.Summary.UserID,
			Cash:      r.Summary.Cash,
			Equity:    r.Summary.Equity,
			UpdatedAt: r.Summary.UpdatedAt,
		}).Error; err != nil {
			return err
		}

		return tx.Create(orderToRecord(r.Order)).Error
	})
}

func recordToPosition(r positionRecord) model.Position {
	return model.Position{
		UserID:        r.UserID,
		Symbol:        r.Symbol,
		Quantity:      r.Quantity,
		CostBasis:     r.CostBasis,
		MarketValue:   r.MarketValue,
		UnrealizedPL:  r.UnrealizedPL,
		UnrealizedPct: r.UnrealizedPct,
	}
}

func positionToRecord(p model.Position, version int64) *positionRecord {
	return &positionRecord{
		UserID:        p.UserID,
		Symbol:        p.Symbol,
		Quantity:      p.Quantity,
		CostBasis:     p.CostBasis,
		MarketValue:   p.MarketValue,
		UnrealizedPL:  p.UnrealizedPL,
		UnrealizedPct: p.UnrealizedPct,
		Version:       version,
	}
}

func orderToRecord(o model.Order) *orderRecord {
	return &orderRecord{
		OrderID:   o.OrderID,
		UserID:    o.UserID,
		Symbol:    o.Symbol,
		Quantity:  o.Quantity,
		Price:     o.Price,
		Side:      string(o.Side),
		Status:    string(o.Status),
		Note:      o.Note,
		CreatedAt: o.CreatedAt,
	}
}
