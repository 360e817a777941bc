package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"SpotTradeBot/internal/models"
)

// DefaultHistoryLimit caps History when the caller passes no limit.
const DefaultHistoryLimit = 50

type TradeLogRepository struct {
	db *gorm.DB
}

// NewTradeLogRepository creates a new instance of TradeLogRepository
func NewTradeLogRepository(db *gorm.DB) *TradeLogRepository {
	return &TradeLogRepository{db: db}
}

// Append inserts one executed trade. Rows are never updated.
func (r *TradeLogRepository) Append(ctx context.Context, entry *models.TradeLog) error {
	if entry == nil {
		return errors.New("trade log cannot be nil")
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// History returns the newest trades first, optionally filtered by symbol.
func (r *TradeLogRepository) History(ctx context.Context, symbol string, limit int) ([]models.TradeLog, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	q := r.db.WithContext(ctx).Model(&models.TradeLog{})
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}

	var logs []models.TradeLog
	err := q.Order("timestamp DESC").Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// RealizedProfit sums the profit of every exit for a symbol, or of all
// symbols when symbol is empty.
func (r *TradeLogRepository) RealizedProfit(ctx context.Context, symbol string) (float64, error) {
	var total struct {
		Sum float64
	}
	q := r.db.WithContext(ctx).Model(&models.TradeLog{}).
		Select("COALESCE(SUM(profit), 0) as sum").
		Where("side = ?", models.SideSell)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	err := q.Scan(&total).Error
	return total.Sum, err
}
