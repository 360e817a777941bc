package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"SpotTradeBot/internal/models"
)

type CandleRepository struct {
	db *gorm.DB
}

// NewCandleRepository creates a new instance of CandleRepository
func NewCandleRepository(db *gorm.DB) *CandleRepository {
	return &CandleRepository{db: db}
}

// UpsertBatch stores candles, overwriting bars already stored under the same
// symbol, time frame and open time.
func (r *CandleRepository) UpsertBatch(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "time_frame"}, {Name: "open_time"}},
			DoUpdates: clause.AssignmentColumns([]string{"close_time", "open", "high", "low", "close", "volume", "trade_count"}),
		}).
		CreateInBatches(candles, 500).Error
}

// Find gets candles for a symbol and time frame opening within [start, end],
// oldest first.
func (r *CandleRepository) Find(ctx context.Context, symbol, timeFrame string, start, end time.Time) ([]models.Candle, error) {
	if symbol == "" || timeFrame == "" {
		return nil, errors.New("invalid symbol or timeframe")
	}

	var candles []models.Candle
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND time_frame = ? AND open_time BETWEEN ? AND ?", symbol, timeFrame, start, end).
		Order("open_time ASC").
		Find(&candles).Error
	return candles, err
}

// Latest returns the newest count candles, oldest first.
func (r *CandleRepository) Latest(ctx context.Context, symbol, timeFrame string, count int) ([]models.Candle, error) {
	if symbol == "" || timeFrame == "" {
		return nil, errors.New("invalid symbol or timeframe")
	}

	var candles []models.Candle
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND time_frame = ?", symbol, timeFrame).
		Order("open_time DESC").
		Limit(count).
		Find(&candles).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// LatestOpenTime returns the open time of the newest stored bar, or the zero
// time when nothing is stored.
func (r *CandleRepository) LatestOpenTime(ctx context.Context, symbol, timeFrame string) (time.Time, error) {
	var candle models.Candle
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND time_frame = ?", symbol, timeFrame).
		Order("open_time DESC").
		First(&candle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	return candle.OpenTime, err
}
