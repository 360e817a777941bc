package models

import (
	"math"
	"time"
)

// Candle is one OHLCV bar. It doubles as the persisted row of the candle store.
type Candle struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	Symbol     string    `gorm:"uniqueIndex:idx_candle_key;not null" json:"symbol"`
	TimeFrame  string    `gorm:"uniqueIndex:idx_candle_key;not null" json:"time_frame"`
	OpenTime   time.Time `gorm:"uniqueIndex:idx_candle_key;not null" json:"open_time"`
	CloseTime  time.Time `gorm:"index" json:"close_time"`
	Open       float64   `gorm:"type:decimal(20,8)" json:"open"`
	High       float64   `gorm:"type:decimal(20,8)" json:"high"`
	Low        float64   `gorm:"type:decimal(20,8)" json:"low"`
	Close      float64   `gorm:"type:decimal(20,8)" json:"close"`
	Volume     float64   `gorm:"type:decimal(20,8)" json:"volume"`
	TradeCount int64     `json:"trade_count"`
}

const (
	TimeFrame1h = "1h"
	TimeFrame4h = "4h"
	TimeFrame1d = "1d"
)

// TableName sets the table name for Candle model
func (Candle) TableName() string {
	return "candles"
}

func (c Candle) complete() bool {
	return !math.IsNaN(c.Open) && !math.IsNaN(c.High) && !math.IsNaN(c.Low) && !math.IsNaN(c.Close)
}

// CleanCandles forward-fills each missing OHLCV value from the last value
// seen in that column, then drops bars that still have gaps (leading bars
// with nothing to fill from). A dropped bar still feeds the fill of later
// bars. The input is not modified.
func CleanCandles(candles []Candle) []Candle {
	out := make([]Candle, 0, len(candles))
	last := Candle{Open: math.NaN(), High: math.NaN(), Low: math.NaN(), Close: math.NaN(), Volume: math.NaN()}
	for _, c := range candles {
		c.Open = fill(c.Open, last.Open)
		c.High = fill(c.High, last.High)
		c.Low = fill(c.Low, last.Low)
		c.Close = fill(c.Close, last.Close)
		c.Volume = fill(c.Volume, last.Volume)
		last.Open, last.High, last.Low, last.Close, last.Volume = c.Open, c.High, c.Low, c.Close, c.Volume

		if !c.complete() {
			continue
		}
		if math.IsNaN(c.Volume) {
			c.Volume = 0
		}
		out = append(out, c)
	}
	return out
}

func fill(v, prev float64) float64 {
	if math.IsNaN(v) {
		return prev
	}
	return v
}

// Closes extracts the close column.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts the high column.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts the low column.
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// LastClose returns the close of the newest bar, or 0 for an empty series.
func LastClose(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}
