package strategy

import (
	"math"
	"time"

	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/services/indicators"
)

// Params are the window sizes and thresholds shared by the tactics.
type Params struct {
	MinBars         int
	RSIPeriod       int
	BBPeriod        int
	BBDeviations    float64
	OBLookback      int
	PatternLookback int
	PivotLeft       int
	PivotRight      int
	DivergenceSpan  int
	MinScore        int
}

func DefaultParams() Params {
	return Params{
		MinBars:         50,
		RSIPeriod:       14,
		BBPeriod:        20,
		BBDeviations:    2,
		OBLookback:      10,
		PatternLookback: 30,
		PivotLeft:       10,
		PivotRight:      5,
		DivergenceSpan:  2,
		MinScore:        12,
	}
}

// RawSignal is a tactic's entry candidate. It is consumed by the sizer and
// never persisted.
type RawSignal struct {
	Symbol      string
	Direction   models.Direction
	Score       int
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	Regime      models.Regime
	Tactic      string
	Rationale   string
	CreatedAt   time.Time
}

// Valid reports whether stop and target sit on the correct sides of entry.
func (s *RawSignal) Valid() bool {
	if s == nil || anyBad(s.EntryPrice, s.StopPrice, s.TargetPrice) {
		return false
	}
	if s.Direction == models.DirectionShort {
		return s.TargetPrice < s.EntryPrice && s.EntryPrice < s.StopPrice
	}
	return s.StopPrice < s.EntryPrice && s.EntryPrice < s.TargetPrice
}

// Snapshot holds the indicator values computed once per cycle and handed to
// whichever tactic the regime selects.
type Snapshot struct {
	Symbol  string
	Regime  models.Regime
	Candles []models.Candle
	Closes  []float64
	Highs   []float64
	Lows    []float64
	Price   float64
	RSI     []float64
	BB      *indicators.BBandsResult
}

func NewSnapshot(symbol string, candles []models.Candle, regime models.Regime, p Params) *Snapshot {
	closes := models.Closes(candles)
	return &Snapshot{
		Symbol:  symbol,
		Regime:  regime,
		Candles: candles,
		Closes:  closes,
		Highs:   models.Highs(candles),
		Lows:    models.Lows(candles),
		Price:   models.LastClose(candles),
		RSI:     indicators.RSI(closes, p.RSIPeriod),
		BB:      indicators.Bollinger(closes, p.BBPeriod, p.BBDeviations),
	}
}

// CurrentRSI returns the newest RSI value, NaN if unavailable.
func (s *Snapshot) CurrentRSI() float64 {
	return indicators.Last(s.RSI)
}

// Tactic produces an entry candidate for one regime, or nil when no
// qualifying setup exists.
type Tactic interface {
	Name() string
	Evaluate(snap *Snapshot) *RawSignal
}

func anyBad(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return true
		}
	}
	return false
}
