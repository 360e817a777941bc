// Package regime classifies the market state of a candle window.
package regime

import (
	"math"

	"github.com/rs/zerolog"

	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/services/indicators"
)

type Config struct {
	EMAPeriod        int
	BBPeriod         int
	BBDeviations     float64
	MinBars          int
	SqueezeThreshold float64 // bandwidth percent
	FlatSlope        float64 // |slope / ema|
}

func DefaultConfig() Config {
	return Config{
		EMAPeriod:        50,
		BBPeriod:         20,
		BBDeviations:     2,
		MinBars:          50,
		SqueezeThreshold: 5.0,
		FlatSlope:        0.0001,
	}
}

// Analysis carries the values a verdict was derived from.
type Analysis struct {
	Regime    models.Regime
	Price     float64
	EMA       float64
	Slope     float64
	Bandwidth float64
}

type Classifier struct {
	cfg Config
	log zerolog.Logger
}

func NewClassifier(cfg Config, log zerolog.Logger) *Classifier {
	return &Classifier{cfg: cfg, log: log.With().Str("component", "regime").Logger()}
}

// Classify returns the regime of the window. It never fails: short, gappy or
// degenerate input yields RANGE.
func (c *Classifier) Classify(candles []models.Candle) models.Regime {
	return c.Analyze(candles).Regime
}

func (c *Classifier) Analyze(candles []models.Candle) (a Analysis) {
	a.Regime = models.RegimeRange
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("regime computation failed")
			a = Analysis{Regime: models.RegimeRange}
		}
	}()

	clean := models.CleanCandles(candles)
	if len(clean) < c.cfg.MinBars || len(clean) < c.cfg.EMAPeriod+1 || len(clean) < c.cfg.BBPeriod {
		c.log.Debug().Int("bars", len(clean)).Msg("insufficient data, defaulting to RANGE")
		return a
	}

	closes := models.Closes(clean)
	ema := indicators.EMA(closes, c.cfg.EMAPeriod)
	bb := indicators.Bollinger(closes, c.cfg.BBPeriod, c.cfg.BBDeviations)
	if ema == nil || bb == nil {
		return a
	}

	a.Price = indicators.Last(closes)
	a.EMA = indicators.Last(ema)
	a.Slope = indicators.Slope(ema)
	a.Bandwidth = indicators.Last(bb.Bandwidth)
	if anyNaN(a.Price, a.EMA, a.Slope, a.Bandwidth) || a.EMA == 0 {
		return a
	}

	a.Regime = decide(c.cfg, a)
	return a
}

func decide(cfg Config, a Analysis) models.Regime {
	if a.Bandwidth < cfg.SqueezeThreshold || math.Abs(a.Slope/a.EMA) < cfg.FlatSlope {
		return models.RegimeRange
	}
	if a.Price > a.EMA && a.Slope > 0 {
		return models.RegimeBull
	}
	if a.Price < a.EMA && a.Slope < 0 {
		return models.RegimeBear
	}
	return models.RegimeRange
}

func anyNaN(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
