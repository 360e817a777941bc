package strategy

import (
	"fmt"
	"math"

	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/services/indicators"
)

const (
	lowerBandTolerance = 1.001
	rangeStopFactor    = 0.995
	minRewardRisk      = 1.0
)

// RangeTactic buys a lower Bollinger band touch while RSI is oversold and
// targets the middle band. The short mirror is not implemented.
type RangeTactic struct {
	params Params
}

func NewRangeTactic(params Params) *RangeTactic {
	return &RangeTactic{params: params}
}

func (t *RangeTactic) Name() string { return "range_bollinger_bounce" }

func (t *RangeTactic) Evaluate(snap *Snapshot) *RawSignal {
	if snap.BB == nil || len(snap.RSI) == 0 {
		return nil
	}
	price := snap.Price
	lower := indicators.Last(snap.BB.Lower)
	middle := indicators.Last(snap.BB.Middle)
	rsi := snap.CurrentRSI()
	if math.IsNaN(lower) || math.IsNaN(middle) || math.IsNaN(rsi) {
		return nil
	}

	if price > lower*lowerBandTolerance || rsi > oversoldRSI {
		return nil
	}

	stop := lower * rangeStopFactor
	target := middle
	if price <= stop {
		return nil
	}
	if (target-price)/(price-stop) < minRewardRisk {
		return nil
	}

	return &RawSignal{
		Symbol:      snap.Symbol,
		Direction:   models.DirectionLong,
		Score:       rangeBounceScore,
		EntryPrice:  price,
		StopPrice:   stop,
		TargetPrice: target,
		Regime:      snap.Regime,
		Tactic:      t.Name(),
		Rationale:   fmt.Sprintf("lower band touch %.4f with RSI %.1f", lower, rsi),
	}
}
