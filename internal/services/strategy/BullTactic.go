package strategy

import (
	"fmt"
	"strings"

	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/services/indicators"
)

// BullTactic buys a retest of the most recent bullish order block, scored
// up by a W pattern and by bullish RSI divergence.
type BullTactic struct {
	params Params
}

func NewBullTactic(params Params) *BullTactic {
	return &BullTactic{params: params}
}

func (t *BullTactic) Name() string { return "bull_order_block" }

func (t *BullTactic) Evaluate(snap *Snapshot) *RawSignal {
	p := t.params
	price := snap.Price

	pivotHighs := indicators.PivotHighs(snap.Highs, p.PivotLeft, p.PivotRight)

	ob := findOrderBlock(snap.Candles, p.OBLookback)
	if ob == nil || !ob.Contains(price) {
		return nil
	}

	score := orderBlockScore
	reasons := []string{fmt.Sprintf("order block retest %.4f-%.4f", ob.Low, ob.High)}

	target := 0.0
	if patternTarget, ok := detectDoubleBottom(snap, p.PatternLookback, pivotHighs); ok {
		score += patternBonus
		target = patternTarget
		reasons = append(reasons, fmt.Sprintf("W pattern target %.4f", patternTarget))
	}
	if detectBullishDivergence(snap, p.PatternLookback, p.DivergenceSpan) {
		score += divergenceBonus
		reasons = append(reasons, "bullish RSI divergence")
	}
	if score < p.MinScore {
		return nil
	}

	stop := ob.Low - 0.2*ob.Height()
	if target == 0 {
		target = price + 2*(price-stop)
	}
	if stop >= price || target <= price {
		return nil
	}

	return &RawSignal{
		Symbol:      snap.Symbol,
		Direction:   models.DirectionLong,
		Score:       score,
		EntryPrice:  price,
		StopPrice:   stop,
		TargetPrice: target,
		Regime:      snap.Regime,
		Tactic:      t.Name(),
		Rationale:   strings.Join(reasons, "; "),
	}
}
