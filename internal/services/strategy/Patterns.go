package strategy

import (
	"math"

	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/services/indicators"
)

const (
	oversoldRSI      = 35.0
	recoveryRSILow   = 38.0
	recoveryRSIHigh  = 45.0
	orderBlockScore  = 10
	patternBonus     = 4
	divergenceBonus  = 4
	rangeBounceScore = 12
)

// OrderBlock is the [Low, High] zone of the last down candle before a
// bullish breakout.
type OrderBlock struct {
	Index int
	Low   float64
	High  float64
}

func (ob OrderBlock) Height() float64 { return ob.High - ob.Low }

func (ob OrderBlock) Contains(price float64) bool {
	return price >= ob.Low && price <= ob.High
}

// findOrderBlock scans the newest lookback candles backwards for a down
// candle immediately followed by an up candle closing above its high.
func findOrderBlock(candles []models.Candle, lookback int) *OrderBlock {
	start := len(candles) - lookback
	if start < 0 {
		start = 0
	}
	for i := len(candles) - 2; i >= start; i-- {
		down, up := candles[i], candles[i+1]
		if down.Close < down.Open && up.Close > up.Open && up.Close > down.High {
			return &OrderBlock{Index: i, Low: down.Low, High: down.High}
		}
	}
	return nil
}

// detectDoubleBottom looks for a W: at least two separate RSI dips below
// the oversold line inside the lookback and a current RSI recovering into
// [38, 45]. The target is the highest confirmed pivot high in the window,
// falling back to the window's highest high.
func detectDoubleBottom(snap *Snapshot, lookback int, pivotHighs []int) (float64, bool) {
	if len(snap.RSI) == 0 || len(snap.Highs) == 0 {
		return 0, false
	}
	current := snap.CurrentRSI()
	if math.IsNaN(current) || current < recoveryRSILow || current > recoveryRSIHigh {
		return 0, false
	}

	start := windowStart(len(snap.RSI), lookback)
	dips, inDip := 0, false
	for _, v := range snap.RSI[start:] {
		if math.IsNaN(v) {
			continue
		}
		if v < oversoldRSI {
			if !inDip {
				dips++
			}
			inDip = true
		} else {
			inDip = false
		}
	}
	if dips < 2 {
		return 0, false
	}

	target := 0.0
	for _, idx := range pivotHighs {
		if idx >= start && snap.Highs[idx] > target {
			target = snap.Highs[idx]
		}
	}
	if target == 0 {
		for _, h := range snap.Highs[start:] {
			target = math.Max(target, h)
		}
	}
	return target, true
}

// detectBullishDivergence compares the last two pivot lows inside the
// lookback: price made a lower low while RSI made a higher low.
func detectBullishDivergence(snap *Snapshot, lookback, span int) bool {
	if len(snap.RSI) != len(snap.Lows) {
		return false
	}
	start := windowStart(len(snap.Lows), lookback)
	lows := indicators.PivotLows(snap.Lows[start:], span, span)
	if len(lows) < 2 {
		return false
	}
	i1, i2 := start+lows[len(lows)-2], start+lows[len(lows)-1]
	r1, r2 := snap.RSI[i1], snap.RSI[i2]
	if math.IsNaN(r1) || math.IsNaN(r2) {
		return false
	}
	return snap.Lows[i2] < snap.Lows[i1] && r2 > r1
}

func windowStart(n, lookback int) int {
	if lookback <= 0 || lookback > n {
		return 0
	}
	return n - lookback
}
