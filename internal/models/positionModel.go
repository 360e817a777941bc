package models

import "time"

// Regime is the market state derived from the current candle window.
type Regime string

const (
	RegimeBull  Regime = "BULL"
	RegimeBear  Regime = "BEAR"
	RegimeRange Regime = "RANGE"
)

func (r Regime) Valid() bool {
	switch r {
	case RegimeBull, RegimeBear, RegimeRange:
		return true
	}
	return false
}

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Position is the single in-memory holding for a symbol. It is never mutated
// after creation; closing replaces it with nil.
type Position struct {
	Symbol      string    `json:"symbol"`
	Direction   Direction `json:"direction"`
	EntryPrice  float64   `json:"entry_price"`
	Quantity    float64   `json:"quantity"`
	StopPrice   float64   `json:"stop_price"`
	TargetPrice float64   `json:"target_price"`
	EntryRegime Regime    `json:"entry_regime"`
	Tactic      string    `json:"tactic"`
	Score       int       `json:"score"`
	EntryTime   time.Time `json:"entry_time"`
}
