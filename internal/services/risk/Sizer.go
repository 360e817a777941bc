// Package risk turns a raw signal into a fully sized order using a
// fixed-fractional loss budget.
package risk

import (
	"errors"
	"math"
	"time"

	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/services/strategy"
)

var (
	ErrMissingFields = errors.New("signal is missing stop, target or regime")
	ErrInvalidRisk   = errors.New("per-unit loss is not positive")
	ErrInvalidSetup  = errors.New("stop and target are on the wrong side of entry")
	ErrBelowMinimum  = errors.New("order notional below exchange minimum")
)

type Config struct {
	TotalCapital     float64
	BaseRiskPct      float64 // percent, 0.5 means 0.5%
	MinOrderNotional float64
	FeeBuffer        float64 // fraction, 0.001 means 0.1%
}

func DefaultConfig() Config {
	return Config{
		TotalCapital:     1_000_000,
		BaseRiskPct:      0.5,
		MinOrderNotional: 5000,
		FeeBuffer:        0.001,
	}
}

// SizedOrder is a signal with concrete size, ready for execution.
type SizedOrder struct {
	Symbol         string
	Direction      models.Direction
	Timestamp      time.Time
	EntryPrice     float64
	StopPrice      float64
	TargetPrice    float64
	Notional       float64
	Quantity       float64
	Score          int
	Regime         models.Regime
	Tactic         string
	Rationale      string
	RiskMultiplier float64
	Capped         bool
}

type Sizer struct {
	cfg Config
	now func() time.Time
}

func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg, now: time.Now}
}

// BaseRiskAmount is the loss budget of a trade at multiplier 1.
func (s *Sizer) BaseRiskAmount() float64 {
	return s.cfg.TotalCapital * s.cfg.BaseRiskPct / 100
}

// Size converts a raw signal into an order at the current price. A nil order
// always comes with one of the package errors.
func (s *Sizer) Size(raw *strategy.RawSignal, currentPrice, balance float64) (*SizedOrder, error) {
	if raw == nil || raw.StopPrice <= 0 || raw.TargetPrice <= 0 || !raw.Regime.Valid() {
		return nil, ErrMissingFields
	}

	entry := currentPrice
	perUnitLoss := math.Abs(entry - raw.StopPrice)
	if entry <= 0 || perUnitLoss <= 0 || math.IsNaN(perUnitLoss) {
		return nil, ErrInvalidRisk
	}
	if !(raw.StopPrice < entry && entry < raw.TargetPrice) {
		return nil, ErrInvalidSetup
	}

	multiplier := RiskMultiplier(raw.Regime, raw.Score)
	budget := s.BaseRiskAmount() * multiplier

	quantity := budget / perUnitLoss
	notional := quantity * entry

	capped := false
	if limit := balance * (1 - s.cfg.FeeBuffer); notional > limit {
		notional = math.Max(limit, 0)
		quantity = notional / entry
		capped = true
	}
	if notional < s.cfg.MinOrderNotional || notional <= 0 {
		return nil, ErrBelowMinimum
	}

	return &SizedOrder{
		Symbol:         raw.Symbol,
		Direction:      raw.Direction,
		Timestamp:      s.now(),
		EntryPrice:     entry,
		StopPrice:      raw.StopPrice,
		TargetPrice:    raw.TargetPrice,
		Notional:       notional,
		Quantity:       quantity,
		Score:          raw.Score,
		Regime:         raw.Regime,
		Tactic:         raw.Tactic,
		Rationale:      raw.Rationale,
		RiskMultiplier: multiplier,
		Capped:         capped,
	}, nil
}

// RiskMultiplier is the smaller of the regime scaler and the score scaler.
func RiskMultiplier(r models.Regime, score int) float64 {
	return math.Min(regimeScaler(r), scoreScaler(score))
}

func regimeScaler(r models.Regime) float64 {
	if r == models.RegimeRange {
		return 0.8
	}
	return 1.0
}

func scoreScaler(score int) float64 {
	switch {
	case score >= 18:
		return 1.5
	case score >= 16:
		return 1.2
	case score <= 13:
		return 0.8
	default:
		return 1.0
	}
}
