package position

import (
	"fmt"

	"SpotTradeBot/internal/models"
)

type ExitReason string

const (
	ExitRegimeChange ExitReason = "regime_change"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTakeProfit   ExitReason = "take_profit"
)

type ExitDecision struct {
	Reason ExitReason
	Regime models.Regime
	Price  float64
	Detail string
}

func (d ExitDecision) String() string {
	if d.Detail != "" {
		return d.Detail
	}
	return string(d.Reason)
}

// EvaluateExit applies the exit rules in priority order: regime change, then
// stop-loss, then take-profit. At most one rule fires.
func EvaluateExit(pos models.Position, current models.Regime, price float64) (ExitDecision, bool) {
	if regimeBroke(pos.EntryRegime, current) {
		return ExitDecision{
			Reason: ExitRegimeChange,
			Regime: current,
			Price:  price,
			Detail: fmt.Sprintf("regime change %s->%s", pos.EntryRegime, current),
		}, true
	}

	short := pos.Direction == models.DirectionShort
	if (!short && price <= pos.StopPrice) || (short && price >= pos.StopPrice) {
		return ExitDecision{Reason: ExitStopLoss, Regime: current, Price: price}, true
	}
	if (!short && price >= pos.TargetPrice) || (short && price <= pos.TargetPrice) {
		return ExitDecision{Reason: ExitTakeProfit, Regime: current, Price: price}, true
	}
	return ExitDecision{}, false
}

// regimeBroke has no rule for BEAR entries.
func regimeBroke(entry, current models.Regime) bool {
	switch entry {
	case models.RegimeBull:
		return current == models.RegimeRange || current == models.RegimeBear
	case models.RegimeRange:
		return current == models.RegimeBear
	}
	return false
}
