package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/services/strategy"
)

func signal(regime models.Regime, score int, stop, target float64) *strategy.RawSignal {
	return &strategy.RawSignal{
		Symbol:      "BTCUSDT",
		Direction:   models.DirectionLong,
		Score:       score,
		StopPrice:   stop,
		TargetPrice: target,
		Regime:      regime,
		Tactic:      "bull_order_block",
	}
}

func TestRiskMultiplier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		regime models.Regime
		score  int
		want   float64
	}{
		{models.RegimeBull, 18, 1.0},
		{models.RegimeBull, 14, 1.0},
		{models.RegimeBull, 13, 0.8},
		{models.RegimeBear, 16, 1.0},
		{models.RegimeRange, 12, 0.8},
		{models.RegimeRange, 18, 0.8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskMultiplier(tt.regime, tt.score), "%s/%d", tt.regime, tt.score)
	}

	assert.Equal(t, 1.5, scoreScaler(18))
	assert.Equal(t, 1.2, scoreScaler(17))
	assert.Equal(t, 1.0, scoreScaler(15))
	assert.Equal(t, 0.8, scoreScaler(12))
}

func TestSize_Scenario(t *testing.T) {
	t.Parallel()

	s := NewSizer(DefaultConfig())
	assert.Equal(t, 5000.0, s.BaseRiskAmount())

	order, err := s.Size(signal(models.RegimeBull, 14, 97.6, 101.8), 100, 1_000_000)
	require.NoError(t, err)
	assert.InDelta(t, 5000/2.4, order.Quantity, 1e-6)
	assert.InDelta(t, 5000/2.4*100, order.Notional, 1e-6)
	assert.InDelta(t, order.Quantity*order.EntryPrice, order.Notional, 1e-6)
	assert.False(t, order.Capped)
	assert.Equal(t, 1.0, order.RiskMultiplier)
	assert.Equal(t, models.RegimeBull, order.Regime)
	assert.Equal(t, "bull_order_block", order.Tactic)
	assert.Less(t, order.StopPrice, order.EntryPrice)
	assert.Less(t, order.EntryPrice, order.TargetPrice)
}

func TestSize_BalanceCap(t *testing.T) {
	t.Parallel()

	s := NewSizer(DefaultConfig())

	tests := []struct {
		name    string
		balance float64
		capped  bool
	}{
		{name: "well below balance", balance: 1_000_000, capped: false},
		{name: "above balance", balance: 100_000, capped: true},
		{name: "inside fee buffer", balance: 208_400, capped: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			order, err := s.Size(signal(models.RegimeBull, 14, 97.6, 101.8), 100, tt.balance)
			require.NoError(t, err)
			assert.Equal(t, tt.capped, order.Capped)
			assert.LessOrEqual(t, order.Notional, tt.balance*(1-0.001)+1e-9)
			assert.InDelta(t, order.Quantity*order.EntryPrice, order.Notional, 1e-6)
		})
	}
}

func TestSize_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     *strategy.RawSignal
		price   float64
		balance float64
		want    error
	}{
		{name: "nil", raw: nil, price: 100, balance: 1e6, want: ErrMissingFields},
		{name: "no stop", raw: signal(models.RegimeBull, 14, 0, 110), price: 100, balance: 1e6, want: ErrMissingFields},
		{name: "no target", raw: signal(models.RegimeBull, 14, 95, 0), price: 100, balance: 1e6, want: ErrMissingFields},
		{name: "no regime", raw: signal("", 14, 95, 110), price: 100, balance: 1e6, want: ErrMissingFields},
		{name: "zero distance", raw: signal(models.RegimeBull, 14, 100, 110), price: 100, balance: 1e6, want: ErrInvalidRisk},
		{name: "stop above price", raw: signal(models.RegimeBull, 14, 101, 110), price: 100, balance: 1e6, want: ErrInvalidSetup},
		{name: "target below price", raw: signal(models.RegimeBull, 14, 95, 99), price: 100, balance: 1e6, want: ErrInvalidSetup},
		{name: "capped below minimum", raw: signal(models.RegimeBull, 14, 97.6, 101.8), price: 100, balance: 4000, want: ErrBelowMinimum},
		{name: "empty balance", raw: signal(models.RegimeBull, 14, 97.6, 101.8), price: 100, balance: 0, want: ErrBelowMinimum},
	}

	s := NewSizer(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			order, err := s.Size(tt.raw, tt.price, tt.balance)
			assert.Nil(t, order)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSize_UncappedBelowMinimum(t *testing.T) {
	t.Parallel()

	// wide stop on tiny capital: budget 5, notional 5 * 100 / 50 = 10
	s := NewSizer(Config{TotalCapital: 1000, BaseRiskPct: 0.5, MinOrderNotional: 5000, FeeBuffer: 0.001})
	order, err := s.Size(signal(models.RegimeBull, 14, 50, 200), 100, 1e6)
	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrBelowMinimum)
}
