package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/operations/position"
	"SpotTradeBot/internal/services/risk"
	"SpotTradeBot/internal/services/strategy"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fixedRegime models.Regime

func (f fixedRegime) Classify([]models.Candle) models.Regime { return models.Regime(f) }

type levels struct{ stop, target float64 }

// scriptedSignals fires on the bars whose index is in the script.
type scriptedSignals struct {
	script map[int]levels
	seen   []int
}

func (s *scriptedSignals) GenerateSignal(candles []models.Candle, symbol string) *strategy.RawSignal {
	last := candles[len(candles)-1]
	bar := int(last.OpenTime.Sub(epoch) / time.Hour)
	s.seen = append(s.seen, bar)
	lv, ok := s.script[bar]
	if !ok {
		return nil
	}
	return &strategy.RawSignal{
		Symbol:      symbol,
		Direction:   models.DirectionLong,
		Score:       14,
		Regime:      models.RegimeBull,
		Tactic:      "scripted",
		StopPrice:   lv.stop,
		TargetPrice: lv.target,
	}
}

// unitSizer buys 1000 units, or rejects every signal.
type unitSizer struct{ reject bool }

func (u unitSizer) Size(raw *strategy.RawSignal, price, _ float64) (*risk.SizedOrder, error) {
	if u.reject {
		return nil, risk.ErrBelowMinimum
	}
	return &risk.SizedOrder{
		Symbol:      raw.Symbol,
		Direction:   raw.Direction,
		EntryPrice:  price,
		StopPrice:   raw.StopPrice,
		TargetPrice: raw.TargetPrice,
		Notional:    1000 * price,
		Quantity:    1000,
		Score:       raw.Score,
		Regime:      raw.Regime,
		Tactic:      raw.Tactic,
	}, nil
}

// series builds hourly candles whose closes change at the given bars.
func series(n int, steps map[int]float64, start float64) []models.Candle {
	out := make([]models.Candle, n)
	c := start
	for i := range out {
		if v, ok := steps[i]; ok {
			c = v
		}
		open := epoch.Add(time.Duration(i) * time.Hour)
		out[i] = models.Candle{
			Symbol:    "BTCUSDT",
			TimeFrame: models.TimeFrame1h,
			OpenTime:  open,
			CloseTime: open.Add(time.Hour - time.Millisecond),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1,
		}
	}
	return out
}

func newTestEngine(signals SignalGenerator, sizer OrderSizer) *Engine {
	return NewEngine(fixedRegime(models.RegimeBull), signals, sizer, NewConfig("BTCUSDT"), zerolog.Nop())
}

func TestRunBacktest_RoundTrips(t *testing.T) {
	t.Parallel()

	candles := series(80, map[int]float64{60: 111, 75: 104}, 100)
	signals := &scriptedSignals{script: map[int]levels{
		55: {stop: 95, target: 110},
		70: {stop: 105, target: 130},
	}}

	res, err := newTestEngine(signals, unitSizer{}).RunBacktest(context.Background(), candles)
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	win, loss := res.Trades[0], res.Trades[1]

	assert.Equal(t, string(position.ExitTakeProfit), win.Reason)
	assert.InDelta(t, 100, win.EntryPrice, 1e-9)
	assert.InDelta(t, 111, win.ExitPrice, 1e-9)
	assert.InDelta(t, 1000, win.Quantity, 1e-9)
	assert.InDelta(t, 95, win.StopLoss, 1e-9)
	assert.InDelta(t, 110, win.TakeProfit, 1e-9)
	assert.InDelta(t, 105.5, win.Fees, 1e-6)
	assert.InDelta(t, 10894.5, win.PnL, 1e-6)
	assert.Equal(t, "scripted", win.Tactic)
	assert.True(t, win.ExitTime.After(win.EntryTime))

	assert.Equal(t, string(position.ExitStopLoss), loss.Reason)
	assert.InDelta(t, -7107.5, loss.PnL, 1e-6)

	assert.Equal(t, 2, res.TotalTrades)
	assert.Equal(t, 1, res.WinningTrades)
	assert.Equal(t, 1, res.LosingTrades)
	assert.InDelta(t, 0.5, res.WinRate, 1e-9)
	assert.InDelta(t, 1893.5, res.AveragePnL, 1e-6)
	assert.InDelta(t, 10_003_787, res.FinalBalance, 1e-4)
	assert.Equal(t, 2, res.Signals)
	assert.Len(t, res.EquityCurve, 80)
	assert.Greater(t, res.MaxDrawdown, 0.0)
}

func TestRunBacktest_WarmupAndSingleActionPerBar(t *testing.T) {
	t.Parallel()

	signals := &scriptedSignals{script: map[int]levels{55: {stop: 95, target: 110}}}
	_, err := newTestEngine(signals, unitSizer{}).RunBacktest(context.Background(), series(60, nil, 100))
	require.NoError(t, err)

	// Bars before warmup are not evaluated and no signal is asked for while
	// the position is open.
	require.NotEmpty(t, signals.seen)
	assert.Equal(t, 49, signals.seen[0])
	assert.Equal(t, 55, signals.seen[len(signals.seen)-1])
}

func TestRunBacktest_ClosesAtEndOfData(t *testing.T) {
	t.Parallel()

	signals := &scriptedSignals{script: map[int]levels{55: {stop: 90, target: 200}}}
	res, err := newTestEngine(signals, unitSizer{}).RunBacktest(context.Background(), series(60, nil, 100))
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, EndOfDataReason, trade.Reason)
	assert.InDelta(t, -100, trade.PnL, 1e-6)
	assert.InDelta(t, 9_999_900, res.FinalBalance, 1e-4)
	assert.InDelta(t, res.FinalBalance, res.EquityCurve[len(res.EquityCurve)-1].Balance, 1e-9)
}

func TestRunBacktest_SizingRejections(t *testing.T) {
	t.Parallel()

	signals := &scriptedSignals{script: map[int]levels{52: {95, 110}, 55: {95, 110}}}
	res, err := newTestEngine(signals, unitSizer{reject: true}).RunBacktest(context.Background(), series(60, nil, 100))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Signals)
	assert.Equal(t, 2, res.SizingRejections)
	assert.Zero(t, res.TotalTrades)
	assert.Empty(t, res.Trades)
	assert.InDelta(t, 10_000_000, res.FinalBalance, 1e-9)
	assert.Zero(t, res.MaxDrawdown)
	assert.Zero(t, res.SharpeRatio)
}

func TestRunBacktest_Errors(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(&scriptedSignals{}, unitSizer{})

	_, err := engine.RunBacktest(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoCandles)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.RunBacktest(ctx, series(60, nil, 100))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateResults(t *testing.T) {
	t.Parallel()

	curve := func(balances ...float64) []EquityPoint {
		out := make([]EquityPoint, len(balances))
		for i, b := range balances {
			out[i] = EquityPoint{Timestamp: epoch.Add(time.Duration(i) * time.Hour), Balance: b}
		}
		return out
	}

	tests := []struct {
		name         string
		trades       []Trade
		equity       []EquityPoint
		wantDrawdown float64
		wantFinal    float64
		wantWinRate  float64
	}{
		{
			name:      "no equity keeps initial balance",
			wantFinal: 100,
		},
		{
			name:         "drawdown from running peak",
			trades:       []Trade{{PnL: 10}, {PnL: -11}},
			equity:       curve(100, 110, 99),
			wantDrawdown: 0.1,
			wantFinal:    99,
			wantWinRate:  0.5,
		},
		{
			name:        "break-even trade counts as a loss",
			trades:      []Trade{{PnL: 5}, {PnL: 0}, {PnL: 3}, {PnL: 2}},
			equity:      curve(100, 105, 105, 108, 110),
			wantFinal:   110,
			wantWinRate: 0.75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := calculateResults(100, tt.trades, tt.equity, 8760)
			assert.InDelta(t, tt.wantDrawdown, res.MaxDrawdown, 1e-9)
			assert.InDelta(t, tt.wantFinal, res.FinalBalance, 1e-9)
			assert.InDelta(t, tt.wantWinRate, res.WinRate, 1e-9)
			assert.Equal(t, len(tt.trades), res.TotalTrades)
		})
	}
}

func TestCalculateSharpeRatio(t *testing.T) {
	t.Parallel()

	flat := []EquityPoint{{Balance: 100}, {Balance: 100}, {Balance: 100}}
	assert.Zero(t, calculateSharpeRatio(flat, 365))

	rising := []EquityPoint{{Balance: 100}, {Balance: 101}, {Balance: 103}, {Balance: 104}}
	assert.Greater(t, calculateSharpeRatio(rising, 365), 0.0)

	assert.Zero(t, calculateSharpeRatio(rising[:2], 365))
}

func TestPeriodsPerYear(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 8760, periodsPerYear("1h"), 1e-9)
	assert.InDelta(t, 365, periodsPerYear("1d"), 1e-9)
	assert.InDelta(t, 365, periodsPerYear("bogus"), 1e-9)
}
