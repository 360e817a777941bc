// Package backtest replays historical candles through the live signal,
// sizing and position code against a paper account.
package backtest

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/operations/paper"
	"SpotTradeBot/internal/operations/position"
	"SpotTradeBot/internal/operations/price"
	"SpotTradeBot/internal/services/risk"
	"SpotTradeBot/internal/services/strategy"
)

var ErrNoCandles = errors.New("no complete candles to replay")

type SignalGenerator interface {
	GenerateSignal(candles []models.Candle, symbol string) *strategy.RawSignal
}

type OrderSizer interface {
	Size(raw *strategy.RawSignal, currentPrice, balance float64) (*risk.SizedOrder, error)
}

type Engine struct {
	classifier strategy.RegimeClassifier
	signals    SignalGenerator
	sizer      OrderSizer
	config     Config
	log        zerolog.Logger
}

func NewEngine(classifier strategy.RegimeClassifier, signals SignalGenerator, sizer OrderSizer, config Config, log zerolog.Logger) *Engine {
	return &Engine{
		classifier: classifier,
		signals:    signals,
		sizer:      sizer,
		config:     config,
		log:        log.With().Str("component", "backtest").Str("symbol", config.Symbol).Logger(),
	}
}

// session is the state of one replay.
type session struct {
	market   *replayMarket
	exchange *paper.Exchange
	trades   *tradeCollector
	manager  *position.Manager

	signals    int
	rejections int
}

// RunBacktest replays candles bar by bar. At each close an open position is
// checked for an exit, otherwise the signal engine looks for an entry. A
// position still open after the last bar is sold at its close.
func (e *Engine) RunBacktest(ctx context.Context, candles []models.Candle) (*BacktestResults, error) {
	clean := models.CleanCandles(candles)
	if len(clean) == 0 {
		return nil, ErrNoCandles
	}
	sort.SliceStable(clean, func(i, j int) bool {
		return clean[i].OpenTime.Before(clean[j].OpenTime)
	})

	e.log.Info().
		Time("start", clean[0].OpenTime).
		Time("end", clean[len(clean)-1].OpenTime).
		Int("bars", len(clean)).
		Msg("running backtest")

	s := e.newSession(clean)
	equity := make([]EquityPoint, 0, len(clean))

	for i := range clean {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.market.advance(i)

		if i+1 >= e.config.Warmup {
			window := s.market.window(e.config.Window)
			if s.manager.HasPosition() {
				e.checkExit(ctx, s, window)
			} else {
				e.tryEnter(ctx, s, window)
			}
		}

		equity = append(equity, EquityPoint{
			Timestamp: s.market.now(),
			Balance:   s.markToMarket(ctx, e.config.Symbol),
		})
	}

	if s.manager.HasPosition() {
		last := s.market.current()
		if err := s.manager.ClosePosition(ctx, last.Close, EndOfDataReason); err != nil {
			e.log.Warn().Err(err).Msg("closing final position failed")
		}
		equity[len(equity)-1].Balance = s.markToMarket(ctx, e.config.Symbol)
	}

	results := calculateResults(e.config.InitialBalance, s.trades.completed(), equity, periodsPerYear(e.config.Interval))
	results.Signals = s.signals
	results.SizingRejections = s.rejections

	e.log.Info().
		Int("trades", results.TotalTrades).
		Float64("win_rate", results.WinRate).
		Float64("final_balance", results.FinalBalance).
		Float64("max_drawdown", results.MaxDrawdown).
		Msg("backtest finished")
	return results, nil
}

func (e *Engine) newSession(candles []models.Candle) *session {
	market := newReplayMarket(e.config.Symbol, candles)
	exchange := paper.NewExchange(market, e.config.InitialBalance, e.config.FeeRate, e.log)
	trades := newTradeCollector(e.config.FeeRate)
	manager := position.NewManager(
		e.config.Symbol,
		position.Config{MinOrderNotional: e.config.MinOrderNotional},
		market,
		exchange,
		exchange,
		trades,
		e.classifier,
		e.log,
		position.WithClock(market.now),
	)
	return &session{market: market, exchange: exchange, trades: trades, manager: manager}
}

func (e *Engine) checkExit(ctx context.Context, s *session, window []models.Candle) {
	if _, err := s.manager.CheckExit(ctx, window); err != nil && !errors.Is(err, position.ErrTransient) {
		e.log.Warn().Err(err).Time("bar", s.market.now()).Msg("simulated exit failed")
	}
}

func (e *Engine) tryEnter(ctx context.Context, s *session, window []models.Candle) {
	sig := e.signals.GenerateSignal(window, e.config.Symbol)
	if sig == nil {
		return
	}
	s.signals++

	balance, _ := s.exchange.QuoteBalance(ctx)
	order, err := e.sizer.Size(sig, s.market.current().Close, balance)
	if err != nil {
		s.rejections++
		e.log.Debug().Err(err).Time("bar", s.market.now()).Msg("signal discarded by sizer")
		return
	}

	if err := s.manager.EnterPosition(ctx, order); err != nil {
		e.log.Debug().Err(err).Time("bar", s.market.now()).Msg("simulated entry failed")
		return
	}
	if pos := s.manager.Position(); pos != nil {
		s.trades.setLevels(pos.StopPrice, pos.TargetPrice)
	}
}

// markToMarket values the paper account at the current bar's close.
func (s *session) markToMarket(ctx context.Context, symbol string) float64 {
	cash, _ := s.exchange.QuoteBalance(ctx)
	qty, _, _ := s.exchange.PositionBalance(ctx, symbol)
	return cash + qty*s.market.current().Close
}

func calculateResults(initialBalance float64, trades []Trade, equity []EquityPoint, periods float64) *BacktestResults {
	results := &BacktestResults{
		FinalBalance: initialBalance,
		Trades:       trades,
		EquityCurve:  equity,
	}
	if len(equity) > 0 {
		results.FinalBalance = equity[len(equity)-1].Balance
	}

	// Calculate drawdown
	peakBalance := initialBalance
	for _, point := range equity {
		if point.Balance > peakBalance {
			peakBalance = point.Balance
		}
		if peakBalance <= 0 {
			continue
		}
		drawdown := (peakBalance - point.Balance) / peakBalance
		if drawdown > results.MaxDrawdown {
			results.MaxDrawdown = drawdown
		}
	}
	results.SharpeRatio = calculateSharpeRatio(equity, periods)

	if len(trades) == 0 {
		return results
	}

	totalPnL := 0.0
	for _, trade := range trades {
		if trade.PnL > 0 {
			results.WinningTrades++
		} else {
			results.LosingTrades++
		}
		totalPnL += trade.PnL
	}

	results.TotalTrades = len(trades)
	results.WinRate = float64(results.WinningTrades) / float64(results.TotalTrades)
	results.AveragePnL = totalPnL / float64(results.TotalTrades)
	return results
}

// calculateSharpeRatio annualizes per-bar returns of the equity curve with a
// zero risk-free rate.
func calculateSharpeRatio(equity []EquityPoint, periods float64) float64 {
	if len(equity) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Balance
		if prev == 0 {
			continue
		}
		returns = append(returns, (equity[i].Balance-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	avgReturn := 0.0
	for _, r := range returns {
		avgReturn += r
	}
	avgReturn /= float64(len(returns))

	// Sample variance
	variance := 0.0
	for _, r := range returns {
		variance += math.Pow(r-avgReturn, 2)
	}
	variance /= float64(len(returns) - 1)
	stdDev := math.Sqrt(variance)

	if stdDev == 0 {
		return 0
	}
	return (avgReturn * periods) / (stdDev * math.Sqrt(periods))
}

// periodsPerYear counts bars in a year; crypto trades every day.
func periodsPerYear(interval string) float64 {
	d, err := price.IntervalDuration(interval)
	if err != nil || d <= 0 {
		return 365
	}
	return float64(365*24*time.Hour) / float64(d)
}
