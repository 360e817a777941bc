// Package position owns the single open position of a symbol and executes
// its entry and exit orders.
package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"SpotTradeBot/internal/logger"
	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/services/risk"
	"SpotTradeBot/internal/services/strategy"
)

var (
	ErrPositionOpen    = errors.New("position already open")
	ErrNoPosition      = errors.New("no open position")
	ErrBelowMinimum    = errors.New("order notional below minimum")
	ErrTransient       = errors.New("exchange returned no result")
	ErrFillUnavailable = errors.New("filled quantity or average price unavailable")
)

// ExecutionError is a hard failure of an entry or exit attempt.
type ExecutionError struct {
	Symbol string
	Side   models.OrderSide
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Symbol, e.Side, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Metrics is satisfied by *metrics.Recorder.
type Metrics interface {
	EntryExecuted(symbol string)
	ExitExecuted(symbol, reason string, profit float64)
	ExecutionFailed(symbol, side, kind string)
	SetPositionOpen(symbol string, open bool)
}

type nopMetrics struct{}

func (nopMetrics) EntryExecuted(string) {}
func (nopMetrics) ExitExecuted(string, string, float64) {}
func (nopMetrics) ExecutionFailed(string, string, string) {}
func (nopMetrics) SetPositionOpen(string, bool) {}

type Config struct {
	MinOrderNotional float64
	SettlementDelay  time.Duration
}

type Option func(*Manager)

func WithMetrics(m Metrics) Option {
	return func(mgr *Manager) {
		if m != nil {
			mgr.metrics = m
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(mgr *Manager) { mgr.now = now }
}

// Manager is the FLAT/OPEN state machine of one symbol.
type Manager struct {
	symbol     string
	cfg        Config
	market     MarketDataProvider
	account    AccountProvider
	exec       OrderExecution
	sink       TradeLogSink
	classifier strategy.RegimeClassifier
	metrics    Metrics
	log        zerolog.Logger
	now        func() time.Time

	mu       sync.RWMutex
	position *models.Position
}

func NewManager(
	symbol string,
	cfg Config,
	market MarketDataProvider,
	account AccountProvider,
	exec OrderExecution,
	sink TradeLogSink,
	classifier strategy.RegimeClassifier,
	log zerolog.Logger,
	opts ...Option,
) *Manager {
	m := &Manager{
		symbol:     symbol,
		cfg:        cfg,
		market:     market,
		account:    account,
		exec:       exec,
		sink:       sink,
		classifier: classifier,
		metrics:    nopMetrics{},
		log:        log.With().Str("component", "position").Str("symbol", symbol).Logger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Symbol() string { return m.symbol }

func (m *Manager) HasPosition() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.position != nil
}

// Position returns a copy of the open position, or nil when flat.
func (m *Manager) Position() *models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.position == nil {
		return nil
	}
	cp := *m.position
	return &cp
}

// EnterPosition buys the order's notional at market and records the filled
// quantity and average price reported by the account.
func (m *Manager) EnterPosition(ctx context.Context, order *risk.SizedOrder) error {
	if m.HasPosition() {
		m.log.Warn().Msg("entry ignored, position already open")
		return ErrPositionOpen
	}
	if order == nil || order.Notional < m.cfg.MinOrderNotional {
		m.log.Warn().Msg("entry ignored, notional below minimum")
		return ErrBelowMinimum
	}

	m.log.Info().
		Float64("notional", order.Notional).
		Float64("stop", order.StopPrice).
		Float64("target", order.TargetPrice).
		Int("score", order.Score).
		Msg("submitting market buy")

	res, err := m.exec.SubmitMarketOrder(ctx, OrderRequest{
		Symbol:   m.symbol,
		Side:     models.SideBuy,
		Notional: order.Notional,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return m.fatal(models.SideBuy, err)
	}
	if res == nil {
		m.metrics.ExecutionFailed(m.symbol, string(models.SideBuy), "transient")
		m.log.Warn().Msg("market buy returned no result, will retry next cycle")
		return ErrTransient
	}
	if res.Error != nil {
		return m.fatal(models.SideBuy, res.Error)
	}

	// The order is live: finish bookkeeping even if the caller is cancelled.
	settleCtx := context.WithoutCancel(ctx)
	sleep(settleCtx, m.cfg.SettlementDelay)

	qty, avg, err := m.account.PositionBalance(settleCtx, m.symbol)
	if err != nil {
		return m.fatal(models.SideBuy, fmt.Errorf("query fill: %w", err))
	}
	if qty <= 0 || avg <= 0 {
		return m.fatal(models.SideBuy, ErrFillUnavailable)
	}

	pos := &models.Position{
		Symbol:      m.symbol,
		Direction:   order.Direction,
		EntryPrice:  avg,
		Quantity:    qty,
		StopPrice:   order.StopPrice,
		TargetPrice: order.TargetPrice,
		EntryRegime: order.Regime,
		Tactic:      order.Tactic,
		Score:       order.Score,
		EntryTime:   m.now(),
	}
	if pos.Direction == "" {
		pos.Direction = models.DirectionLong
	}

	m.mu.Lock()
	m.position = pos
	m.mu.Unlock()

	m.metrics.EntryExecuted(m.symbol)
	m.metrics.SetPositionOpen(m.symbol, true)
	logger.Success(m.log).
		Str("order_id", res.ID).
		Float64("price", avg).
		Float64("quantity", qty).
		Str("regime", string(order.Regime)).
		Msg("position opened")

	m.appendLog(settleCtx, &models.TradeLog{
		Symbol:    m.symbol,
		Side:      models.SideBuy,
		Direction: pos.Direction,
		Price:     avg,
		Quantity:  qty,
		Profit:    0,
		Strategy:  order.Tactic,
		Score:     order.Score,
		Timestamp: pos.EntryTime,
	})
	return nil
}

// CheckExit re-evaluates the open position against the latest candles and
// closes it when an exit rule fires. It returns the decision that fired.
func (m *Manager) CheckExit(ctx context.Context, candles []models.Candle) (*ExitDecision, error) {
	pos := m.Position()
	if pos == nil {
		return nil, nil
	}
	clean := models.CleanCandles(candles)
	price := models.LastClose(clean)
	if price <= 0 {
		return nil, nil
	}

	current := m.classifier.Classify(clean)
	decision, ok := EvaluateExit(*pos, current, price)
	if !ok {
		m.log.Debug().Float64("price", price).Str("regime", string(current)).Msg("holding")
		return nil, nil
	}

	m.log.Info().
		Str("reason", string(decision.Reason)).
		Str("detail", decision.String()).
		Float64("price", price).
		Float64("stop", pos.StopPrice).
		Float64("target", pos.TargetPrice).
		Msg("exit condition met")
	return &decision, m.ClosePosition(ctx, price, string(decision.Reason))
}

// ClosePosition sells the full quantity. A missing exchange answer keeps the
// position for a retry. Once the exchange has answered, the position is
// cleared no matter how the rest of the close goes.
func (m *Manager) ClosePosition(ctx context.Context, price float64, reason string) error {
	pos := m.Position()
	if pos == nil {
		m.log.Warn().Str("reason", reason).Msg("close ignored, no open position")
		return ErrNoPosition
	}

	res, err := m.exec.SubmitMarketOrder(ctx, OrderRequest{
		Symbol:   m.symbol,
		Side:     models.SideSell,
		Quantity: pos.Quantity,
	})
	if err == nil && res == nil {
		m.metrics.ExecutionFailed(m.symbol, string(models.SideSell), "transient")
		m.log.Warn().Str("reason", reason).Msg("market sell returned no result, will retry next cycle")
		return ErrTransient
	}
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	defer m.clear()

	if err != nil {
		return m.fatal(models.SideSell, err)
	}
	if res.Error != nil {
		return m.fatal(models.SideSell, res.Error)
	}

	settleCtx := context.WithoutCancel(ctx)
	sleep(settleCtx, m.cfg.SettlementDelay)

	closePrice := price
	if p, err := m.market.CurrentPrice(settleCtx, m.symbol); err == nil && p > 0 {
		closePrice = p
	} else if err != nil {
		m.log.Warn().Err(err).Msg("close price refresh failed, using trigger price")
	}

	profit := (closePrice - pos.EntryPrice) * pos.Quantity
	if pos.Direction == models.DirectionShort {
		profit = -profit
	}

	m.metrics.ExitExecuted(m.symbol, reason, profit)
	logger.Success(m.log).
		Str("order_id", res.ID).
		Str("reason", reason).
		Float64("price", closePrice).
		Float64("profit", profit).
		Msg("position closed")

	m.appendLog(settleCtx, &models.TradeLog{
		Symbol:    m.symbol,
		Side:      models.SideSell,
		Direction: pos.Direction,
		Price:     closePrice,
		Quantity:  pos.Quantity,
		Profit:    profit,
		Strategy:  pos.Tactic,
		Score:     pos.Score,
		Reason:    reason,
		Timestamp: m.now(),
	})
	return nil
}

func (m *Manager) clear() {
	m.mu.Lock()
	m.position = nil
	m.mu.Unlock()
	m.metrics.SetPositionOpen(m.symbol, false)
}

func (m *Manager) fatal(side models.OrderSide, err error) error {
	m.metrics.ExecutionFailed(m.symbol, string(side), "fatal")
	m.log.Error().Err(err).Str("side", string(side)).Msg("order execution failed")
	return &ExecutionError{Symbol: m.symbol, Side: side, Err: err}
}

func (m *Manager) appendLog(ctx context.Context, entry *models.TradeLog) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Append(ctx, entry); err != nil {
		m.log.Warn().Err(err).Str("side", string(entry.Side)).Msg("trade log append failed")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
