package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"SpotTradeBot/internal/logger"
	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/operations/position"
	"SpotTradeBot/internal/services/risk"
	"SpotTradeBot/internal/services/strategy"
)

var (
	ErrDataUnavailable  = errors.New("market data unavailable")
	ErrRetriesExhausted = errors.New("consecutive failures exceeded retry policy")
	errCyclePanic       = errors.New("cycle panicked")
)

// Metrics is satisfied by *metrics.Recorder.
type Metrics interface {
	position.Metrics
	SignalGenerated(symbol, tactic string)
	SizingRejected(symbol, reason string)
	DataFetchFailed(symbol string)
	SetLastPrice(symbol string, price float64)
	ObserveCycle(symbol string, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) EntryExecuted(string) {}
func (nopMetrics) ExitExecuted(string, string, float64) {}
func (nopMetrics) ExecutionFailed(string, string, string) {}
func (nopMetrics) SetPositionOpen(string, bool) {}
func (nopMetrics) SignalGenerated(string, string) {}
func (nopMetrics) SizingRejected(string, string) {}
func (nopMetrics) DataFetchFailed(string) {}
func (nopMetrics) SetLastPrice(string, float64) {}
func (nopMetrics) ObserveCycle(string, time.Duration) {}

type SignalGenerator interface {
	GenerateSignal(candles []models.Candle, symbol string) *strategy.RawSignal
}

type OrderSizer interface {
	Size(raw *strategy.RawSignal, currentPrice, balance float64) (*risk.SizedOrder, error)
}

// RetryPolicy governs how the loop reacts to failed cycles. MaxAttempts of
// zero retries forever.
type RetryPolicy struct {
	Backoff     time.Duration
	MaxAttempts int
}

type RunnerConfig struct {
	Interval         string
	CandleCount      int
	CycleInterval    time.Duration
	PositionInterval time.Duration
	Retry            RetryPolicy
}

// SymbolRunner drives one symbol: each cycle it fetches candles, then either
// checks the open position for an exit or looks for a new entry.
type SymbolRunner struct {
	symbol    string
	cfg       RunnerConfig
	market    position.MarketDataProvider
	account   position.AccountProvider
	engine    SignalGenerator
	sizer     OrderSizer
	manager   *position.Manager
	entryLock sync.Locker
	metrics   Metrics
	log       zerolog.Logger
	wait      func(ctx context.Context, d time.Duration) bool
}

// NewSymbolRunner builds a runner. entryLock must be shared by every runner
// trading from the same account.
func NewSymbolRunner(
	symbol string,
	cfg RunnerConfig,
	market position.MarketDataProvider,
	account position.AccountProvider,
	engine SignalGenerator,
	sizer OrderSizer,
	manager *position.Manager,
	entryLock sync.Locker,
	metrics Metrics,
	log zerolog.Logger,
) *SymbolRunner {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &SymbolRunner{
		symbol:    symbol,
		cfg:       cfg,
		market:    market,
		account:   account,
		engine:    engine,
		sizer:     sizer,
		manager:   manager,
		entryLock: entryLock,
		metrics:   metrics,
		log:       log.With().Str("component", "runner").Str("symbol", symbol).Logger(),
		wait:      waitFor,
	}
}

func (r *SymbolRunner) Symbol() string { return r.symbol }

func (r *SymbolRunner) Manager() *position.Manager { return r.manager }

// Run loops until ctx is cancelled, returning nil, or until the retry policy
// gives up, returning ErrRetriesExhausted.
func (r *SymbolRunner) Run(ctx context.Context) error {
	r.log.Info().
		Dur("cycle", r.cfg.CycleInterval).
		Dur("position_cycle", r.cfg.PositionInterval).
		Msg("bot started")

	failures := 0
	for {
		if ctx.Err() != nil {
			r.log.Info().Msg("bot stopped")
			return nil
		}

		next, err := r.safeCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Info().Msg("bot stopped")
				return nil
			}
			failures++
			r.log.Warn().Err(err).Int("failures", failures).Dur("backoff", r.cfg.Retry.Backoff).Msg("cycle failed")
			if r.cfg.Retry.MaxAttempts > 0 && failures >= r.cfg.Retry.MaxAttempts {
				r.log.Error().Err(err).Int("failures", failures).Msg("giving up")
				return fmt.Errorf("%s: %w: %v", r.symbol, ErrRetriesExhausted, err)
			}
			next = r.cfg.Retry.Backoff
		} else {
			failures = 0
		}

		if !r.wait(ctx, next) {
			r.log.Info().Msg("bot stopped")
			return nil
		}
	}
}

func (r *SymbolRunner) safeCycle(ctx context.Context) (next time.Duration, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Msg("recovered from panic in cycle")
			err = fmt.Errorf("%w: %v", errCyclePanic, p)
		}
	}()
	return r.cycle(ctx)
}

// cycle runs one iteration and returns how long to wait before the next.
func (r *SymbolRunner) cycle(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	defer func() { r.metrics.ObserveCycle(r.symbol, time.Since(start)) }()

	candles, err := r.market.Candles(ctx, r.symbol, r.cfg.Interval, r.cfg.CandleCount)
	if err != nil {
		r.metrics.DataFetchFailed(r.symbol)
		return 0, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	clean := models.CleanCandles(candles)
	if len(clean) == 0 {
		r.metrics.DataFetchFailed(r.symbol)
		return 0, fmt.Errorf("%w: no complete candles", ErrDataUnavailable)
	}
	r.metrics.SetLastPrice(r.symbol, models.LastClose(clean))

	if r.manager.HasPosition() {
		r.checkExit(ctx, clean)
	} else {
		r.tryEnter(ctx, clean)
	}

	if r.manager.HasPosition() {
		return r.cfg.PositionInterval, nil
	}
	return r.cfg.CycleInterval, nil
}

// checkExit leaves execution failures to the manager, which logs them and
// decides whether the position survives.
func (r *SymbolRunner) checkExit(ctx context.Context, candles []models.Candle) {
	decision, err := r.manager.CheckExit(ctx, candles)
	switch {
	case err == nil && decision != nil:
		logger.Success(r.log).Str("reason", decision.String()).Msg("exit completed")
	case errors.Is(err, position.ErrTransient):
		r.log.Warn().Msg("exit deferred to next cycle")
	case err != nil:
		r.log.Error().Err(err).Msg("exit failed")
	}
}

// tryEnter holds the shared entry lock from the balance read through the
// fill query so that runners never size against the same stale balance.
func (r *SymbolRunner) tryEnter(ctx context.Context, candles []models.Candle) {
	sig := r.engine.GenerateSignal(candles, r.symbol)
	if sig == nil {
		return
	}
	r.metrics.SignalGenerated(r.symbol, sig.Tactic)

	r.entryLock.Lock()
	defer r.entryLock.Unlock()

	if ctx.Err() != nil {
		return
	}

	price := models.LastClose(candles)
	if p, err := r.market.CurrentPrice(ctx, r.symbol); err == nil && p > 0 {
		price = p
	} else if err != nil {
		r.log.Debug().Err(err).Msg("current price unavailable, sizing at last close")
	}

	balance, err := r.account.QuoteBalance(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("balance unavailable, skipping entry")
		return
	}

	order, err := r.sizer.Size(sig, price, balance)
	if err != nil {
		r.metrics.SizingRejected(r.symbol, rejectionReason(err))
		r.log.Warn().Err(err).Float64("balance", balance).Float64("price", price).Msg("signal discarded by sizer")
		return
	}
	if order.Capped {
		r.log.Info().Float64("notional", order.Notional).Float64("balance", balance).Msg("order capped to balance")
	}

	if err := r.manager.EnterPosition(ctx, order); err != nil {
		switch {
		case errors.Is(err, position.ErrTransient):
			r.log.Warn().Msg("entry deferred to next cycle")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		default:
			r.log.Error().Err(err).Msg("entry failed")
		}
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, risk.ErrBelowMinimum):
		return "below_minimum"
	case errors.Is(err, risk.ErrInvalidSetup):
		return "invalid_setup"
	case errors.Is(err, risk.ErrInvalidRisk):
		return "invalid_risk"
	case errors.Is(err, risk.ErrMissingFields):
		return "missing_fields"
	}
	return "other"
}

// waitFor sleeps for d and reports false if ctx ended first.
func waitFor(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
