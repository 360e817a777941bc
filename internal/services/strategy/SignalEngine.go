package strategy

import (
	"time"

	"github.com/rs/zerolog"

	"SpotTradeBot/internal/models"
)

// RegimeClassifier is satisfied by *regime.Classifier.
type RegimeClassifier interface {
	Classify(candles []models.Candle) models.Regime
}

// SignalEngine classifies the regime and runs exactly one tactic for it.
type SignalEngine struct {
	classifier RegimeClassifier
	tactics    map[models.Regime]Tactic
	params     Params
	log        zerolog.Logger
	now        func() time.Time
}

func NewSignalEngine(classifier RegimeClassifier, params Params, log zerolog.Logger) *SignalEngine {
	return &SignalEngine{
		classifier: classifier,
		tactics: map[models.Regime]Tactic{
			models.RegimeBull:  NewBullTactic(params),
			models.RegimeBear:  NewBearTactic(),
			models.RegimeRange: NewRangeTactic(params),
		},
		params: params,
		log:    log.With().Str("component", "signal").Logger(),
		now:    time.Now,
	}
}

// WithTactic replaces the tactic used for a regime.
func (e *SignalEngine) WithTactic(r models.Regime, t Tactic) *SignalEngine {
	e.tactics[r] = t
	return e
}

// GenerateSignal returns a validated entry candidate or nil.
func (e *SignalEngine) GenerateSignal(candles []models.Candle, symbol string) (signal *RawSignal) {
	log := e.log.With().Str("symbol", symbol).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("signal generation failed")
			signal = nil
		}
	}()

	clean := models.CleanCandles(candles)
	if len(clean) < e.params.MinBars {
		log.Warn().Int("bars", len(clean)).Int("min", e.params.MinBars).Msg("not enough candles for a signal")
		return nil
	}

	regime := e.classifier.Classify(clean)
	tactic, ok := e.tactics[regime]
	if !ok {
		return nil
	}

	sig := tactic.Evaluate(NewSnapshot(symbol, clean, regime, e.params))
	if sig == nil {
		log.Debug().Str("regime", string(regime)).Str("tactic", tactic.Name()).Msg("no setup")
		return nil
	}

	sig.Symbol = symbol
	sig.Regime = regime
	sig.Tactic = tactic.Name()
	sig.CreatedAt = e.now()
	if sig.Score < e.params.MinScore || !sig.Valid() {
		log.Debug().Int("score", sig.Score).Msg("candidate rejected")
		return nil
	}

	log.Info().
		Str("regime", string(regime)).
		Str("tactic", sig.Tactic).
		Int("score", sig.Score).
		Float64("entry", sig.EntryPrice).
		Float64("stop", sig.StopPrice).
		Float64("target", sig.TargetPrice).
		Msg("signal detected")
	return sig
}
