package handlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"SpotTradeBot/internal/operations/price"
)

// PriceHandler backfills the candle store and keeps it current while the bot
// runs, so that the API and backtests read candles without hitting the
// exchange.
type PriceHandler struct {
	recorder *price.Recorder
	symbols  []string
	log      zerolog.Logger
}

func NewPriceHandler(recorder *price.Recorder, symbols []string, log zerolog.Logger) *PriceHandler {
	return &PriceHandler{
		recorder: recorder,
		symbols:  symbols,
		log:      log.With().Str("component", "price_handler").Logger(),
	}
}

// Start runs the initial backfill and then records in the background until
// ctx is done. A symbol whose backfill fails is retried by the recorder on
// the next bar.
func (h *PriceHandler) Start(ctx context.Context) error {
	for _, symbol := range h.symbols {
		n, err := h.recorder.Sync(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("backfill %s: %w", symbol, ctx.Err())
			}
			h.log.Warn().Err(err).Str("symbol", symbol).Msg("historical backfill failed")
			continue
		}
		h.log.Info().Str("symbol", symbol).Int("count", n).Msg("historical candles stored")
	}

	go h.recorder.StartRecording(ctx)
	return nil
}

// Track adds a symbol started after boot to the recorder and backfills it in
// the background. Symbols already recorded are left alone.
func (h *PriceHandler) Track(ctx context.Context, symbol string) {
	if !h.recorder.Track(symbol) {
		return
	}
	go func() {
		n, err := h.recorder.Sync(ctx, symbol)
		if err != nil {
			h.log.Warn().Err(err).Str("symbol", symbol).Msg("historical backfill failed")
			return
		}
		h.log.Info().Str("symbol", symbol).Int("count", n).Msg("historical candles stored")
	}()
}
