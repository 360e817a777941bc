package price

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"SpotTradeBot/internal/models"
)

// CandleStore is satisfied by *repositories.CandleRepository.
type CandleStore interface {
	UpsertBatch(ctx context.Context, candles []models.Candle) error
	LatestOpenTime(ctx context.Context, symbol, timeFrame string) (time.Time, error)
}

// Recorder keeps the candle store up to date for a set of symbols.
type Recorder struct {
	fetcher  *Fetcher
	store    CandleStore
	interval string
	lookback time.Duration
	now      func() time.Time
	log      zerolog.Logger

	mu      sync.Mutex
	symbols []string
}

func NewRecorder(fetcher *Fetcher, store CandleStore, symbols []string, interval string, lookback time.Duration, log zerolog.Logger) *Recorder {
	return &Recorder{
		fetcher:  fetcher,
		store:    store,
		symbols:  slices.Clone(symbols),
		interval: interval,
		lookback: lookback,
		now:      time.Now,
		log:      log.With().Str("component", "recorder").Str("interval", interval).Logger(),
	}
}

// Track adds symbol to the recorded set and reports whether it was new.
func (r *Recorder) Track(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.symbols, symbol) {
		return false
	}
	r.symbols = append(r.symbols, symbol)
	return true
}

// Symbols returns the recorded set.
func (r *Recorder) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.symbols)
}

// Sync downloads the bars missing since the newest stored one, going back
// at most lookback, and returns how many were written.
func (r *Recorder) Sync(ctx context.Context, symbol string) (int, error) {
	end := r.now().UTC()
	start := end.Add(-r.lookback)

	latest, err := r.store.LatestOpenTime(ctx, symbol, r.interval)
	if err != nil {
		return 0, err
	}
	// re-fetch the newest stored bar since it may have been open when saved
	if !latest.IsZero() && latest.After(start) {
		start = latest
	}

	candles, err := r.fetcher.FetchRange(ctx, symbol, r.interval, start, end)
	if err != nil {
		return 0, err
	}
	if err := r.store.UpsertBatch(ctx, candles); err != nil {
		return 0, err
	}
	return len(candles), nil
}

// StartRecording syncs every symbol once per bar until ctx is done.
func (r *Recorder) StartRecording(ctx context.Context) {
	period, err := IntervalDuration(r.interval)
	if err != nil {
		r.log.Error().Err(err).Msg("recorder not started")
		return
	}

	r.log.Info().Strs("symbols", r.Symbols()).Msg("starting candle recording")

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("stopping candle recording")
			return
		case <-ticker.C:
			r.recordAll(ctx)
		}
	}
}

func (r *Recorder) recordAll(ctx context.Context) {
	for _, symbol := range r.Symbols() {
		n, err := r.Sync(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Warn().Err(err).Str("symbol", symbol).Msg("candle sync failed")
			continue
		}
		r.log.Debug().Str("symbol", symbol).Int("count", n).Msg("candles recorded")
	}
}
