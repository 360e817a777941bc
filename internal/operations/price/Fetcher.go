package price

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"SpotTradeBot/internal/models"
)

// batchSize is the exchange's maximum bars per kline request.
const batchSize = 1000

// KlineSource serves historical bars opening within [start, end].
type KlineSource interface {
	KlinesBetween(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Candle, error)
}

type Fetcher struct {
	source KlineSource
	pause  time.Duration
	log    zerolog.Logger
}

func NewFetcher(source KlineSource, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		source: source,
		pause:  100 * time.Millisecond,
		log:    log.With().Str("component", "fetcher").Logger(),
	}
}

// FetchRange downloads every bar opening in [start, end) in chunks of
// batchSize bars, oldest first.
func (f *Fetcher) FetchRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Candle, error) {
	step, err := IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	chunk := step * batchSize

	var all []models.Candle
	for currentStart := start; currentStart.Before(end); {
		currentEnd := currentStart.Add(chunk - time.Millisecond)
		if currentEnd.After(end) {
			currentEnd = end
		}

		candles, err := f.source.KlinesBetween(ctx, symbol, interval, currentStart, currentEnd)
		if err != nil {
			return nil, fmt.Errorf("fetch %s %s from %s: %w", symbol, interval, currentStart.Format(time.RFC3339), err)
		}
		for _, c := range candles {
			if c.OpenTime.Before(end) {
				all = append(all, c)
			}
		}

		f.log.Debug().
			Str("symbol", symbol).
			Str("interval", interval).
			Int("count", len(candles)).
			Time("from", currentStart).
			Time("to", currentEnd).
			Msg("fetched candles")

		currentStart = currentStart.Add(chunk)
		if currentStart.Before(end) && f.pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.pause):
			}
		}
	}
	return all, nil
}

var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
}

// IntervalDuration converts an exchange kline interval to its bar length.
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervals[interval]
	if !ok {
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
	return d, nil
}
