package price

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/operations/position"
)

// CachingMarketData decorates a MarketDataProvider with a Redis candle cache
// so that several readers of the same series within one bar share a single
// exchange request. Spot prices are never cached.
type CachingMarketData struct {
	inner     position.MarketDataProvider
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	log       zerolog.Logger
}

// NewCachingMarketData wraps inner. A nil rdb disables caching. If ttl is 0
// it defaults to 30 seconds; an empty namespace uses "candles".
func NewCachingMarketData(rdb *redis.Client, ttl time.Duration, inner position.MarketDataProvider, namespace string, log zerolog.Logger) *CachingMarketData {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if namespace == "" {
		namespace = "candles"
	}
	return &CachingMarketData{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
		log:       log.With().Str("component", "candle_cache").Logger(),
	}
}

func (c *CachingMarketData) Candles(ctx context.Context, symbol, interval string, count int) ([]models.Candle, error) {
	if c.rdb == nil {
		return c.inner.Candles(ctx, symbol, interval, count)
	}

	key := c.cacheKey(symbol, interval, count)
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []models.Candle
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		_ = c.rdb.Del(ctx, key).Err()
	} else if err != nil && err != redis.Nil {
		c.log.Debug().Err(err).Str("key", key).Msg("cache read failed")
	}

	out, err := c.inner.Candles(ctx, symbol, interval, count)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(out); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			c.log.Debug().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return out, nil
}

func (c *CachingMarketData) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return c.inner.CurrentPrice(ctx, symbol)
}

func (c *CachingMarketData) cacheKey(symbol, interval string, count int) string {
	return fmt.Sprintf("%s:%s:%s:%d", c.namespace, safe(symbol), safe(interval), count)
}

func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
