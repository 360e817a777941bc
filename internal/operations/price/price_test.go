package price

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SpotTradeBot/internal/models"
)

type mockMarket struct {
	candlesFn func(ctx context.Context, symbol, interval string, count int) ([]models.Candle, error)
	calls     int
}

func (m *mockMarket) Candles(ctx context.Context, symbol, interval string, count int) ([]models.Candle, error) {
	m.calls++
	if m.candlesFn != nil {
		return m.candlesFn(ctx, symbol, interval, count)
	}
	return nil, nil
}

func (m *mockMarket) CurrentPrice(context.Context, string) (float64, error) {
	return 42, nil
}

func sampleCandles() []models.Candle {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []models.Candle{
		{Symbol: "BTCUSDT", TimeFrame: "1h", OpenTime: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Symbol: "BTCUSDT", TimeFrame: "1h", OpenTime: ts.Add(time.Hour), Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 12},
	}
}

func TestNewCachingMarketData_Defaults(t *testing.T) {
	t.Parallel()

	c := NewCachingMarketData(nil, 0, &mockMarket{}, "", zerolog.Nop())
	assert.Equal(t, 30*time.Second, c.ttl)
	assert.Equal(t, "candles", c.namespace)
	assert.Equal(t, "candles:BTC_USDT:1h:200", c.cacheKey("BTC:USDT", "1h", 200))
}

func TestCachingMarketData_CacheHit(t *testing.T) {
	t.Parallel()

	db, mock := redismock.NewClientMock()
	inner := &mockMarket{}
	c := NewCachingMarketData(db, time.Minute, inner, "candles", zerolog.Nop())

	cached, err := json.Marshal(sampleCandles())
	require.NoError(t, err)
	mock.ExpectGet("candles:BTCUSDT:1h:200").SetVal(string(cached))

	got, err := c.Candles(context.Background(), "BTCUSDT", "1h", 200)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[1].Close)
	assert.Zero(t, inner.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachingMarketData_CacheMiss(t *testing.T) {
	t.Parallel()

	db, mock := redismock.NewClientMock()
	want := sampleCandles()
	inner := &mockMarket{candlesFn: func(context.Context, string, string, int) ([]models.Candle, error) {
		return want, nil
	}}
	c := NewCachingMarketData(db, time.Minute, inner, "candles", zerolog.Nop())

	b, err := json.Marshal(want)
	require.NoError(t, err)
	mock.ExpectGet("candles:BTCUSDT:1h:200").RedisNil()
	mock.ExpectSet("candles:BTCUSDT:1h:200", b, time.Minute).SetVal("OK")

	got, err := c.Candles(context.Background(), "BTCUSDT", "1h", 200)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, inner.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachingMarketData_CorruptEntry(t *testing.T) {
	t.Parallel()

	db, mock := redismock.NewClientMock()
	want := sampleCandles()
	inner := &mockMarket{candlesFn: func(context.Context, string, string, int) ([]models.Candle, error) {
		return want, nil
	}}
	c := NewCachingMarketData(db, time.Minute, inner, "candles", zerolog.Nop())

	b, err := json.Marshal(want)
	require.NoError(t, err)
	mock.ExpectGet("candles:BTCUSDT:1h:200").SetVal("not json")
	mock.ExpectDel("candles:BTCUSDT:1h:200").SetVal(1)
	mock.ExpectSet("candles:BTCUSDT:1h:200", b, time.Minute).SetVal("OK")

	got, err := c.Candles(context.Background(), "BTCUSDT", "1h", 200)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachingMarketData_InnerError(t *testing.T) {
	t.Parallel()

	db, mock := redismock.NewClientMock()
	boom := errors.New("exchange down")
	inner := &mockMarket{candlesFn: func(context.Context, string, string, int) ([]models.Candle, error) {
		return nil, boom
	}}
	c := NewCachingMarketData(db, time.Minute, inner, "candles", zerolog.Nop())
	mock.ExpectGet("candles:BTCUSDT:1h:200").RedisNil()

	_, err := c.Candles(context.Background(), "BTCUSDT", "1h", 200)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachingMarketData_NoRedis(t *testing.T) {
	t.Parallel()

	inner := &mockMarket{candlesFn: func(context.Context, string, string, int) ([]models.Candle, error) {
		return sampleCandles(), nil
	}}
	c := NewCachingMarketData(nil, 0, inner, "", zerolog.Nop())

	got, err := c.Candles(context.Background(), "BTCUSDT", "1h", 200)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	p, err := c.CurrentPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 42.0, p)
}

type rangeCall struct {
	start, end time.Time
}

type fakeSource struct {
	mu    sync.Mutex
	calls []rangeCall
	step  time.Duration
}

func (s *fakeSource) KlinesBetween(_ context.Context, symbol, interval string, start, end time.Time) ([]models.Candle, error) {
	s.mu.Lock()
	s.calls = append(s.calls, rangeCall{start, end})
	s.mu.Unlock()
	var out []models.Candle
	for ts := start; !ts.After(end); ts = ts.Add(s.step) {
		out = append(out, models.Candle{Symbol: symbol, TimeFrame: interval, OpenTime: ts, Open: 1, High: 1, Low: 1, Close: 1})
	}
	return out, nil
}

func TestFetcher_FetchRangeChunks(t *testing.T) {
	t.Parallel()

	src := &fakeSource{step: time.Hour}
	f := NewFetcher(src, zerolog.Nop())
	f.pause = 0

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2500 * time.Hour)
	got, err := f.FetchRange(context.Background(), "BTCUSDT", "1h", start, end)
	require.NoError(t, err)

	assert.Len(t, src.calls, 3)
	assert.Len(t, got, 2500)
	assert.True(t, got[0].OpenTime.Equal(start))
	assert.True(t, got[len(got)-1].OpenTime.Equal(end.Add(-time.Hour)))
}

func TestIntervalDuration(t *testing.T) {
	t.Parallel()

	d, err := IntervalDuration("4h")
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, d)

	_, err = IntervalDuration("7m")
	assert.Error(t, err)
}

type memoryStore struct {
	latest time.Time
	saved  []models.Candle
}

func (s *memoryStore) UpsertBatch(_ context.Context, candles []models.Candle) error {
	s.saved = append(s.saved, candles...)
	return nil
}

func (s *memoryStore) LatestOpenTime(context.Context, string, string) (time.Time, error) {
	return s.latest, nil
}

func TestRecorder_Sync(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		latest time.Time
		want   int
	}{
		{name: "empty store uses lookback", want: 48},
		{name: "resumes from newest stored bar", latest: now.Add(-5 * time.Hour), want: 5},
		{name: "stale store capped by lookback", latest: now.Add(-30 * 24 * time.Hour), want: 48},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := &memoryStore{latest: tt.latest}
			f := NewFetcher(&fakeSource{step: time.Hour}, zerolog.Nop())
			f.pause = 0
			r := NewRecorder(f, store, []string{"BTCUSDT"}, "1h", 48*time.Hour, zerolog.Nop())
			r.now = func() time.Time { return now }

			n, err := r.Sync(context.Background(), "BTCUSDT")
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
			assert.Len(t, store.saved, tt.want)
		})
	}
}

func TestRecorder_TrackAddsSymbolToRecording(t *testing.T) {
	t.Parallel()

	store := &memoryStore{}
	f := NewFetcher(&fakeSource{step: time.Hour}, zerolog.Nop())
	f.pause = 0
	configured := []string{"BTCUSDT"}
	r := NewRecorder(f, store, configured, "1h", 2*time.Hour, zerolog.Nop())

	assert.False(t, r.Track("BTCUSDT"))
	assert.True(t, r.Track("ETHUSDT"))
	assert.False(t, r.Track("ETHUSDT"))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, r.Symbols())
	assert.Equal(t, []string{"BTCUSDT"}, configured)

	r.recordAll(context.Background())
	seen := map[string]bool{}
	for _, c := range store.saved {
		seen[c.Symbol] = true
	}
	assert.Equal(t, map[string]bool{"BTCUSDT": true, "ETHUSDT": true}, seen)
}
