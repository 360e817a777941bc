package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	r := New(reg)

	r.SignalGenerated("BTCUSDT", "bull_order_block")
	r.SignalGenerated("BTCUSDT", "bull_order_block")
	r.SizingRejected("BTCUSDT", "below_minimum")
	r.EntryExecuted("BTCUSDT")
	r.SetPositionOpen("BTCUSDT", true)
	r.ExitExecuted("BTCUSDT", "stop_loss", -120)
	r.ExitExecuted("BTCUSDT", "take_profit", 200)
	r.SetPositionOpen("BTCUSDT", false)
	r.ExecutionFailed("BTCUSDT", "sell", "transient")
	r.DataFetchFailed("ETHUSDT")
	r.SetLastPrice("BTCUSDT", 64000.5)
	r.ObserveCycle("BTCUSDT", 150*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.signals.WithLabelValues("BTCUSDT", "bull_order_block")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sizingReject.WithLabelValues("BTCUSDT", "below_minimum")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.entries.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.exits.WithLabelValues("BTCUSDT", "stop_loss")))
	assert.Equal(t, 80.0, testutil.ToFloat64(r.realized.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.positionOpen.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("BTCUSDT", "sell", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dataFailures.WithLabelValues("ETHUSDT")))
	assert.Equal(t, 64000.5, testutil.ToFloat64(r.lastPrice.WithLabelValues("BTCUSDT")))

	count, err := testutil.GatherAndCount(reg, "spotbot_cycle_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNew_SeparateRegistries(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
