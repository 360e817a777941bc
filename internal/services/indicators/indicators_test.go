package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMA(t *testing.T) {
	t.Parallel()

	prices := []float64{1, 2, 3, 4, 5, 6}
	ema := EMA(prices, 3)
	require.Len(t, ema, len(prices))

	assert.True(t, math.IsNaN(ema[0]))
	assert.True(t, math.IsNaN(ema[1]))
	assert.InDelta(t, 2.0, ema[2], 1e-9)
	// multiplier 0.5
	assert.InDelta(t, 3.0, ema[3], 1e-9)
	assert.InDelta(t, 4.0, ema[4], 1e-9)
	assert.InDelta(t, 5.0, ema[5], 1e-9)
	assert.InDelta(t, 1.0, Slope(ema), 1e-9)

	assert.Nil(t, EMA(prices, 7))
	assert.Nil(t, EMA(prices, 0))
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, prices)
}

func TestSlopeAndLast(t *testing.T) {
	t.Parallel()
	assert.True(t, math.IsNaN(Slope([]float64{1})))
	assert.True(t, math.IsNaN(Last(nil)))
	assert.Equal(t, 3.0, Last([]float64{1, 3}))
}

func TestBollinger(t *testing.T) {
	t.Parallel()

	t.Run("flat series has zero width", func(t *testing.T) {
		t.Parallel()
		bb := Bollinger([]float64{10, 10, 10, 10}, 3, 2)
		require.NotNil(t, bb)
		assert.True(t, math.IsNaN(bb.Middle[1]))
		assert.Equal(t, 10.0, bb.Middle[3])
		assert.Equal(t, 10.0, bb.Upper[3])
		assert.Equal(t, 10.0, bb.Lower[3])
		assert.Equal(t, 0.0, bb.Bandwidth[3])
	})

	t.Run("population deviation", func(t *testing.T) {
		t.Parallel()
		// window {2, 4, 6}: mean 4, population sd sqrt(8/3)
		bb := Bollinger([]float64{2, 4, 6}, 3, 2)
		require.NotNil(t, bb)
		sd := math.Sqrt(8.0 / 3.0)
		assert.InDelta(t, 4+2*sd, bb.Upper[2], 1e-9)
		assert.InDelta(t, 4-2*sd, bb.Lower[2], 1e-9)
		assert.InDelta(t, 4*sd/4*100, bb.Bandwidth[2], 1e-9)
	})

	t.Run("too short", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, Bollinger([]float64{1, 2}, 3, 2))
	})
}

func TestRSI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{name: "only gains", prices: []float64{1, 2, 3, 4, 5}, want: 100},
		{name: "only losses", prices: []float64{5, 4, 3, 2, 1}, want: 0},
		{name: "no movement", prices: []float64{3, 3, 3, 3, 3}, want: 50},
		// first average gain 1/3, loss 1/3 -> 50; then gain 1: (1/3*2+1)/3=5/9, loss 2/9
		{name: "wilder smoothing", prices: []float64{1, 2, 1, 1, 2}, want: 100 - 100/(1+2.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rsi := RSI(tt.prices, 3)
			require.Len(t, rsi, len(tt.prices))
			assert.True(t, math.IsNaN(rsi[2]))
			assert.InDelta(t, tt.want, rsi[len(rsi)-1], 1e-9)
		})
	}

	assert.Nil(t, RSI([]float64{1, 2, 3}, 3))
}

func TestPivots(t *testing.T) {
	t.Parallel()

	values := []float64{5, 4, 3, 4, 5, 6, 5, 4, 5, 6}
	assert.Equal(t, []int{2, 7}, PivotLows(values, 2, 2))
	assert.Equal(t, []int{5}, PivotHighs(values, 2, 2))
	// index 7 is a low but has only two bars to its right, so span 3 excludes it
	assert.Equal(t, []int{2}, PivotLows(values, 2, 3))
	assert.Empty(t, PivotLows([]float64{1, 1, 1, 1, 1}, 1, 1))
}
