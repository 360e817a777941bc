package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanCandles(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	in := []Candle{
		{Open: nan, High: nan, Low: nan, Close: nan},
		{Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1},
		{Open: 10.5, High: nan, Low: 10, Close: nan, Volume: nan},
		{Open: 11, High: 12, Low: 10.8, Close: 11.5, Volume: 3},
	}

	out := CleanCandles(in)
	require.Len(t, out, 3)
	assert.Equal(t, 11.0, out[1].High)
	assert.Equal(t, 10.5, out[1].Close)
	assert.Equal(t, 1.0, out[1].Volume)
	assert.True(t, math.IsNaN(in[2].Close), "input must not be modified")
}

func TestCleanCandles_FillsFromDroppedBars(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	in := []Candle{
		{Open: nan, High: 10, Low: 10, Close: 10},
		{Open: 10, High: 10, Low: 10, Close: nan},
		{Open: 11, High: 11, Low: 11, Close: 11},
	}

	out := CleanCandles(in)
	require.Len(t, out, 2)
	assert.Equal(t, 10.0, out[0].Open)
	assert.Equal(t, 10.0, out[0].Close, "close comes from the dropped first bar")
	assert.Equal(t, 0.0, out[0].Volume)
	assert.Equal(t, 11.0, out[1].Close)
}

func TestColumns(t *testing.T) {
	t.Parallel()

	in := []Candle{{High: 2, Low: 1, Close: 1.5}, {High: 3, Low: 2, Close: 2.5}}
	assert.Equal(t, []float64{1.5, 2.5}, Closes(in))
	assert.Equal(t, []float64{2, 3}, Highs(in))
	assert.Equal(t, []float64{1, 2}, Lows(in))
	assert.Equal(t, 2.5, LastClose(in))
	assert.Equal(t, 0.0, LastClose(nil))
}

func TestRegimeValid(t *testing.T) {
	t.Parallel()
	assert.True(t, RegimeBull.Valid())
	assert.True(t, RegimeRange.Valid())
	assert.False(t, Regime("SIDEWAYS").Valid())
	assert.False(t, Regime("").Valid())
}
