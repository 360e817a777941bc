// Package indicators holds pure technical-indicator functions. Inputs are
// never modified and warm-up positions are NaN.
package indicators

import "math"

// EMA computes the exponential moving average, seeded with the SMA of the
// first period values. Returns nil when there are fewer values than period.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	ema := nanSlice(len(values))
	multiplier := 2.0 / float64(period+1)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema[period-1] = sum / float64(period)

	for i := period; i < len(values); i++ {
		ema[i] = (values[i]-ema[i-1])*multiplier + ema[i-1]
	}
	return ema
}

// Slope returns the last first difference of a series, NaN if unavailable.
func Slope(series []float64) float64 {
	if len(series) < 2 {
		return math.NaN()
	}
	return series[len(series)-1] - series[len(series)-2]
}

// Last returns the newest value of a series, NaN if empty.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
