package indicators

import "math"

type BBandsResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
	// Bandwidth is (upper - lower) / middle as a percentage.
	Bandwidth []float64
}

// Bollinger computes bands around an SMA using the population standard
// deviation. Returns nil when there are fewer values than period.
func Bollinger(prices []float64, period int, deviations float64) *BBandsResult {
	if period <= 0 || len(prices) < period {
		return nil
	}

	upper := nanSlice(len(prices))
	middle := nanSlice(len(prices))
	lower := nanSlice(len(prices))
	width := nanSlice(len(prices))

	for i := period - 1; i < len(prices); i++ {
		subset := prices[i-period+1 : i+1]

		sum := 0.0
		for _, price := range subset {
			sum += price
		}
		sma := sum / float64(period)

		squareSum := 0.0
		for _, price := range subset {
			diff := price - sma
			squareSum += diff * diff
		}
		stdDev := math.Sqrt(squareSum / float64(period))

		middle[i] = sma
		upper[i] = sma + deviations*stdDev
		lower[i] = sma - deviations*stdDev
		if sma != 0 {
			width[i] = (upper[i] - lower[i]) / sma * 100
		}
	}

	return &BBandsResult{
		Upper:     upper,
		Middle:    middle,
		Lower:     lower,
		Bandwidth: width,
	}
}
