package indicators

// RSI computes the relative strength index with Wilder smoothing. The first
// defined value is at index period. Returns nil for too-short input.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period+1 {
		return nil
	}

	rsi := nanSlice(len(prices))

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		gain, loss := change(prices[i-1], prices[i])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	rsi[period] = rsiValue(avgGain, avgLoss)

	p := float64(period)
	for i := period + 1; i < len(prices); i++ {
		gain, loss := change(prices[i-1], prices[i])
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		rsi[i] = rsiValue(avgGain, avgLoss)
	}
	return rsi
}

func change(prev, cur float64) (gain, loss float64) {
	d := cur - prev
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
