package indicators

// PivotHighs returns the indices i where values[i] is the strict maximum of
// the window [i-left, i+right]. The newest right bars can never qualify.
func PivotHighs(values []float64, left, right int) []int {
	return pivots(values, left, right, func(a, b float64) bool { return a > b })
}

// PivotLows returns the indices i where values[i] is the strict minimum of
// the window [i-left, i+right].
func PivotLows(values []float64, left, right int) []int {
	return pivots(values, left, right, func(a, b float64) bool { return a < b })
}

func pivots(values []float64, left, right int, beats func(a, b float64) bool) []int {
	var out []int
	for i := left; i+right < len(values); i++ {
		ok := true
		for j := i - left; j <= i+right && ok; j++ {
			if j != i && !beats(values[i], values[j]) {
				ok = false
			}
		}
		if ok {
			out = append(out, i)
		}
	}
	return out
}
