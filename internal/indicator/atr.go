package indicator

import "trading-bands/internal/model"

// AverageRange returns mean(high-low) over bars. It approximates the average
// true range without the previous-close gap terms.
func AverageRange(bars []model.Candle) float64 {
	if len(bars) == 0 {
		return 0
	}
	sum := 0.0
	for i := range bars {
		sum += bars[i].Range()
	}
	return sum / float64(len(bars))
}

// Volatility returns the range of a single bar as a percentage of its close.
// A zero close yields 0 rather than an infinity.
func Volatility(bar model.Candle) float64 {
	if bar.Close == 0 {
		return 0
	}
	return bar.Range() / bar.Close * 100
}
