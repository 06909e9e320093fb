package indicator

// RSI computes the Relative Strength Index over consecutive closes using a
// simple (non-smoothed) mean of gains and losses across len(closes)-1
// differences. Callers pass exactly period+1 closes.
//
// A window with gains and no losses is 100. A perfectly flat window has no
// defined ratio and is reported as a neutral 50.
func RSI(closes []float64) float64 {
	if len(closes) < 2 {
		return 50
	}

	var gains, losses float64
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	n := float64(len(closes) - 1)
	avgGain := gains / n
	avgLoss := losses / n

	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50
	case avgLoss == 0:
		return 100
	}

	rs := avgGain / avgLoss
	rsi := 100.0 - (100.0 / (1.0 + rs))
	if rsi < 0 {
		return 0
	}
	if rsi > 100 {
		return 100
	}
	return rsi
}
