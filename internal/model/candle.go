package model

import "time"

// Candle is one OHLC bar for a trading pair as delivered by the exchange.
// Prices are quote-currency floats; crypto pairs trade at sub-cent precision
// so integer minor units are not used here.
type Candle struct {
	Pair   string    `json:"pair"`
	TS     time.Time `json:"ts"` // bucket start time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Range returns High-Low for the bar.
func (c *Candle) Range() float64 {
	return c.High - c.Low
}

// Closes extracts the close prices of a series in order.
func Closes(series []Candle) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		out[i] = series[i].Close
	}
	return out
}

// Tail returns the most recent n bars of series (all of it when shorter).
func Tail(series []Candle, n int) []Candle {
	if n <= 0 {
		return nil
	}
	if len(series) <= n {
		return series
	}
	return series[len(series)-n:]
}
