package indicator

import (
	"math"

	"trading-bands/internal/model"
)

// Engine computes band statistics for a price window.
// It holds only immutable params and is safe for concurrent use.
type Engine struct {
	params Params
}

// NewEngine creates an indicator engine with the given params.
func NewEngine(params Params) *Engine {
	return &Engine{params: params}
}

// Params returns the engine's configuration.
func (e *Engine) Params() Params { return e.params }

// MinBars returns the number of bars needed for a warm Snapshot.
func (e *Engine) MinBars() int { return e.params.MinBars() }

// Compute evaluates all statistics on the most recent bars of window.
// window must be in ascending time order. When it holds fewer than MinBars
// bars, or any statistic is not finite, the Snapshot is returned cold.
func (e *Engine) Compute(window []model.Candle) Snapshot {
	snap := Snapshot{Bars: len(window)}
	if len(window) == 0 {
		return snap
	}
	last := window[len(window)-1]
	snap.Pair = last.Pair
	snap.TS = last.TS
	snap.Close = last.Close

	if len(window) < e.params.MinBars() {
		return snap
	}

	p := e.params
	closes := model.Closes(model.Tail(window, p.SMAPeriod))
	sma := Mean(closes)
	stddev := SampleStdDev(closes, sma)
	atr := AverageRange(model.Tail(window, p.ATRPeriod))
	rsi := RSI(model.Closes(model.Tail(window, p.RSIPeriod+1)))
	vol := Volatility(last)

	for _, v := range [...]float64{sma, stddev, atr, rsi, vol} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return snap
		}
	}

	snap.SMA = sma
	snap.StdDev = stddev
	snap.ATR = atr
	snap.BollingerUpper = sma + p.BollingerK*stddev
	snap.BollingerLower = sma - p.BollingerK*stddev
	snap.KeltnerUpper = sma + p.KeltnerK*atr
	snap.KeltnerLower = sma - p.KeltnerK*atr
	snap.Volatility = vol
	snap.RSI = rsi
	snap.Warm = true
	return snap
}
