package indicator

import (
	"strconv"
	"time"
)

// Snapshot is the indicator output for one evaluation cycle.
// It is produced fresh by Engine.Compute and never mutated afterwards.
type Snapshot struct {
	Pair  string    `json:"pair"`
	TS    time.Time `json:"ts"`    // timestamp of the newest bar
	Close float64   `json:"close"` // close of the newest bar
	Bars  int       `json:"bars"`  // bars supplied to Compute

	// Statistics below are zero unless Warm is true.
	SMA            float64 `json:"sma"`
	StdDev         float64 `json:"stddev"`
	ATR            float64 `json:"atr"`
	BollingerUpper float64 `json:"bollinger_upper"`
	BollingerLower float64 `json:"bollinger_lower"`
	KeltnerUpper   float64 `json:"keltner_upper"`
	KeltnerLower   float64 `json:"keltner_lower"`
	Volatility     float64 `json:"volatility"` // percent of close
	RSI            float64 `json:"rsi"`

	// Warm is false when the window was too short to fill every lookback.
	// A cold snapshot must never drive a trading decision.
	Warm bool `json:"warm"`
}

// Value is a single named statistic, as published to metrics and Redis.
type Value struct {
	Name  string  `json:"name"` // e.g. "SMA_20", "RSI_14"
	Value float64 `json:"value"`
}

// Values flattens a warm snapshot into named statistics, suffixing the
// lookback where one applies. Cold snapshots return nil.
func (s *Snapshot) Values(p Params) []Value {
	if !s.Warm {
		return nil
	}
	sma := strconv.Itoa(p.SMAPeriod)
	atr := strconv.Itoa(p.ATRPeriod)
	return []Value{
		{Name: "SMA_" + sma, Value: s.SMA},
		{Name: "STDDEV_" + sma, Value: s.StdDev},
		{Name: "ATR_" + atr, Value: s.ATR},
		{Name: "BB_UPPER_" + sma, Value: s.BollingerUpper},
		{Name: "BB_LOWER_" + sma, Value: s.BollingerLower},
		{Name: "KC_UPPER_" + atr, Value: s.KeltnerUpper},
		{Name: "KC_LOWER_" + atr, Value: s.KeltnerLower},
		{Name: "VOLATILITY", Value: s.Volatility},
		{Name: "RSI_" + strconv.Itoa(p.RSIPeriod), Value: s.RSI},
	}
}
