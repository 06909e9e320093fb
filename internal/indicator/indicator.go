// Package indicator computes volatility band statistics over an OHLC window.
//
// The Engine is a pure function of its input window: it keeps no state between
// calls, so the same window always yields a bit-identical Snapshot. Windows
// shorter than the longest required lookback yield a cold (Warm=false)
// Snapshot with every statistic left at zero instead of NaN.
package indicator

import "fmt"

// Params holds the lookback windows and band multipliers.
type Params struct {
	SMAPeriod  int     // closes for SMA / Bollinger (default 20)
	ATRPeriod  int     // bars for ATR / Keltner (default 10)
	RSIPeriod  int     // close differences for RSI (default 14)
	BollingerK float64 // stddev multiplier (default 2)
	KeltnerK   float64 // ATR multiplier (default 2; 1.5 is a common alternative)
}

// DefaultParams returns the standard 20/10/14 windows with 2x multipliers.
func DefaultParams() Params {
	return Params{
		SMAPeriod:  20,
		ATRPeriod:  10,
		RSIPeriod:  14,
		BollingerK: 2,
		KeltnerK:   2,
	}
}

// Validate rejects windows that cannot produce a defined statistic.
func (p Params) Validate() error {
	if p.SMAPeriod < 2 {
		return fmt.Errorf("sma period must be >= 2 (sample stddev), got %d", p.SMAPeriod)
	}
	if p.ATRPeriod < 1 {
		return fmt.Errorf("atr period must be >= 1, got %d", p.ATRPeriod)
	}
	if p.RSIPeriod < 1 {
		return fmt.Errorf("rsi period must be >= 1, got %d", p.RSIPeriod)
	}
	if p.BollingerK <= 0 || p.KeltnerK <= 0 {
		return fmt.Errorf("band multipliers must be > 0 (bollinger=%g keltner=%g)", p.BollingerK, p.KeltnerK)
	}
	return nil
}

// MinBars returns the number of bars needed before a Snapshot is warm:
// max(SMAPeriod, ATRPeriod, RSIPeriod+1).
func (p Params) MinBars() int {
	n := p.SMAPeriod
	if p.ATRPeriod > n {
		n = p.ATRPeriod
	}
	if p.RSIPeriod+1 > n {
		n = p.RSIPeriod + 1
	}
	return n
}
