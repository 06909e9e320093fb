package strategy

import "trading-bands/internal/indicator"

// BandSource names the band family chosen for a cycle.
type BandSource string

const (
	BandsBollinger BandSource = "BOLLINGER"
	BandsKeltner   BandSource = "KELTNER"
)

// Bands are the upper/lower bounds the position machine trades against.
type Bands struct {
	Upper  float64    `json:"upper"`
	Lower  float64    `json:"lower"`
	Source BandSource `json:"source"`
}

// SelectBands returns Keltner bounds when the snapshot's volatility exceeds
// threshold and Bollinger bounds otherwise. threshold is compared directly
// against Snapshot.Volatility (percent of close).
//
// ok is false for a cold snapshot: no decision is possible that cycle.
func SelectBands(snap indicator.Snapshot, threshold float64) (Bands, bool) {
	if !snap.Warm {
		return Bands{}, false
	}
	if snap.Volatility > threshold {
		return Bands{Upper: snap.KeltnerUpper, Lower: snap.KeltnerLower, Source: BandsKeltner}, true
	}
	return Bands{Upper: snap.BollingerUpper, Lower: snap.BollingerLower, Source: BandsBollinger}, true
}
