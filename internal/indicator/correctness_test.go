package indicator

import (
	"math"
	"math/rand"
	"testing"

	"trading-bands/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// Mean / StdDev
// ────────────────────────────────────────────────────────────

func TestMean_StdDev_HandCalculated(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	m := Mean(xs)
	assertClose(t, "mean", m, 5, 1e-12)
	// sum of squares = 32, sample variance = 32/7
	assertClose(t, "sample stddev", SampleStdDev(xs, m), math.Sqrt(32.0/7.0), 1e-12)
}

func TestMean_StdDev_Degenerate(t *testing.T) {
	assertClose(t, "mean(empty)", Mean(nil), 0, 0)
	assertClose(t, "stddev(single)", SampleStdDev([]float64{42}, 42), 0, 0)
	assertClose(t, "stddev(flat)", SampleStdDev([]float64{3, 3, 3}, 3), 0, 0)
}

// ────────────────────────────────────────────────────────────
// ATR / Volatility
// ────────────────────────────────────────────────────────────

func TestAverageRange(t *testing.T) {
	bars := []model.Candle{
		{High: 11, Low: 9},
		{High: 12, Low: 8},
		{High: 10, Low: 10},
	}
	assertClose(t, "avg range", AverageRange(bars), 2, 1e-12)
	assertClose(t, "avg range(empty)", AverageRange(nil), 0, 0)
}

func TestVolatility(t *testing.T) {
	assertClose(t, "volatility", Volatility(model.Candle{High: 110, Low: 90, Close: 100}), 20, 1e-12)
	assertClose(t, "volatility(zero close)", Volatility(model.Candle{High: 1, Low: 0, Close: 0}), 0, 0)
}

// ────────────────────────────────────────────────────────────
// RSI Correctness
// ────────────────────────────────────────────────────────────

func TestRSI_AllGains(t *testing.T) {
	closes := []float64{1, 2, 3, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
	assertClose(t, "RSI all gains", RSI(closes), 100, 0)
}

func TestRSI_Flat(t *testing.T) {
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 250
	}
	assertClose(t, "RSI flat", RSI(closes), 50, 0)
}

func TestRSI_AllLosses(t *testing.T) {
	closes := []float64{20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6}
	assertClose(t, "RSI all losses", RSI(closes), 0, 1e-12)
}

func TestRSI_HandCalculated(t *testing.T) {
	// Diffs: +1, -1, +2 → avgGain = 3/3 = 1, avgLoss = 1/3
	// RS = 3 → RSI = 100 - 100/4 = 75
	assertClose(t, "RSI(3)", RSI([]float64{10, 11, 10, 12}), 75, 1e-9)
}

func TestRSI_SimpleMeanNotSmoothed(t *testing.T) {
	// A large early loss drops out of the window completely once it is more
	// than period differences old; Wilder smoothing would still remember it.
	e := NewEngine(Params{SMAPeriod: 2, ATRPeriod: 1, RSIPeriod: 3, BollingerK: 2, KeltnerK: 2})
	bars := []model.Candle{
		makeBar(0, 100, 1), makeBar(1, 50, 1), // -50
		makeBar(2, 51, 1), makeBar(3, 52, 1), makeBar(4, 53, 1), makeBar(5, 54, 1),
	}
	snap := e.Compute(bars)
	assertClose(t, "RSI after loss leaves window", snap.RSI, 100, 0)
}

func TestRSI_BoundedOnRandomWalks(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 500; trial++ {
		closes := make([]float64, 15)
		closes[0] = 100
		for i := 1; i < len(closes); i++ {
			closes[i] = closes[i-1] + rng.NormFloat64()*3
		}
		v := RSI(closes)
		if v < 0 || v > 100 || math.IsNaN(v) {
			t.Fatalf("trial %d: RSI out of range: %v (closes=%v)", trial, v, closes)
		}
	}
}
