package strategy

import (
	"testing"

	"trading-bands/internal/indicator"
	"trading-bands/internal/model"
)

func warmSnap(volatility float64) indicator.Snapshot {
	return indicator.Snapshot{
		Warm:           true,
		BollingerUpper: 105, BollingerLower: 95,
		KeltnerUpper: 108, KeltnerLower: 92,
		Volatility: volatility,
	}
}

func TestSelectBands_BelowThresholdUsesBollinger(t *testing.T) {
	b, ok := SelectBands(warmSnap(1.0), 1.5)
	if !ok {
		t.Fatal("expected ok for warm snapshot")
	}
	if b.Source != BandsBollinger || b.Upper != 105 || b.Lower != 95 {
		t.Errorf("unexpected bands %+v", b)
	}
}

func TestSelectBands_AboveThresholdUsesKeltner(t *testing.T) {
	b, ok := SelectBands(warmSnap(2.0), 1.5)
	if !ok {
		t.Fatal("expected ok")
	}
	if b.Source != BandsKeltner || b.Upper != 108 || b.Lower != 92 {
		t.Errorf("unexpected bands %+v", b)
	}
}

func TestSelectBands_EqualThresholdUsesBollinger(t *testing.T) {
	b, _ := SelectBands(warmSnap(1.5), 1.5)
	if b.Source != BandsBollinger {
		t.Errorf("volatility == threshold should keep bollinger, got %s", b.Source)
	}
}

func TestSelectBands_ColdSnapshot(t *testing.T) {
	snap := warmSnap(5)
	snap.Warm = false
	if _, ok := SelectBands(snap, 1.5); ok {
		t.Fatal("cold snapshot must not produce bands")
	}
}

func TestSelectBands_ShortWindowNeverCrosses(t *testing.T) {
	// A short window computed by the real engine must flow through as HOLD.
	e := indicator.NewEngine(indicator.DefaultParams())
	bars := make([]model.Candle, 10)
	for i := range bars {
		bars[i] = model.Candle{High: 1000, Low: 1, Close: 500}
	}
	snap := e.Compute(bars)
	bands, ok := SelectBands(snap, 1.5)

	m := NewPositionMachine("XBT/USD", 0.03)
	d := m.Evaluate(1e9, bands, ok)
	if d.Action != ActionHold || d.Changed() {
		t.Fatalf("short window produced %+v", d)
	}
}

func TestAction_Side(t *testing.T) {
	if s, ok := ActionBuy.Side(); !ok || s != model.SideBuy {
		t.Errorf("BUY side = %v,%v", s, ok)
	}
	if s, ok := ActionSell.Side(); !ok || s != model.SideSell {
		t.Errorf("SELL side = %v,%v", s, ok)
	}
	if _, ok := ActionHold.Side(); ok {
		t.Error("HOLD must not map to a side")
	}
}
