package execution

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"trading-bands/internal/model"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "sub", "trades.db"))
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordAndRead(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	recs := []model.TradeRecord{
		{OrderID: "A", Pair: "XBT/USD", Action: "BUY", Amount: 0.5, Price: 60000, TS: base},
		{OrderID: "B", Pair: "XBT/USD", Action: "SELL", Amount: 0.5, Price: 61000, TS: base.Add(time.Hour), DryRun: true, Reason: "trailing sell"},
		{OrderID: "C", Pair: "ETH/USD", Action: "BUY", Amount: 2, Price: 3000, TS: base.Add(2 * time.Hour)},
	}
	for _, r := range recs {
		if err := j.Record(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := j.RecentTrades(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].OrderID != "C" || recent[1].OrderID != "B" {
		t.Fatalf("recent = %+v", recent)
	}
	if !recent[1].DryRun || recent[1].Reason != "trailing sell" || !recent[1].TS.Equal(base.Add(time.Hour)) {
		t.Errorf("round trip lost fields: %+v", recent[1])
	}

	since, err := j.TradesSince(ctx, base.Add(30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(since) != 2 || since[0].OrderID != "B" || since[1].OrderID != "C" {
		t.Fatalf("since = %+v", since)
	}
}

func TestJournal_EmptyReads(t *testing.T) {
	j := openJournal(t)
	got, err := j.RecentTrades(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
	if err := j.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}
