package trader

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"trading-bands/internal/model"
	"trading-bands/internal/notification"
)

type fakeReader struct {
	trades []model.TradeRecord
	since  time.Time
	err    error
}

func (f *fakeReader) TradesSince(ctx context.Context, since time.Time) ([]model.TradeRecord, error) {
	f.since = since
	return f.trades, f.err
}

func (f *fakeReader) RecentTrades(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	return f.trades, f.err
}

func TestReporter_Build(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	reader := &fakeReader{trades: []model.TradeRecord{
		{OrderID: "O1", Pair: "XBT/USD", Action: "BUY", Amount: 1, Price: 100, TS: now.Add(-5 * time.Hour)},
		{OrderID: "O2", Pair: "XBT/USD", Action: "SELL", Amount: 1, Price: 110, TS: now.Add(-time.Hour), DryRun: true},
	}}
	r := NewReporter(reader, nil, 24*time.Hour, time.Second)
	r.now = func() time.Time { return now }

	body, sum, err := r.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reader.since.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("window start = %v", reader.since)
	}
	if sum.TotalTrades != 2 || sum.Buys != 1 || sum.Sells != 1 {
		t.Errorf("summary = %+v", sum)
	}
	assertClose(t, "realized", sum.RealizedPnL, 10, 1e-9)
	for _, want := range []string{"Total trades: 2", "Realized P&L:  10.00", "XBT/USD", "O2 (paper)"} {
		if !strings.Contains(body, want) {
			t.Errorf("report missing %q:\n%s", want, body)
		}
	}
}

func TestReporter_EmptyWindow(t *testing.T) {
	r := NewReporter(&fakeReader{}, nil, 24*time.Hour, time.Second)
	body, sum, err := r.Build(context.Background())
	if err != nil || sum.TotalTrades != 0 {
		t.Fatalf("err=%v sum=%+v", err, sum)
	}
	if !strings.Contains(body, "No trades executed") {
		t.Errorf("unexpected body %q", body)
	}
}

func TestReporter_SendNotifies(t *testing.T) {
	notes := &captureNotifier{}
	r := NewReporter(&fakeReader{}, notification.NewDispatcher(notes, time.Second), time.Hour, time.Second)
	if err := r.Send(context.Background()); err != nil {
		t.Fatal(err)
	}
	if lv := notes.levels(); len(lv) != 1 || lv[0] != notification.AlertInfo {
		t.Fatalf("alerts = %v", lv)
	}

	notes = &captureNotifier{}
	r = NewReporter(&fakeReader{err: errors.New("db closed")}, notification.NewDispatcher(notes, time.Second), time.Hour, time.Second)
	if err := r.Send(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if lv := notes.levels(); len(lv) != 1 || lv[0] != notification.AlertWarning {
		t.Fatalf("alerts = %v", lv)
	}
}

func assertClose(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if d := got - want; d > tol || d < -tol {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}
