package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trading-bands/internal/model"
	"trading-bands/internal/portfolio"
	"trading-bands/internal/strategy"
)

type fakeStates struct{}

func (fakeStates) Pairs() []string { return []string{"XBT/USD", "ETH/USD"} }

func (fakeStates) States() map[string]strategy.PositionState {
	return map[string]strategy.PositionState{
		"XBT/USD": {Side: strategy.SideArmedSell, Trigger: 116.4},
		"ETH/USD": {},
	}
}

type fakeEvents []model.CycleEvent

func (f fakeEvents) Latest() []model.CycleEvent { return f }

type fakeTrades struct {
	trades []model.TradeRecord
	limit  int
	err    error
}

func (f *fakeTrades) TradesSince(ctx context.Context, since time.Time) ([]model.TradeRecord, error) {
	return f.trades, f.err
}

func (f *fakeTrades) RecentTrades(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	f.limit = limit
	return f.trades, f.err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, NewRouter(Deps{DryRun: true}), "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "ok" || body["dry_run"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestPositions(t *testing.T) {
	book := portfolio.NewBook()
	book.Update(map[string]float64{"XBT": 0.5, "USD": 100}, time.Now())
	r := NewRouter(Deps{
		States: fakeStates{},
		Events: fakeEvents{{Pair: "XBT/USD", Outcome: "ARMED", Price: 120}},
		Book:   book,
	})

	rec := get(t, r, "/api/v1/positions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Positions []struct {
			Pair  string `json:"pair"`
			State struct {
				Side    string  `json:"side"`
				Trigger float64 `json:"trigger"`
			} `json:"state"`
			LastCycle *model.CycleEvent `json:"last_cycle"`
		} `json:"positions"`
		Balances map[string]float64 `json:"balances"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Positions) != 2 || resp.Positions[0].Pair != "XBT/USD" {
		t.Fatalf("positions = %+v", resp.Positions)
	}
	xbt := resp.Positions[0]
	if xbt.State.Side != "ARMED_SELL" || xbt.State.Trigger != 116.4 || xbt.LastCycle == nil || xbt.LastCycle.Outcome != "ARMED" {
		t.Errorf("xbt = %+v", xbt)
	}
	if resp.Positions[1].State.Side != "NONE" || resp.Positions[1].LastCycle != nil {
		t.Errorf("eth = %+v", resp.Positions[1])
	}
	if resp.Balances["XBT"] != 0.5 {
		t.Errorf("balances = %v", resp.Balances)
	}
}

func TestPositions_NoTrader(t *testing.T) {
	if rec := get(t, NewRouter(Deps{}), "/api/v1/positions"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestTrades_Limit(t *testing.T) {
	ft := &fakeTrades{trades: []model.TradeRecord{{OrderID: "O1", Pair: "XBT/USD", Action: "BUY"}}}
	r := NewRouter(Deps{Trades: ft})

	rec := get(t, r, "/api/v1/trades")
	if rec.Code != http.StatusOK || ft.limit != defaultTradeLimit {
		t.Fatalf("status %d limit %d", rec.Code, ft.limit)
	}
	var body struct {
		Trades []model.TradeRecord `json:"trades"`
		Count  int                 `json:"count"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Count != 1 || body.Trades[0].OrderID != "O1" {
		t.Errorf("body = %+v", body)
	}

	get(t, r, "/api/v1/trades?limit=5000")
	if ft.limit != maxTradeLimit {
		t.Errorf("limit not capped: %d", ft.limit)
	}
	if rec := get(t, r, "/api/v1/trades?limit=abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status %d", rec.Code)
	}
}

func TestTrades_ReaderError(t *testing.T) {
	r := NewRouter(Deps{Trades: &fakeTrades{err: errors.New("database is locked")}})
	if rec := get(t, r, "/api/v1/trades"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestPnL(t *testing.T) {
	pnl := portfolio.NewPnLTracker()
	pnl.RecordTrade(model.TradeRecord{Pair: "XBT/USD", Action: "BUY", Amount: 1, Price: 100})
	pnl.RecordTrade(model.TradeRecord{Pair: "XBT/USD", Action: "SELL", Amount: 1, Price: 90})

	pnl.RecordTrade(model.TradeRecord{Pair: "ETH/USD", Action: "BUY", Amount: 2, Price: 50})

	rec := get(t, NewRouter(Deps{
		PnL:    pnl,
		Events: fakeEvents{{Pair: "ETH/USD", Price: 60}, {Pair: "XBT/USD", Price: 95}},
	}), "/api/v1/pnl")
	var body struct {
		portfolio.PnLSummary
		UnrealizedPnL float64            `json:"unrealized_pnl"`
		Marks         map[string]float64 `json:"marks"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if body.TotalTrades != 3 || body.RealizedPnL != -10 {
		t.Errorf("summary = %+v", body.PnLSummary)
	}
	if body.UnrealizedPnL != 20 || body.Marks["ETH/USD"] != 60 {
		t.Errorf("unrealized = %v marks = %v", body.UnrealizedPnL, body.Marks)
	}
}

type fakePending struct {
	orders   []model.PendingOrder
	resolved map[string]bool
}

func (f *fakePending) Pending() []model.PendingOrder { return f.orders }

func (f *fakePending) Resolve(ctx context.Context, pair string, filled bool) error {
	for _, o := range f.orders {
		if o.Pair == pair {
			f.resolved[pair] = filled
			return nil
		}
	}
	return model.ErrNoPendingOrder
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestPending_ListAndResolve(t *testing.T) {
	fp := &fakePending{
		orders:   []model.PendingOrder{{Pair: "XBT/USD", Action: "BUY", Amount: 6.25, ClientID: "cl-1"}},
		resolved: map[string]bool{},
	}
	r := NewRouter(Deps{Pending: fp})

	rec := get(t, r, "/api/v1/pending")
	var list struct {
		Pending []model.PendingOrder `json:"pending"`
		Count   int                  `json:"count"`
	}
	json.NewDecoder(rec.Body).Decode(&list)
	if list.Count != 1 || list.Pending[0].ClientID != "cl-1" {
		t.Fatalf("list = %+v", list)
	}

	rec = post(t, r, "/api/v1/pending/resolve", `{"pair":"XBT/USD","filled":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status %d: %s", rec.Code, rec.Body)
	}
	if filled, ok := fp.resolved["XBT/USD"]; !ok || filled {
		t.Errorf("resolved = %v", fp.resolved)
	}

	if rec := post(t, r, "/api/v1/pending/resolve", `{"pair":"ETH/USD","filled":true}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown pending status %d", rec.Code)
	}
	if rec := post(t, r, "/api/v1/pending/resolve", `{"pair":"XBT/USD"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing filled status %d", rec.Code)
	}
	if rec := post(t, NewRouter(Deps{}), "/api/v1/pending/resolve", `{}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no trader status %d", rec.Code)
	}
}

func TestMountedHandlers(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	r := NewRouter(Deps{Metrics: ok, Health: ok})
	for _, p := range []string{"/metrics", "/healthz"} {
		if rec := get(t, r, p); rec.Code != http.StatusTeapot {
			t.Errorf("%s not mounted: %d", p, rec.Code)
		}
	}
	if rec := get(t, r, "/ws"); rec.Code != http.StatusNotFound {
		t.Errorf("/ws should be absent without a stream, got %d", rec.Code)
	}
}
