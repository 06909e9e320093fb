package execution

import (
	"context"
	"errors"
	"testing"

	"trading-bands/internal/model"
	"trading-bands/pkg/kraken"

	"github.com/shopspring/decimal"
)

type fakePlacer struct {
	reqs []kraken.OrderRequest
	res  kraken.AddOrderResult
	err  error

	orders    map[string][]kraken.OrderInfo
	lookupErr error
}

func (f *fakePlacer) AddOrder(ctx context.Context, req kraken.OrderRequest) (kraken.AddOrderResult, error) {
	f.reqs = append(f.reqs, req)
	return f.res, f.err
}

func (f *fakePlacer) OrdersByClientID(ctx context.Context, clientID string) ([]kraken.OrderInfo, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.orders[clientID], nil
}

func placeErr(t *testing.T, err error) *model.OrderPlacementError {
	t.Helper()
	var ope *model.OrderPlacementError
	if !errors.As(err, &ope) {
		t.Fatalf("expected OrderPlacementError, got %v", err)
	}
	return ope
}

func TestExecutor_PlacesOrder(t *testing.T) {
	fp := &fakePlacer{}
	fp.res.TxID = []string{"OTX-1"}
	e := NewExecutor(fp)

	res, err := e.PlaceMarketOrder(context.Background(), "XBT/USD", model.SideBuy, 0.0123456789)
	if err != nil {
		t.Fatal(err)
	}
	if res.OrderID != "OTX-1" || res.ClientID == "" {
		t.Errorf("result = %+v", res)
	}
	if res.FilledAmount != 0.01234567 {
		t.Errorf("filled = %v, want truncated volume", res.FilledAmount)
	}
	req := fp.reqs[0]
	if req.Pair != "XBTUSD" || req.Side != "buy" || req.Volume.String() != "0.01234567" {
		t.Errorf("request = %+v", req)
	}
	if req.ClientOrderID != res.ClientID {
		t.Error("cl_ord_id not propagated to result")
	}
}

func TestExecutor_ClassifiesFailures(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		rejected bool
	}{
		{"order rejected", &kraken.APIError{Errors: []string{"EOrder:Unknown position"}}, true},
		{"bad key", &kraken.APIError{Errors: []string{"EAPI:Invalid key"}}, true},
		{"invalid arguments", &kraken.APIError{Errors: []string{"EGeneral:Invalid arguments:volume"}}, true},
		{"no credentials", kraken.ErrNoCredentials, true},
		{"service unavailable", &kraken.APIError{Errors: []string{"EService:Unavailable"}}, false},
		{"internal error", &kraken.APIError{Errors: []string{"EGeneral:Internal error"}}, false},
		{"timeout", context.DeadlineExceeded, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fp := &fakePlacer{err: tc.err}
			_, err := NewExecutor(fp).PlaceMarketOrder(context.Background(), "XBT/USD", model.SideBuy, 1)
			ope := placeErr(t, err)
			if ope.Rejected != tc.rejected {
				t.Errorf("rejected = %v, want %v", ope.Rejected, tc.rejected)
			}
			if ope.ClientID == "" || ope.ClientID != fp.reqs[0].ClientOrderID {
				t.Errorf("cl_ord_id %q not reported", ope.ClientID)
			}
			if len(fp.reqs) != 1 {
				t.Errorf("order submitted %d times", len(fp.reqs))
			}
		})
	}
}

func TestExecutor_InsufficientFunds(t *testing.T) {
	fp := &fakePlacer{err: &kraken.APIError{Path: "/0/private/AddOrder", Errors: []string{"EOrder:Insufficient funds"}}}
	_, err := NewExecutor(fp).PlaceMarketOrder(context.Background(), "XBT/USD", model.SideSell, 1)

	ope := placeErr(t, err)
	if !ope.Rejected {
		t.Error("insufficient funds is a definite rejection")
	}
	var ibe *model.InsufficientBalanceError
	if !errors.As(err, &ibe) || ibe.Currency != "XBT" {
		t.Fatalf("expected InsufficientBalanceError for XBT, got %v", err)
	}
}

func TestExecutor_DustVolumeNeverSubmitted(t *testing.T) {
	fp := &fakePlacer{}
	_, err := NewExecutor(fp).PlaceMarketOrder(context.Background(), "XBT/USD", model.SideBuy, 1e-10)
	if ope := placeErr(t, err); !ope.Rejected {
		t.Error("dust order should be rejected locally")
	}
	if len(fp.reqs) != 0 {
		t.Error("dust order reached the exchange")
	}
}

func TestExecutor_MissingTxID(t *testing.T) {
	e := NewExecutor(&fakePlacer{})
	_, err := e.PlaceMarketOrder(context.Background(), "XBT/USD", model.SideBuy, 1)
	if ope := placeErr(t, err); ope.Rejected {
		t.Error("an acknowledged order without txid has an unknown outcome")
	}
}

func TestExecutor_LookupOrder(t *testing.T) {
	fp := &fakePlacer{orders: map[string][]kraken.OrderInfo{
		"filled": {{TxID: "OTX-9", Status: kraken.StatusClosed, Vol: decimal.NewFromInt(2), VolExec: decimal.NewFromInt(2), Price: decimal.NewFromInt(75)}},
		"open":   {{TxID: "OTX-8", Status: kraken.StatusOpen, Vol: decimal.NewFromInt(3)}},
		"voided": {{TxID: "OTX-7", Status: kraken.StatusCanceled, Vol: decimal.NewFromInt(1)}},
	}}
	e := NewExecutor(fp)
	ctx := context.Background()

	res, found, err := e.LookupOrder(ctx, "XBT/USD", "filled")
	if err != nil || !found {
		t.Fatalf("filled: found=%v err=%v", found, err)
	}
	if res.OrderID != "OTX-9" || res.FilledAmount != 2 || res.AvgPrice != 75 || res.ClientID != "filled" {
		t.Errorf("filled = %+v", res)
	}

	res, found, _ = e.LookupOrder(ctx, "XBT/USD", "open")
	if !found || res.FilledAmount != 3 {
		t.Errorf("open order should count with its full volume: %v %+v", found, res)
	}

	for _, id := range []string{"voided", "unknown"} {
		if _, found, err := e.LookupOrder(ctx, "XBT/USD", id); found || err != nil {
			t.Errorf("%s: found=%v err=%v", id, found, err)
		}
	}

	fp.lookupErr = errors.New("connection reset")
	if _, _, err := e.LookupOrder(ctx, "XBT/USD", "filled"); err == nil {
		t.Error("lookup error swallowed")
	}
}
