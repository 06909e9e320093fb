// Package execution places market orders and journals the resulting trades.
//
// Executor submits live orders through the Kraken REST client. PaperExecutor
// simulates fills at the current market price for dry runs. Both implement
// model.OrderExecutor so the trader cannot tell them apart.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log"

	"trading-bands/internal/model"
	"trading-bands/pkg/kraken"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// rejectPrefixes are Kraken error classes returned only when the order was
// refused outright. Anything else (EService, EGeneral:Internal error,
// transport failures) leaves the outcome unknown.
var rejectPrefixes = []string{"EOrder:", "EAPI:", "EQuery:", "EGeneral:Invalid arguments", "EGeneral:Permission denied"}

const insufficientFunds = "EOrder:Insufficient funds"

// OrderPlacer is the subset of the Kraken client the executor needs.
type OrderPlacer interface {
	AddOrder(ctx context.Context, req kraken.OrderRequest) (kraken.AddOrderResult, error)
	OrdersByClientID(ctx context.Context, clientID string) ([]kraken.OrderInfo, error)
}

// Executor places live market orders.
type Executor struct {
	client OrderPlacer
	newID  func() string
}

// NewExecutor creates a live order executor.
func NewExecutor(client OrderPlacer) *Executor {
	return &Executor{client: client, newID: func() string { return uuid.NewString() }}
}

// PlaceMarketOrder submits one market order tagged with a new cl_ord_id. A
// failed submission is never retried here; the returned OrderPlacementError
// carries the cl_ord_id so the caller can look it up with LookupOrder.
func (e *Executor) PlaceMarketOrder(ctx context.Context, pair string, side model.Side, amount float64) (model.OrderResult, error) {
	clientID := e.newID()
	fail := func(err error, rejected bool) (model.OrderResult, error) {
		return model.OrderResult{}, &model.OrderPlacementError{
			Pair: pair, Side: side, Amount: amount, ClientID: clientID, Rejected: rejected, Err: err,
		}
	}

	p, err := model.ParsePair(pair)
	if err != nil {
		return fail(err, true)
	}
	volume := decimal.NewFromFloat(amount).Truncate(kraken.VolumeDecimals)
	if !volume.IsPositive() {
		return fail(fmt.Errorf("volume %g rounds to zero", amount), true)
	}

	res, err := e.client.AddOrder(ctx, kraken.OrderRequest{
		Pair:          p.Symbol(),
		Side:          side.Lower(),
		Volume:        volume,
		ClientOrderID: clientID,
	})
	if err != nil {
		var apiErr *kraken.APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.HasPrefix(insufficientFunds):
			cur := p.Quote
			if side == model.SideSell {
				cur = p.Base
			}
			return fail(&model.InsufficientBalanceError{Currency: cur, Err: err}, true)
		case errors.As(err, &apiErr):
			return fail(err, rejected(apiErr))
		case errors.Is(err, kraken.ErrNoCredentials):
			return fail(err, true)
		}
		return fail(err, false)
	}
	if len(res.TxID) == 0 {
		return fail(fmt.Errorf("no transaction id in response"), false)
	}

	log.Printf("[executor] %s %s %s cl_ord_id=%s txid=%s (%s)",
		side, volume, pair, clientID, res.TxID[0], res.Descr.Order)

	filled, _ := volume.Float64()
	return model.OrderResult{
		OrderID:      res.TxID[0],
		ClientID:     clientID,
		FilledAmount: filled,
	}, nil
}

func rejected(apiErr *kraken.APIError) bool {
	for _, prefix := range rejectPrefixes {
		if apiErr.HasPrefix(prefix) {
			return true
		}
	}
	return false
}

// LookupOrder finds the order submitted with clientID. An order that is still
// open counts as found with its full volume; a cancelled or expired order
// counts only for the volume it executed.
func (e *Executor) LookupOrder(ctx context.Context, pair, clientID string) (model.OrderResult, bool, error) {
	orders, err := e.client.OrdersByClientID(ctx, clientID)
	if err != nil {
		return model.OrderResult{}, false, fmt.Errorf("lookup %s cl_ord_id=%s: %w", pair, clientID, err)
	}
	for _, o := range orders {
		filled := o.VolExec
		if o.Live() {
			filled = o.Vol
		}
		if !filled.IsPositive() {
			continue
		}
		amount, _ := filled.Float64()
		price, _ := o.Price.Float64()
		log.Printf("[executor] reconciled %s cl_ord_id=%s txid=%s status=%s filled=%s",
			pair, clientID, o.TxID, o.Status, filled)
		return model.OrderResult{
			OrderID:      o.TxID,
			ClientID:     clientID,
			FilledAmount: amount,
			AvgPrice:     price,
		}, true, nil
	}
	return model.OrderResult{}, false, nil
}
