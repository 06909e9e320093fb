package model

import (
	"errors"
	"fmt"
)

// ErrNoPendingOrder is returned when resolving a pair that has no order
// awaiting reconciliation.
var ErrNoPendingOrder = errors.New("no pending order")

// DataFetchError reports a failed market-data or balance retrieval.
// The cycle is skipped and retried after the normal poll interval.
type DataFetchError struct {
	Op   string // "ohlc", "balance"
	Pair string
	Err  error
}

func (e *DataFetchError) Error() string {
	if e.Pair != "" {
		return fmt.Sprintf("data fetch %s %s: %v", e.Op, e.Pair, e.Err)
	}
	return fmt.Sprintf("data fetch %s: %v", e.Op, e.Err)
}

func (e *DataFetchError) Unwrap() error { return e.Err }

// InsufficientBalanceError reports that an order cannot be sized because the
// relevant balance is zero or negative, or that the exchange refused an order
// for lack of funds (Err set).
type InsufficientBalanceError struct {
	Currency string
	Balance  float64
	Err      error
}

func (e *InsufficientBalanceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("insufficient %s balance: %v", e.Currency, e.Err)
	}
	return fmt.Sprintf("insufficient %s balance: %g", e.Currency, e.Balance)
}

func (e *InsufficientBalanceError) Unwrap() error { return e.Err }

// OrderPlacementError reports a failed order submission. Unless Rejected is
// set, funds may have moved and the order must be reconciled before the pair
// places another one.
type OrderPlacementError struct {
	Pair     string
	Side     Side
	Amount   float64
	ClientID string
	Rejected bool // refused before or by the exchange; nothing was placed
	Err      error
}

func (e *OrderPlacementError) Error() string {
	return fmt.Sprintf("place %s %s amount=%g (cl_ord_id=%s): %v",
		e.Side, e.Pair, e.Amount, e.ClientID, e.Err)
}

func (e *OrderPlacementError) Unwrap() error { return e.Err }
