package model

import (
	"strings"
	"time"
)

// Side is the direction of a market order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Lower returns the lowercase exchange spelling ("buy"/"sell").
func (s Side) Lower() string {
	return strings.ToLower(string(s))
}

// OrderResult is the exchange acknowledgement for a placed market order.
type OrderResult struct {
	OrderID      string  `json:"order_id"`
	ClientID     string  `json:"client_id,omitempty"` // cl_ord_id sent with the order
	FilledAmount float64 `json:"filled_amount"`
	AvgPrice     float64 `json:"avg_price"` // 0 when the exchange does not report it
}

// PendingOrder is an order whose submission outcome is unknown. Its pair
// places no new orders until it is reconciled.
type PendingOrder struct {
	Pair     string    `json:"pair"`
	Action   string    `json:"action"`
	Amount   float64   `json:"amount"`
	Price    float64   `json:"price"` // reference price when submitted
	ClientID string    `json:"cl_ord_id,omitempty"`
	Error    string    `json:"error"`
	Since    time.Time `json:"since"`
}

// TradeRecord is one executed trade as persisted by a TradeRecorder.
type TradeRecord struct {
	ID      int64     `json:"id,omitempty"`
	OrderID string    `json:"order_id"`
	Pair    string    `json:"pair"`
	Action  string    `json:"action"` // BUY, SELL
	Amount  float64   `json:"amount"`
	Price   float64   `json:"price"`
	DryRun  bool      `json:"dry_run"`
	Reason  string    `json:"reason,omitempty"`
	TS      time.Time `json:"ts"`
}

// Notional returns Amount*Price in quote currency.
func (t *TradeRecord) Notional() float64 {
	return t.Amount * t.Price
}
