package kraken

import (
	"context"
	"net/url"
	"sort"

	"github.com/shopspring/decimal"
)

// Order statuses reported by OpenOrders and ClosedOrders.
const (
	StatusPending  = "pending"
	StatusOpen     = "open"
	StatusClosed   = "closed"
	StatusCanceled = "canceled"
	StatusExpired  = "expired"
)

// OrderInfo is the part of an order record needed to reconcile a submission.
type OrderInfo struct {
	TxID          string          `json:"-"`
	ClientOrderID string          `json:"cl_ord_id"`
	Status        string          `json:"status"`
	Vol           decimal.Decimal `json:"vol"`
	VolExec       decimal.Decimal `json:"vol_exec"`
	Cost          decimal.Decimal `json:"cost"`
	Price         decimal.Decimal `json:"price"` // average fill price
	Descr         struct {
		Pair string `json:"pair"`
		Type string `json:"type"`
	} `json:"descr"`
}

// Live reports whether the order may still execute.
func (o OrderInfo) Live() bool {
	return o.Status == StatusPending || o.Status == StatusOpen
}

// OrdersByClientID returns every open or closed order carrying clientID,
// sorted by txid. An empty result means the exchange has no record of it.
func (c *Client) OrdersByClientID(ctx context.Context, clientID string) ([]OrderInfo, error) {
	var open struct {
		Open map[string]OrderInfo `json:"open"`
	}
	if err := c.privatePost(ctx, pathOpenOrders, url.Values{"cl_ord_id": {clientID}}, &open); err != nil {
		return nil, err
	}
	var closed struct {
		Closed map[string]OrderInfo `json:"closed"`
	}
	if err := c.privatePost(ctx, pathClosedOrders, url.Values{"cl_ord_id": {clientID}}, &closed); err != nil {
		return nil, err
	}

	out := make([]OrderInfo, 0, len(open.Open)+len(closed.Closed))
	for _, m := range []map[string]OrderInfo{open.Open, closed.Closed} {
		for txid, o := range m {
			// the filter is applied server side; double check anyway
			if o.ClientOrderID != "" && o.ClientOrderID != clientID {
				continue
			}
			o.TxID = txid
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TxID < out[j].TxID })
	return out, nil
}
