package kraken

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
)

// VolumeDecimals is the precision volumes are truncated to before submission.
const VolumeDecimals = 8

// OrderRequest describes a market order.
type OrderRequest struct {
	Pair          string          // exchange symbol, e.g. "XBTUSD"
	Side          string          // "buy" or "sell"
	Volume        decimal.Decimal // base currency
	ClientOrderID string          // cl_ord_id, optional
	Validate      bool            // validate only, do not submit
}

// AddOrderResult is the exchange acknowledgement.
type AddOrderResult struct {
	Descr struct {
		Order string `json:"order"`
	} `json:"descr"`
	TxID []string `json:"txid"`
}

// AddOrder submits a market order. Volume is truncated to VolumeDecimals and
// must remain positive.
func (c *Client) AddOrder(ctx context.Context, req OrderRequest) (AddOrderResult, error) {
	var res AddOrderResult
	if req.Side != "buy" && req.Side != "sell" {
		return res, fmt.Errorf("kraken %s: invalid side %q", pathAddOrder, req.Side)
	}
	vol := req.Volume.Truncate(VolumeDecimals)
	if !vol.IsPositive() {
		return res, fmt.Errorf("kraken %s: volume %s rounds to zero", pathAddOrder, req.Volume)
	}

	params := url.Values{}
	params.Set("ordertype", "market")
	params.Set("type", req.Side)
	params.Set("volume", vol.String())
	params.Set("pair", req.Pair)
	if req.ClientOrderID != "" {
		params.Set("cl_ord_id", req.ClientOrderID)
	}
	if req.Validate {
		params.Set("validate", "true")
	}

	if err := c.privatePost(ctx, pathAddOrder, params, &res); err != nil {
		return res, err
	}
	return res, nil
}
