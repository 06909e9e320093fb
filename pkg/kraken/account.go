package kraken

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// AssetBalance is one entry of the extended balance endpoint.
type AssetBalance struct {
	Balance   decimal.Decimal `json:"balance"`
	HoldTrade decimal.Decimal `json:"hold_trade"` // reserved by open orders
}

// Available returns the balance not held by open orders, never below zero.
func (b AssetBalance) Available() decimal.Decimal {
	avail := b.Balance.Sub(b.HoldTrade)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// Balance returns the account's available balances keyed by Kraken asset code
// as reported ("XXBT", "ZUSD", "ETH", "USDT"...). Funds reserved by open
// orders are excluded. Use NormalizeAsset to map the codes onto pair
// currency codes.
func (c *Client) Balance(ctx context.Context) (map[string]decimal.Decimal, error) {
	raw, err := c.BalanceEx(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(raw))
	for asset, b := range raw {
		out[asset] = b.Available()
	}
	return out, nil
}

// BalanceEx returns total and held amounts per asset.
func (c *Client) BalanceEx(ctx context.Context) (map[string]AssetBalance, error) {
	var raw map[string]AssetBalance
	if err := c.privatePost(ctx, pathBalanceEx, nil, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("kraken %s: empty result", pathBalanceEx)
	}
	return raw, nil
}

// NormalizeAsset strips Kraken's legacy X/Z prefix from four-letter asset
// codes: XXBT→XBT, ZUSD→USD, XETH→ETH. Other codes are returned unchanged.
// Staking suffixes such as ".S" or ".F" are kept so they never alias the
// spendable balance.
func NormalizeAsset(code string) string {
	if len(code) == 4 && (code[0] == 'X' || code[0] == 'Z') {
		return code[1:]
	}
	return code
}
