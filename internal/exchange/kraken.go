// Package exchange adapts the Kraken REST client to the market data and
// account ports used by the trader.
package exchange

import (
	"context"
	"fmt"
	"time"

	"trading-bands/internal/model"
	"trading-bands/pkg/kraken"

	"github.com/shopspring/decimal"
)

// Kraken implements model.MarketDataSource and model.AccountService.
type Kraken struct {
	client *kraken.Client
}

// NewKraken wraps an initialized client.
func NewKraken(client *kraken.Client) *Kraken {
	return &Kraken{client: client}
}

// FetchOHLC returns the most recent limit bars for pair ("XBT/USD"), oldest
// first. The last bar is the one still forming; its close is the current price.
func (k *Kraken) FetchOHLC(ctx context.Context, pair string, interval time.Duration, limit int) ([]model.Candle, error) {
	p, err := model.ParsePair(pair)
	if err != nil {
		return nil, &model.DataFetchError{Op: "ohlc", Pair: pair, Err: err}
	}
	minutes := int(interval / time.Minute)
	bars, _, err := k.client.OHLC(ctx, p.Symbol(), minutes, 0)
	if err != nil {
		return nil, &model.DataFetchError{Op: "ohlc", Pair: pair, Err: err}
	}
	if len(bars) == 0 {
		return nil, &model.DataFetchError{Op: "ohlc", Pair: pair, Err: fmt.Errorf("empty response")}
	}

	candles := make([]model.Candle, len(bars))
	for i, b := range bars {
		candles[i] = model.Candle{
			Pair:   pair,
			TS:     time.Unix(b.Time, 0).UTC(),
			Open:   b.Open.InexactFloat64(),
			High:   b.High.InexactFloat64(),
			Low:    b.Low.InexactFloat64(),
			Close:  b.Close.InexactFloat64(),
			Volume: b.Volume.InexactFloat64(),
		}
	}
	return model.Tail(candles, limit), nil
}

// FetchBalances returns balances keyed by normalized currency code.
// Legacy and plain codes for the same asset (XXBT, XBT) are summed.
func (k *Kraken) FetchBalances(ctx context.Context) (map[string]float64, error) {
	raw, err := k.client.Balance(ctx)
	if err != nil {
		return nil, &model.DataFetchError{Op: "balance", Err: err}
	}
	sums := make(map[string]decimal.Decimal, len(raw))
	for asset, amount := range raw {
		code := kraken.NormalizeAsset(asset)
		sums[code] = sums[code].Add(amount)
	}
	out := make(map[string]float64, len(sums))
	for code, d := range sums {
		out[code] = d.InexactFloat64()
	}
	return out, nil
}
