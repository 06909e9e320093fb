package model

import (
	"context"
	"time"
)

// ── External Collaborator Ports ──
// These interfaces decouple the trading cycle from concrete exchange, alerting
// and storage implementations (Kraken, SQLite, Redis, paper trading).

// MarketDataSource fetches recent OHLC bars for a pair.
type MarketDataSource interface {
	// FetchOHLC returns at most limit bars in ascending time order.
	// Fails with *DataFetchError on transport or API error.
	FetchOHLC(ctx context.Context, pair string, interval time.Duration, limit int) ([]Candle, error)
}

// AccountService reports available balances, net of funds held by open
// orders, keyed by currency code (normalized, e.g. "XBT", "USD").
type AccountService interface {
	// FetchBalances fails with *DataFetchError.
	FetchBalances(ctx context.Context) (map[string]float64, error)
}

// OrderExecutor submits market orders.
type OrderExecutor interface {
	// PlaceMarketOrder fails with *OrderPlacementError.
	PlaceMarketOrder(ctx context.Context, pair string, side Side, amount float64) (OrderResult, error)
}

// OrderReconciler looks up an order by the client id it was submitted with.
// found is false when the exchange never accepted it, or cancelled it unfilled.
type OrderReconciler interface {
	LookupOrder(ctx context.Context, pair, clientID string) (res OrderResult, found bool, err error)
}

// TradeRecorder persists executed trades for audit and reporting.
type TradeRecorder interface {
	Record(ctx context.Context, rec TradeRecord) error
}

// TradeReader reads back recorded trades.
type TradeReader interface {
	// TradesSince returns trades with TS >= since, oldest first.
	TradesSince(ctx context.Context, since time.Time) ([]TradeRecord, error)

	// RecentTrades returns the last limit trades, newest first.
	RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error)
}
