// Package portfolio sizes orders from account balances and tracks the
// balances and realized P&L the trader has observed.
package portfolio

import (
	"sync"
	"time"

	"trading-bands/internal/model"
)

// Holdings is the base/quote view of a balance map for one pair.
type Holdings struct {
	Pair  string  `json:"pair"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

// HoldingsFor extracts pair's base and quote balances. Missing currencies
// read as zero.
func HoldingsFor(balances map[string]float64, pair model.Pair) Holdings {
	return Holdings{
		Pair:  pair.String(),
		Base:  balances[pair.Base],
		Quote: balances[pair.Quote],
	}
}

// Book keeps the most recent balance snapshot for read-only consumers.
type Book struct {
	mu       sync.RWMutex
	balances map[string]float64
	updated  time.Time
}

// NewBook creates an empty Book.
func NewBook() *Book {
	return &Book{balances: make(map[string]float64)}
}

// Update replaces the stored balances.
func (b *Book) Update(balances map[string]float64, at time.Time) {
	cp := make(map[string]float64, len(balances))
	for k, v := range balances {
		cp[k] = v
	}
	b.mu.Lock()
	b.balances = cp
	b.updated = at
	b.mu.Unlock()
}

// Snapshot returns a copy of the balances and when they were fetched.
func (b *Book) Snapshot() (map[string]float64, time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cp := make(map[string]float64, len(b.balances))
	for k, v := range b.balances {
		cp[k] = v
	}
	return cp, b.updated
}
