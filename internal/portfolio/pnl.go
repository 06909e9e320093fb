package portfolio

import (
	"sync"

	"trading-bands/internal/model"
)

// PnLTracker tracks realized P&L from a sequence of executed trades using
// a per-pair weighted average cost basis.
type PnLTracker struct {
	mu     sync.RWMutex
	trades []model.TradeRecord

	realizedPnL float64 // quote currency
	costBasis   map[string]costEntry
}

type costEntry struct {
	Qty      float64
	AvgPrice float64
}

// NewPnLTracker creates a new P&L tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{
		trades:    make([]model.TradeRecord, 0, 64),
		costBasis: make(map[string]costEntry),
	}
}

// RecordTrade records a trade and returns the P&L it realized.
// Sells beyond the tracked quantity realize nothing for the excess, since
// holdings acquired before tracking started have no known cost.
func (p *PnLTracker) RecordTrade(trade model.TradeRecord) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.trades = append(p.trades, trade)
	entry := p.costBasis[trade.Pair]

	var realized float64
	if trade.Action == string(model.SideBuy) {
		totalCost := entry.AvgPrice*entry.Qty + trade.Price*trade.Amount
		entry.Qty += trade.Amount
		if entry.Qty > 0 {
			entry.AvgPrice = totalCost / entry.Qty
		}
	} else {
		sellQty := trade.Amount
		if sellQty > entry.Qty {
			sellQty = entry.Qty
		}
		realized = (trade.Price - entry.AvgPrice) * sellQty
		entry.Qty -= sellQty
		if entry.Qty <= 0 {
			entry = costEntry{}
		}
		p.realizedPnL += realized
	}

	p.costBasis[trade.Pair] = entry
	return realized
}

// RealizedPnL returns total realized P&L in quote currency.
func (p *PnLTracker) RealizedPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realizedPnL
}

// UnrealizedPnL values open tracked quantity at currentPrices (keyed by pair).
func (p *PnLTracker) UnrealizedPnL(currentPrices map[string]float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var unrealized float64
	for pair, entry := range p.costBasis {
		if entry.Qty <= 0 {
			continue
		}
		if price, ok := currentPrices[pair]; ok {
			unrealized += (price - entry.AvgPrice) * entry.Qty
		}
	}
	return unrealized
}

// Trades returns a copy of all recorded trades.
func (p *PnLTracker) Trades() []model.TradeRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]model.TradeRecord, len(p.trades))
	copy(cp, p.trades)
	return cp
}

// PnLSummary aggregates trade activity over a reporting window.
type PnLSummary struct {
	TotalTrades  int     `json:"total_trades"`
	Buys         int     `json:"buys"`
	Sells        int     `json:"sells"`
	BuyNotional  float64 `json:"buy_notional"`
	SellNotional float64 `json:"sell_notional"`
	RealizedPnL  float64 `json:"realized_pnl"`
}

// Summary returns the totals of every trade recorded so far.
func (p *PnLTracker) Summary() PnLSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := PnLSummary{TotalTrades: len(p.trades), RealizedPnL: p.realizedPnL}
	for i := range p.trades {
		t := &p.trades[i]
		if t.Action == string(model.SideBuy) {
			s.Buys++
			s.BuyNotional += t.Notional()
		} else {
			s.Sells++
			s.SellNotional += t.Notional()
		}
	}
	return s
}

// Summarize replays trades (oldest first) through a fresh tracker.
func Summarize(trades []model.TradeRecord) PnLSummary {
	t := NewPnLTracker()
	for _, tr := range trades {
		t.RecordTrade(tr)
	}
	return t.Summary()
}
