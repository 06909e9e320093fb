package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"trading-bands/internal/model"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID   string     `json:"order_id"`
	Pair      string     `json:"pair"`
	Side      model.Side `json:"side"`
	Amount    float64    `json:"amount"`
	FillPrice float64    `json:"fill_price"`
	Slippage  float64    `json:"slippage"` // quote currency per unit
	FilledAt  time.Time  `json:"filled_at"`
}

// PaperExecutor simulates market orders without touching the exchange.
// The fill price is the latest close from the market data source, moved
// against the order by slippageBps.
type PaperExecutor struct {
	market   model.MarketDataSource
	interval time.Duration
	account  *PaperAccount // optional; debited and credited on each fill

	mu       sync.RWMutex
	fills    []Fill
	orderSeq int64

	// Simulation parameters
	slippageBps float64 // basis points of slippage (e.g., 5 = 0.05%)
}

// NewPaperExecutor creates a paper trading executor. account may be nil when
// balances come from a live account.
func NewPaperExecutor(market model.MarketDataSource, interval time.Duration, account *PaperAccount, slippageBps float64) *PaperExecutor {
	return &PaperExecutor{
		market:      market,
		interval:    interval,
		account:     account,
		fills:       make([]Fill, 0, 64),
		slippageBps: slippageBps,
	}
}

// Fills returns a snapshot of all fills.
func (p *PaperExecutor) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// PlaceMarketOrder logs the intended order and returns a synthetic fill.
func (p *PaperExecutor) PlaceMarketOrder(ctx context.Context, pair string, side model.Side, amount float64) (model.OrderResult, error) {
	p.mu.Lock()
	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)
	p.mu.Unlock()

	// a simulated order that fails was never placed anywhere
	fail := func(err error) (model.OrderResult, error) {
		return model.OrderResult{}, &model.OrderPlacementError{
			Pair: pair, Side: side, Amount: amount, ClientID: orderID, Rejected: true, Err: err,
		}
	}

	bars, err := p.market.FetchOHLC(ctx, pair, p.interval, 1)
	if err != nil {
		return fail(fmt.Errorf("paper mark price: %w", err))
	}
	if len(bars) == 0 || bars[len(bars)-1].Close <= 0 {
		return fail(fmt.Errorf("paper mark price: no usable bar"))
	}
	fillPrice := bars[len(bars)-1].Close

	slippage := fillPrice * p.slippageBps / 10000
	if side == model.SideBuy {
		fillPrice += slippage // buy higher
	} else {
		fillPrice -= slippage // sell lower
	}

	if p.account != nil {
		filled, err := p.account.Apply(pair, side, amount, fillPrice)
		if err != nil {
			return fail(err)
		}
		amount = filled
	}

	fill := Fill{
		OrderID:   orderID,
		Pair:      pair,
		Side:      side,
		Amount:    amount,
		FillPrice: fillPrice,
		Slippage:  slippage,
		FilledAt:  time.Now().UTC(),
	}
	p.mu.Lock()
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	log.Printf("[paper] %s %s amount=%.8f price=%.8g (slip=%.8g) order=%s",
		side, pair, amount, fillPrice, slippage, orderID)

	return model.OrderResult{
		OrderID:      orderID,
		ClientID:     orderID,
		FilledAmount: amount,
		AvgPrice:     fillPrice,
	}, nil
}

// PaperAccount is an in-memory account for dry runs without credentials.
// It implements model.AccountService.
type PaperAccount struct {
	mu       sync.RWMutex
	balances map[string]float64
}

// NewPaperAccount seeds the account with the given balances.
func NewPaperAccount(initial map[string]float64) *PaperAccount {
	b := make(map[string]float64, len(initial))
	for k, v := range initial {
		b[k] = v
	}
	return &PaperAccount{balances: b}
}

// FetchBalances returns a copy of the paper balances.
func (a *PaperAccount) FetchBalances(ctx context.Context) (map[string]float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cp := make(map[string]float64, len(a.balances))
	for k, v := range a.balances {
		cp[k] = v
	}
	return cp, nil
}

// Apply moves balances for a fill and returns the amount filled. A buy the
// quote balance cannot pay for at price is reduced to what it can pay for;
// a sell larger than the base balance is refused.
func (a *PaperAccount) Apply(pair string, side model.Side, amount, price float64) (float64, error) {
	p, err := model.ParsePair(pair)
	if err != nil {
		return 0, err
	}
	if price <= 0 || amount <= 0 {
		return 0, fmt.Errorf("paper account: invalid fill %g @ %g", amount, price)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	cost := amount * price
	switch side {
	case model.SideBuy:
		quote := a.balances[p.Quote]
		if quote <= 0 {
			return 0, &model.InsufficientBalanceError{Currency: p.Quote, Balance: quote}
		}
		if cost > quote {
			amount = quote / price
			cost = quote
		}
		a.balances[p.Quote] -= cost
		a.balances[p.Base] += amount
	case model.SideSell:
		if amount > a.balances[p.Base] {
			return 0, &model.InsufficientBalanceError{Currency: p.Base, Balance: a.balances[p.Base]}
		}
		a.balances[p.Base] -= amount
		a.balances[p.Quote] += cost
	default:
		return 0, fmt.Errorf("paper account: unknown side %q", side)
	}
	return amount, nil
}
