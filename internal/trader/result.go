package trader

import (
	"time"

	"trading-bands/internal/indicator"
	"trading-bands/internal/model"
	"trading-bands/internal/strategy"
)

// Outcome classifies how a cycle ended.
type Outcome string

const (
	OutcomeHold           Outcome = "HOLD"            // nothing to do
	OutcomeArmed          Outcome = "ARMED"           // trailing trigger set, no order
	OutcomeExecuted       Outcome = "EXECUTED"        // order placed and state committed
	OutcomeSkippedData    Outcome = "SKIPPED_DATA"    // OHLC or balance fetch failed
	OutcomeSkippedBalance Outcome = "SKIPPED_BALANCE" // signal held for an empty balance
	OutcomeFailed         Outcome = "FAILED"          // order placement or commit failed
	OutcomeBlocked        Outcome = "BLOCKED"         // an earlier order awaits reconciliation
)

// CycleResult is everything one evaluation of one pair produced. It is
// returned instead of raising, so a single pair's failure never stops the loop.
type CycleResult struct {
	Pair       string
	Outcome    Outcome
	Signal     strategy.TradeSignal
	Snapshot   indicator.Snapshot
	Indicators []indicator.Value // named statistics, nil when cold
	Bands      strategy.Bands
	BandsOK    bool
	State      strategy.PositionState // state after the cycle
	Order      *model.OrderResult     // set when an order was acknowledged
	Err        error

	Started  time.Time
	Duration time.Duration
}

// Event flattens the result for publishers.
func (r *CycleResult) Event() model.CycleEvent {
	ev := model.CycleEvent{
		Pair:       r.Pair,
		TS:         r.Started.UTC(),
		Outcome:    string(r.Outcome),
		Action:     string(r.Signal.Action),
		Amount:     r.Signal.Amount,
		Price:      r.Signal.ReferencePrice,
		Warm:       r.Snapshot.Warm,
		Volatility: r.Snapshot.Volatility,
		RSI:        r.Snapshot.RSI,
		State:      r.State.Side.String(),
		Reason:     r.Signal.Reason,
		DurationMS: float64(r.Duration.Microseconds()) / 1000.0,
	}
	if t, ok := r.State.TriggerPrice(); ok {
		ev.Trigger = t
	}
	if len(r.Indicators) > 0 {
		ev.Indicators = make(map[string]float64, len(r.Indicators))
		for _, v := range r.Indicators {
			ev.Indicators[v.Name] = v.Value
		}
	}
	if ev.Action == "" {
		ev.Action = string(strategy.ActionHold)
	}
	if r.BandsOK {
		ev.BandSource = string(r.Bands.Source)
		ev.Upper = r.Bands.Upper
		ev.Lower = r.Bands.Lower
	}
	if r.Order != nil {
		ev.OrderID = r.Order.OrderID
		if r.Order.AvgPrice > 0 {
			ev.Price = r.Order.AvgPrice
		}
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	return ev
}
