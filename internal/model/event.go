package model

import (
	"context"
	"encoding/json"
	"time"
)

// CycleEvent is the flattened, publishable summary of one evaluation cycle
// for a pair. It is what dashboards, Redis subscribers and the status API see.
type CycleEvent struct {
	Pair       string             `json:"pair"`
	TS         time.Time          `json:"ts"`
	Outcome    string             `json:"outcome"` // HOLD, ARMED, EXECUTED, SKIPPED_*, FAILED, BLOCKED
	Action     string             `json:"action"`  // HOLD, BUY, SELL
	Amount     float64            `json:"amount,omitempty"`
	Price      float64            `json:"price"`
	OrderID    string             `json:"order_id,omitempty"`
	Warm       bool               `json:"warm"`
	BandSource string             `json:"band_source,omitempty"`
	Upper      float64            `json:"upper,omitempty"`
	Lower      float64            `json:"lower,omitempty"`
	Volatility float64            `json:"volatility"`
	RSI        float64            `json:"rsi"`
	Indicators map[string]float64 `json:"indicators,omitempty"` // named statistics, warm cycles only
	State      string             `json:"state"`                // NONE, ARMED_SELL, ARMED_BUY
	Trigger    float64            `json:"trigger,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Error      string             `json:"error,omitempty"`
	DurationMS float64            `json:"duration_ms"`
}

// JSON returns the JSON-encoded event.
func (e *CycleEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// IsTrade reports whether the cycle executed an order.
func (e *CycleEvent) IsTrade() bool {
	return e.OrderID != "" && e.Action != "HOLD"
}

// EventPublisher fans cycle events out to observers. Implementations must
// not block the caller for long; publishing is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev CycleEvent) error
}
