// Package strategy turns indicator snapshots into trade signals.
//
// SelectBands picks the active band family for a cycle, and PositionMachine
// tracks the per-pair trailing-stop arming state that converts band touches
// into at most one BUY or SELL per evaluation.
package strategy

import (
	"time"

	"trading-bands/internal/model"
)

// Action represents a trading action.
type Action string

const (
	ActionHold Action = "HOLD"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Side maps BUY/SELL to an order side. HOLD has no side.
func (a Action) Side() (model.Side, bool) {
	switch a {
	case ActionBuy:
		return model.SideBuy, true
	case ActionSell:
		return model.SideSell, true
	}
	return "", false
}

// TradeSignal is the single action produced by one evaluation cycle.
type TradeSignal struct {
	Action         Action    `json:"action"`
	Pair           string    `json:"pair"`
	Amount         float64   `json:"amount"`          // base-currency units; 0 for HOLD
	ReferencePrice float64   `json:"reference_price"` // price the decision was made at
	TS             time.Time `json:"ts"`
	Reason         string    `json:"reason"`
}
