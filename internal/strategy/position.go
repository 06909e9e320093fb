package strategy

import (
	"errors"
	"fmt"
	"sync"
)

// ArmedSide is the trailing-stop arming state of a pair.
// A single enum makes "armed both ways" unrepresentable.
type ArmedSide int

const (
	SideNone ArmedSide = iota
	SideArmedSell
	SideArmedBuy
)

func (s ArmedSide) String() string {
	switch s {
	case SideNone:
		return "NONE"
	case SideArmedSell:
		return "ARMED_SELL"
	case SideArmedBuy:
		return "ARMED_BUY"
	default:
		return "unknown"
	}
}

// MarshalText encodes the side by name.
func (s ArmedSide) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Gauge maps the side onto a metric value: 0=none, 1=armed sell, -1=armed buy.
func (s ArmedSide) Gauge() float64 {
	switch s {
	case SideArmedSell:
		return 1
	case SideArmedBuy:
		return -1
	}
	return 0
}

// PositionState is the only state carried across cycles for a pair.
// Trigger is meaningful only while Side != SideNone and is zero otherwise.
type PositionState struct {
	Side    ArmedSide `json:"side"`
	Trigger float64   `json:"trigger,omitempty"`
}

// Armed reports whether a trailing trigger is pending.
func (p PositionState) Armed() bool { return p.Side != SideNone }

// TriggerPrice returns the pending trigger, if any.
func (p PositionState) TriggerPrice() (float64, bool) {
	if p.Side == SideNone {
		return 0, false
	}
	return p.Trigger, true
}

func (p PositionState) String() string {
	if p.Side == SideNone {
		return "NONE"
	}
	return fmt.Sprintf("%s@%.8g", p.Side, p.Trigger)
}

func armedSell(price, margin float64) PositionState {
	return PositionState{Side: SideArmedSell, Trigger: price * (1 - margin)}
}

func armedBuy(price, margin float64) PositionState {
	return PositionState{Side: SideArmedBuy, Trigger: price * (1 + margin)}
}

// Decision is the outcome of one evaluation. It describes a transition but
// does not apply it; PositionMachine.Commit does that once the caller has
// carried out the action.
type Decision struct {
	Prev   PositionState
	Next   PositionState
	Action Action
	Reason string
}

// Changed reports whether committing the decision would alter state.
func (d Decision) Changed() bool { return d.Prev != d.Next }

// Transition applies the trailing-stop table to a state.
//
//	NONE        cold / no bands        -> NONE                         HOLD
//	NONE        price >= upper         -> ARMED_SELL (price*(1-margin)) HOLD
//	NONE        price <= lower         -> ARMED_BUY  (price*(1+margin)) HOLD
//	ARMED_SELL  price <  trigger       -> NONE                         SELL
//	ARMED_BUY   price >  trigger       -> NONE                         BUY
//	armed       otherwise              -> unchanged                    HOLD
//
// A cold cycle (ok=false) never changes state, armed or not. The trigger is
// fixed when armed and does not follow price.
func Transition(state PositionState, price float64, bands Bands, ok bool, margin float64) Decision {
	d := Decision{Prev: state, Next: state, Action: ActionHold}
	if !ok {
		d.Reason = "indicators warming up"
		return d
	}

	switch state.Side {
	case SideNone:
		switch {
		case price >= bands.Upper:
			d.Next = armedSell(price, margin)
			d.Reason = fmt.Sprintf("price %.8g >= %s upper %.8g, trailing sell armed", price, bands.Source, bands.Upper)
		case price <= bands.Lower:
			d.Next = armedBuy(price, margin)
			d.Reason = fmt.Sprintf("price %.8g <= %s lower %.8g, trailing buy armed", price, bands.Source, bands.Lower)
		default:
			d.Reason = "price inside bands"
		}

	case SideArmedSell:
		if price < state.Trigger {
			d.Next = PositionState{}
			d.Action = ActionSell
			d.Reason = fmt.Sprintf("price %.8g fell below trailing sell trigger %.8g", price, state.Trigger)
		} else {
			d.Reason = "trailing sell armed, waiting for retrace"
		}

	case SideArmedBuy:
		if price > state.Trigger {
			d.Next = PositionState{}
			d.Action = ActionBuy
			d.Reason = fmt.Sprintf("price %.8g rose above trailing buy trigger %.8g", price, state.Trigger)
		} else {
			d.Reason = "trailing buy armed, waiting for rebound"
		}
	}
	return d
}

// ErrStaleDecision is returned by Commit when state moved since Evaluate.
var ErrStaleDecision = errors.New("decision was evaluated against a different state")

// PositionMachine owns the PositionState of one pair.
// Evaluate and Commit are called from a single cycle loop; State may be read
// concurrently (status API, metrics).
type PositionMachine struct {
	pair   string
	margin float64

	mu    sync.RWMutex
	state PositionState
}

// NewPositionMachine creates a machine for pair in state NONE.
// margin is the trailing fraction (0.03 = 3%).
func NewPositionMachine(pair string, margin float64) *PositionMachine {
	return &PositionMachine{pair: pair, margin: margin}
}

// Pair returns the pair this machine trades.
func (m *PositionMachine) Pair() string { return m.pair }

// State returns the current position state.
func (m *PositionMachine) State() PositionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Evaluate computes the decision for this cycle without mutating state.
func (m *PositionMachine) Evaluate(price float64, bands Bands, ok bool) Decision {
	return Transition(m.State(), price, bands, ok, m.margin)
}

// Commit applies a decision produced by Evaluate. It refuses decisions made
// against a state other than the current one.
func (m *PositionMachine) Commit(d Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != d.Prev {
		return ErrStaleDecision
	}
	m.state = d.Next
	return nil
}
