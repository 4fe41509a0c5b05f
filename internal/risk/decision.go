// Package risk implements the layered exit policy for open positions and
// the leverage sizing for new entries.
package risk

import "time"

// Action is the decision emitted for a symbol in one cycle.
type Action string

const (
	ActionBuy          Action = "BUY"
	ActionSell         Action = "SELL"
	ActionHold         Action = "HOLD"
	ActionClose        Action = "CLOSE"
	ActionPartialClose Action = "PARTIAL_CLOSE"
)

// Decision is the per-symbol, per-cycle output of the engine.
type Decision struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	Leverage   int       `json:"leverage,omitempty"`
	Margin     float64   `json:"margin,omitempty"`
	Quantity   float64   `json:"quantity,omitempty"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// IsActionable reports whether the decision requires an order.
func (d Decision) IsActionable() bool {
	switch d.Action {
	case ActionBuy, ActionSell, ActionClose, ActionPartialClose:
		return true
	default:
		return false
	}
}
