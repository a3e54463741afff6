package model

import "time"

// Side is the direction of an open position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Position represents the single open position for the instrument.
// It is created by the gating engine on an open, mutated only by the
// trailing controller (StopLoss), and destroyed on any close.
type Position struct {
	Side       Side      `json:"side"`
	Units      int64     `json:"units"` // always > 0; Side carries direction
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit,omitempty"` // 0 = not set
	OpenedAt   time.Time `json:"opened_at"`
	Regime     Regime    `json:"regime_at_entry"`
	TradeID    string    `json:"trade_id,omitempty"`
}

// UnrealizedPL computes the open profit/loss at the given price, in
// account currency per unit of quote.
func (p *Position) UnrealizedPL(price float64) float64 {
	if p.Side == SideLong {
		return (price - p.EntryPrice) * float64(p.Units)
	}
	return (p.EntryPrice - price) * float64(p.Units)
}
