package decision

import (
	"math"

	"pptrader/internal/model"
	"pptrader/internal/risk"
)

// StopAction is what the trailing controller wants done with an open
// position this cycle.
type StopAction int

const (
	StopNone StopAction = iota
	StopMove            // tighten the protective stop to NewStop
	StopEmergencyClose  // confirmed close breached the trailing line
)

// StopUpdate is the controller's verdict for one cycle.
type StopUpdate struct {
	Action  StopAction
	NewStop float64
	Reason  string
}

// TrailingController follows the indicator's trailing line with the
// broker-side stop. Stops only ever tighten; a line that retreats, or
// noise below the minimum move, leaves the stop where it is.
type TrailingController struct {
	Sizer   *risk.Sizer
	MinMove float64 // smallest stop improvement worth a broker call
}

// Check compares the position's stop against the confirmed trailing
// line and the confirmed close.
//
// The emergency close outranks the trail: a confirmed candle closing
// through the line means the trend the position rode is gone, and
// waiting for the broker stop (which sits a spread buffer further out)
// gives back ground for no reason.
func (tc *TrailingController) Check(pos *model.Position, sig model.SignalInfo, spread float64) StopUpdate {
	if pos == nil {
		return StopUpdate{Action: StopNone}
	}

	line := sig.TrailingUp
	if pos.Side == model.SideShort {
		line = sig.TrailingDown
	}
	if math.IsNaN(line) {
		return StopUpdate{Action: StopNone, Reason: "no confirmed trailing line"}
	}

	// Emergency exit on a confirmed breach of the line.
	if breached(pos.Side, sig.ConfirmedClose, line) {
		return StopUpdate{
			Action: StopEmergencyClose,
			Reason: "confirmed close through trailing line",
		}
	}

	// Favorable-only trail, spread-adjusted like the entry stop.
	candidate := tc.Sizer.StopLoss(line, pos.Side, spread)
	if improves(pos.Side, candidate, pos.StopLoss, tc.MinMove) {
		return StopUpdate{Action: StopMove, NewStop: candidate, Reason: "trailing line advanced"}
	}
	return StopUpdate{Action: StopNone}
}

// breached reports whether the confirmed close crossed the trailing
// line against the position.
func breached(side model.Side, confirmedClose, line float64) bool {
	if math.IsNaN(confirmedClose) {
		return false
	}
	if side == model.SideLong {
		return confirmedClose < line
	}
	return confirmedClose > line
}

// improves reports whether candidate tightens the stop by at least
// minMove in the position's favorable direction.
func improves(side model.Side, candidate, current float64, minMove float64) bool {
	if side == model.SideLong {
		return candidate-current >= minMove
	}
	return current-candidate >= minMove
}
