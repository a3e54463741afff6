// Package decision turns a signal reading plus account state into a
// single authorized action per cycle.
//
// The engine is pure: it never talks to the broker or the stores. The
// caller gathers the inputs, the engine ranks the gates in a fixed
// order, and exactly one action comes out. The gate order matters and
// is deliberate:
//
//  1. dedup marker matching the signal candle
//  2. scheduled suppression windows
//  3. entries when flat, filtered by the regime policy
//  4. reversals out of an open position, with an optional follow-up
//     entry filtered by the same policy
//  5. hold
package decision

import (
	"fmt"
	"log"
	"math"
	"time"

	"pptrader/internal/model"
	"pptrader/internal/risk"
)

// Policy configures how the market regime filters entries.
type Policy struct {
	// DisableOppositeTrade refuses entries that go against the regime:
	// no fresh longs in a BEAR market, no fresh shorts in a BULL one.
	// It filters both direct entries and the follow-up leg of a
	// reversal. NEUTRAL never blocks.
	DisableOppositeTrade bool
}

// Input is everything the engine needs for one cycle's verdict.
type Input struct {
	Signal model.SignalInfo
	Pos    *model.Position // nil when flat
	Regime model.Regime

	// Marker is the candle time of the last executed action. MarkerSet
	// is false when no marker is stored.
	Marker    time.Time
	MarkerSet bool

	Suppressed bool    // active suppression window
	Spread     float64 // current bid/ask spread for stop adjustment
}

// Engine applies the gating rules and sizes any resulting order.
type Engine struct {
	policy Policy
	table  risk.Table
	sizer  *risk.Sizer
}

// New returns an Engine with the given policy, risk table and sizer.
func New(policy Policy, table risk.Table, sizer *risk.Sizer) *Engine {
	return &Engine{policy: policy, table: table, sizer: sizer}
}

// Evaluate returns the single action authorized for this cycle.
// The zero-value Decision is never returned; a refusal is an explicit
// HOLD with a Reason.
func (e *Engine) Evaluate(in Input) model.Decision {
	sig := in.Signal

	// Gate 1: the marker pins the candle the last action was taken on.
	// A signal from that same candle already fired, however many cycles
	// the candle is re-read.
	if in.MarkerSet && in.Marker.Equal(sig.CandleTime) {
		return hold(fmt.Sprintf("signal candle %s already acted on", sig.CandleTime.Format(time.RFC3339)))
	}

	// Gate 2: suppression windows block everything, including closes.
	// An emergency close still goes through the trailing controller,
	// which does not consult this engine.
	if in.Suppressed {
		return hold("trading suppressed")
	}

	// Gate 3: flat book, entry signals only.
	if in.Pos == nil {
		switch sig.Kind {
		case model.SignalBuy:
			if e.blockedByRegime(model.SideLong, in.Regime) {
				return hold(fmt.Sprintf("long entry blocked in %s regime", in.Regime))
			}
			return e.open(model.SideLong, in)
		case model.SignalSell:
			if e.blockedByRegime(model.SideShort, in.Regime) {
				return hold(fmt.Sprintf("short entry blocked in %s regime", in.Regime))
			}
			return e.open(model.SideShort, in)
		default:
			return hold("no position, no entry signal")
		}
	}

	// Gate 4: opposite signal against an open position closes it. The
	// follow-up entry on the far side is attached only when the regime
	// policy permits it.
	if (in.Pos.Side == model.SideLong && sig.Kind == model.SignalSell) ||
		(in.Pos.Side == model.SideShort && sig.Kind == model.SignalBuy) {
		d := model.Decision{
			Action: model.ActionClose,
			Reason: fmt.Sprintf("%s signal against open %s", sig.Kind, in.Pos.Side),
		}
		next := in.Pos.Side.Opposite()
		if e.blockedByRegime(next, in.Regime) {
			log.Printf("[decision] reversal close only, %s re-entry blocked in %s regime", next, in.Regime)
			return d
		}
		// Size the follow-up leg now; it executes right after the close
		// at effectively the same prices. If it cannot be sized the
		// close still stands on its own.
		leg := e.open(next, in)
		if leg.IsHold() {
			log.Printf("[decision] reversal close only, follow-up refused: %s", leg.Reason)
			return d
		}
		d.Follow = leg.Action
		d.Units = leg.Units
		d.StopLoss = leg.StopLoss
		d.TakeProfit = leg.TakeProfit
		d.RiskAmount = leg.RiskAmount
		d.RewardRatio = leg.RewardRatio
		return d
	}

	return hold("position aligned with signal")
}

// blockedByRegime reports whether the policy refuses an entry of the
// given side under the given regime.
func (e *Engine) blockedByRegime(side model.Side, regime model.Regime) bool {
	if !e.policy.DisableOppositeTrade {
		return false
	}
	return (side == model.SideLong && regime == model.RegimeBear) ||
		(side == model.SideShort && regime == model.RegimeBull)
}

// open sizes an entry from the signal's stop reference. A signal whose
// stop line is absent cannot be sized or protected, so it is refused
// rather than opened naked.
func (e *Engine) open(side model.Side, in Input) model.Decision {
	sig := in.Signal
	if math.IsNaN(sig.SuperTrend) {
		return hold("stop reference unavailable, refusing unprotected entry")
	}

	profile := e.table.Lookup(in.Regime, side)
	units, sl, tp, err := e.sizer.Plan(profile, side, sig.Price, sig.SuperTrend, in.Spread)
	if err != nil {
		return hold(fmt.Sprintf("sizing failed: %v", err))
	}

	action := model.ActionOpenLong
	if side == model.SideShort {
		action = model.ActionOpenShort
	}
	return model.Decision{
		Action:      action,
		Units:       units,
		StopLoss:    sl,
		TakeProfit:  tp,
		RiskAmount:  profile.RiskAmount,
		RewardRatio: profile.RewardRatio,
		Reason:      fmt.Sprintf("%s signal in %s regime", sig.Kind, in.Regime),
	}
}

func hold(reason string) model.Decision {
	return model.Decision{Action: model.ActionHold, Reason: reason}
}
