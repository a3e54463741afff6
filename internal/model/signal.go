package model

import "time"

// SignalKind classifies the interpreter's reading of the indicator series.
// BUY and SELL occur only on the exact candle where the trend flipped; a
// continuing trend reports HOLD_LONG or HOLD_SHORT.
type SignalKind string

const (
	SignalBuy       SignalKind = "BUY"
	SignalSell      SignalKind = "SELL"
	SignalHoldLong  SignalKind = "HOLD_LONG"
	SignalHoldShort SignalKind = "HOLD_SHORT"
)

// SignalInfo is the interpreter's per-cycle output. It is ephemeral;
// recomputed every cycle, never persisted.
//
// The fields deliberately mix rows: Kind, Trend and the trailing lines
// come from the confirmed (closed) candle when closed-candle mode is on,
// while SuperTrend and Price always come from the live last candle so
// that stop levels track the current market. See the interpreter for why
// this split matters.
type SignalInfo struct {
	Kind  SignalKind
	Trend int

	// SuperTrend and Price are read from the most recent candle.
	SuperTrend float64
	Price      float64

	// TrailingUp/TrailingDown are read from the confirmed row; the live
	// row's lines may already have reset due to the in-progress candle's
	// own crossover, which would corrupt emergency-close checks.
	TrailingUp   float64
	TrailingDown float64

	// ConfirmedClose is the close of the confirmed candle, paired with
	// the confirmed trailing lines for emergency-close comparisons.
	ConfirmedClose float64

	Support    float64
	Resistance float64
	ATR        float64
	Pivot      float64 // current center line

	// CandleTime is the timestamp of the most recent candle in the
	// window; it is the value recorded as the dedup marker when the
	// engine acts on this signal.
	CandleTime time.Time
}

// IsEntry reports whether the signal is a fresh BUY or SELL flip.
func (s *SignalInfo) IsEntry() bool {
	return s.Kind == SignalBuy || s.Kind == SignalSell
}
