// Package signal turns indicator rows into a single per-cycle reading.
//
// The interpreter classifies the latest state into BUY, SELL, HOLD_LONG
// or HOLD_SHORT. BUY/SELL fire only on the exact candle where the trend
// flipped; a continuing trend reports a HOLD of its direction, which is
// what stops a flip from re-triggering ("repainting") on every cycle of
// the same candle.
package signal

import (
	"errors"
	"fmt"
	"math"

	"pptrader/internal/model"
)

// ErrTooFewRows is returned when the series is too short to interpret.
var ErrTooFewRows = errors.New("signal: need at least two indicator rows")

// Interpreter reads the latest (or latest-closed) indicator row.
type Interpreter struct {
	// ClosedCandlesOnly makes the interpreter read signal and trend from
	// the last fully closed candle instead of the live, still-moving
	// one. The live candle can cross the stop line intrabar and uncross
	// before it closes, producing signals that vanish; closed-candle
	// reads trade one candle of lag for stability. The closed row is
	// found via Candle.Complete: when the feed ends on a forming candle
	// the read steps one row back, and when the provider omits the
	// forming candle the last row already is the closed one.
	ClosedCandlesOnly bool
}

// Interpret derives the cycle's SignalInfo from parallel candle and
// indicator slices (rows[i] computed from candles[i]).
//
// Two fields deliberately come from different rows than the signal:
//   - SuperTrend and Price are read from the live last row, because the
//     protective stop must reflect the current market even when the
//     signal is read one candle back.
//   - TrailingUp/TrailingDown come from the confirmed row, because the
//     live row's lines may have already reset due to the in-progress
//     candle's own crossover, which would corrupt emergency-close
//     comparisons against the confirmed close.
func (it *Interpreter) Interpret(candles []model.Candle, rows []model.IndicatorRow) (model.SignalInfo, error) {
	if len(rows) < 2 || len(candles) != len(rows) {
		return model.SignalInfo{}, fmt.Errorf("%w: %d rows, %d candles", ErrTooFewRows, len(rows), len(candles))
	}

	last := len(rows) - 1
	confirmed := last
	if it.ClosedCandlesOnly && !candles[last].Complete {
		confirmed = last - 1
	}

	cr := rows[confirmed]
	lr := rows[last]

	info := model.SignalInfo{
		Trend:          cr.Trend,
		SuperTrend:     lr.SuperTrend,
		Price:          candles[last].Close,
		TrailingUp:     cr.TrailingUp,
		TrailingDown:   cr.TrailingDown,
		ConfirmedClose: candles[confirmed].Close,
		Support:        lr.Support,
		Resistance:     lr.Resistance,
		ATR:            lr.ATR,
		Pivot:          lr.Center,
		CandleTime:     candles[last].Time,
	}

	switch {
	case cr.BuySignal:
		info.Kind = model.SignalBuy
	case cr.SellSignal:
		info.Kind = model.SignalSell
	case cr.Trend == 1:
		info.Kind = model.SignalHoldLong
	case cr.Trend == -1:
		info.Kind = model.SignalHoldShort
	default:
		// Trend unresolved. Fall back to comparing price against the
		// stop line so callers still get a directional reading.
		if math.IsNaN(lr.SuperTrend) || info.Price >= lr.SuperTrend {
			info.Kind = model.SignalHoldLong
			info.Trend = 1
		} else {
			info.Kind = model.SignalHoldShort
			info.Trend = -1
		}
	}

	return info, nil
}
