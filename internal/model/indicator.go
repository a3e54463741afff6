package model

import (
	"math"
	"time"
)

// IndicatorRow holds the Pivot Point SuperTrend values computed for one
// candle. Rows are append-only: once a later row exists, earlier rows are
// never rewritten. Absent values (no pivot on this candle, ATR not yet
// warm, no center line yet) are NaN, mirroring the gaps a rolling
// computation naturally produces.
type IndicatorRow struct {
	Time time.Time

	ATR       float64
	PivotHigh float64 // NaN unless a pivot high was confirmed on this row
	PivotLow  float64 // NaN unless a pivot low was confirmed on this row
	Center    float64 // NaN until the first pivot is confirmed

	UpperBand float64
	LowerBand float64

	TrailingUp   float64
	TrailingDown float64

	// Trend is +1 in an uptrend, -1 in a downtrend, and 0 only before the
	// first candle with resolved bands.
	Trend int

	// SuperTrend is the active stop line: TrailingUp while Trend is +1,
	// TrailingDown while Trend is -1.
	SuperTrend float64

	// BuySignal/SellSignal mark the exact candle of a trend flip.
	// At most one of them is true on any row.
	BuySignal  bool
	SellSignal bool

	Support    float64 // last confirmed pivot low, forward-filled
	Resistance float64 // last confirmed pivot high, forward-filled
}

// HasPivotHigh reports whether a pivot high was confirmed on this row.
func (r *IndicatorRow) HasPivotHigh() bool { return !math.IsNaN(r.PivotHigh) }

// HasPivotLow reports whether a pivot low was confirmed on this row.
func (r *IndicatorRow) HasPivotLow() bool { return !math.IsNaN(r.PivotLow) }
