// Package indicator computes the Pivot Point SuperTrend over a candle
// series: Wilder-smoothed ATR, confirmed pivot highs/lows, a blended
// center line, volatility bands, the two trailing stop lines, the trend
// state and its crossover signals.
//
// The whole series is recomputed statelessly each cycle. The center line
// and trailing lines are history-dependent recurrences, so incremental
// updates of the newest rows are only safe when the recurrences below
// are preserved exactly.
package indicator

import (
	"errors"
	"fmt"
	"math"

	"pptrader/internal/model"
)

// ErrInsufficientData is returned when the candle window is too short to
// produce valid indicator rows. Callers treat it as "not ready", never
// as partial output.
var ErrInsufficientData = errors.New("indicator: insufficient candle history")

// Params carries the Pivot Point SuperTrend settings. Defaults match the
// Pine Script ones the strategy was tuned with.
type Params struct {
	PivotPeriod int     // candles on each side of a pivot, >= 1
	ATRFactor   float64 // band multiplier, > 0
	ATRPeriod   int     // ATR smoothing window, >= 1
}

// DefaultParams returns the tuned defaults: pivot 2, factor 3.0, ATR 10.
func DefaultParams() Params {
	return Params{PivotPeriod: 2, ATRFactor: 3.0, ATRPeriod: 10}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.PivotPeriod < 1 {
		return fmt.Errorf("indicator: pivot period %d < 1", p.PivotPeriod)
	}
	if p.ATRPeriod < 1 {
		return fmt.Errorf("indicator: atr period %d < 1", p.ATRPeriod)
	}
	if p.ATRFactor <= 0 {
		return fmt.Errorf("indicator: atr factor %g <= 0", p.ATRFactor)
	}
	return nil
}

// MinCandles is the shortest window that can yield a resolved trend:
// one confirmed pivot (2*pivot+1 candles plus confirmation lag) and a
// converged ATR.
func (p Params) MinCandles() int {
	return 2*p.PivotPeriod + p.ATRPeriod
}

// Compute produces one IndicatorRow per candle. Rows are independent of
// any prior Compute call; feeding the same series always yields the same
// rows.
func Compute(candles []model.Candle, p Params) ([]model.IndicatorRow, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(candles) < p.MinCandles() {
		return nil, fmt.Errorf("%w: have %d candles, need %d", ErrInsufficientData, len(candles), p.MinCandles())
	}

	n := len(candles)
	atrs := atr(candles, p.ATRPeriod)
	phs := pivotHighs(candles, p.PivotPeriod)
	pls := pivotLows(candles, p.PivotPeriod)

	rows := make([]model.IndicatorRow, n)

	// Center line: each confirmed pivot blends into the running center
	// as (center*2 + pivot)/3; no new pivot carries the previous center
	// forward. Support/resistance forward-fill the raw pivot values.
	center := math.NaN()
	support := math.NaN()
	resistance := math.NaN()
	for i := 0; i < n; i++ {
		lastPP := math.NaN()
		if !math.IsNaN(phs[i]) {
			lastPP = phs[i]
			resistance = phs[i]
		} else if !math.IsNaN(pls[i]) {
			lastPP = pls[i]
		}
		if !math.IsNaN(pls[i]) {
			support = pls[i]
		}
		if !math.IsNaN(lastPP) {
			if math.IsNaN(center) {
				center = lastPP
			} else {
				center = (center*2 + lastPP) / 3
			}
		}

		rows[i] = model.IndicatorRow{
			Time:         candles[i].Time,
			ATR:          atrs[i],
			PivotHigh:    phs[i],
			PivotLow:     pls[i],
			Center:       center,
			UpperBand:    center + p.ATRFactor*atrs[i],
			LowerBand:    center - p.ATRFactor*atrs[i],
			TrailingUp:   math.NaN(),
			TrailingDown: math.NaN(),
			SuperTrend:   math.NaN(),
			Support:      support,
			Resistance:   resistance,
		}
	}

	// Trailing lines and trend, sequential: each candle depends on the
	// previous candle's trailing values and close price. Rows with
	// unresolved bands are skipped, leaving trend 0 there.
	for i := 1; i < n; i++ {
		cur := &rows[i]
		prev := &rows[i-1]
		if math.IsNaN(cur.LowerBand) || math.IsNaN(cur.UpperBand) {
			continue
		}

		prevClose := candles[i-1].Close
		if !math.IsNaN(prev.TrailingUp) && prevClose > prev.TrailingUp {
			cur.TrailingUp = math.Max(cur.LowerBand, prev.TrailingUp)
		} else {
			cur.TrailingUp = cur.LowerBand
		}
		if !math.IsNaN(prev.TrailingDown) && prevClose < prev.TrailingDown {
			cur.TrailingDown = math.Min(cur.UpperBand, prev.TrailingDown)
		} else {
			cur.TrailingDown = cur.UpperBand
		}

		prevTrend := prev.Trend
		if prevTrend == 0 {
			prevTrend = 1
		}
		close := candles[i].Close
		switch {
		// NaN comparisons are false, so an unresolved previous trailing
		// line falls through to the carry-forward branch.
		case close > prev.TrailingDown:
			cur.Trend = 1
		case close < prev.TrailingUp:
			cur.Trend = -1
		default:
			cur.Trend = prevTrend
		}

		if cur.Trend == 1 {
			cur.SuperTrend = cur.TrailingUp
		} else {
			cur.SuperTrend = cur.TrailingDown
		}
	}

	// Crossover signals: true only on the exact flip candle, never both.
	for i := 1; i < n; i++ {
		if rows[i].Trend == 1 && rows[i-1].Trend == -1 {
			rows[i].BuySignal = true
		} else if rows[i].Trend == -1 && rows[i-1].Trend == 1 {
			rows[i].SellSignal = true
		}
	}

	return rows, nil
}
