package indicator

import (
	"math"

	"pptrader/internal/model"
)

// pivotHighs finds pivot highs: candle i is a pivot high when its high
// strictly exceeds the highs of `period` candles on each side. A pivot
// needs `period` candles of hindsight before it is known, so the value
// is recorded at index i+period, the candle on which the pivot is
// confirmed. Downstream center-line and support/resistance timing depend
// on this lag.
func pivotHighs(candles []model.Candle, period int) []float64 {
	out := nanSlice(len(candles))
	for i := period; i < len(candles)-period; i++ {
		if isPivotHigh(candles, i, period) {
			out[i+period] = candles[i].High
		}
	}
	return out
}

// pivotLows is the symmetric rule on lows.
func pivotLows(candles []model.Candle, period int) []float64 {
	out := nanSlice(len(candles))
	for i := period; i < len(candles)-period; i++ {
		if isPivotLow(candles, i, period) {
			out[i+period] = candles[i].Low
		}
	}
	return out
}

func isPivotHigh(candles []model.Candle, i, period int) bool {
	h := candles[i].High
	for j := 1; j <= period; j++ {
		if h <= candles[i-j].High || h <= candles[i+j].High {
			return false
		}
	}
	return true
}

func isPivotLow(candles []model.Candle, i, period int) bool {
	l := candles[i].Low
	for j := 1; j <= period; j++ {
		if l >= candles[i-j].Low || l >= candles[i+j].Low {
			return false
		}
	}
	return true
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
