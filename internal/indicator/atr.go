package indicator

import (
	"math"

	"pptrader/internal/model"
)

// atr computes the Average True Range with Wilder-style exponential
// smoothing (weight 1/period), seeded with the first true range. Values
// before `period` samples have not converged; they are reported as NaN
// so downstream band math treats them as not yet valid.
func atr(candles []model.Candle, period int) []float64 {
	out := make([]float64, len(candles))
	if len(candles) == 0 {
		return out
	}

	w := 1.0 / float64(period)
	var smoothed float64
	for i := range candles {
		tr := trueRange(candles, i)
		if i == 0 {
			smoothed = tr
		} else {
			smoothed += (tr - smoothed) * w
		}
		if i < period-1 {
			out[i] = math.NaN()
		} else {
			out[i] = smoothed
		}
	}
	return out
}

// trueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func trueRange(candles []model.Candle, i int) float64 {
	c := candles[i]
	tr := c.High - c.Low
	if i == 0 {
		return tr
	}
	prevClose := candles[i-1].Close
	if d := math.Abs(c.High - prevClose); d > tr {
		tr = d
	}
	if d := math.Abs(c.Low - prevClose); d > tr {
		tr = d
	}
	return tr
}
