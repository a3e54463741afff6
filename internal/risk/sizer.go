package risk

import (
	"errors"
	"log"
	"math"

	"pptrader/internal/model"
)

// pip is the price value of one pip for 4-decimal FX pairs.
const pip = 0.0001

// ErrNoStopDistance is returned when entry and stop coincide, which would
// make the risk formula divide by zero.
var ErrNoStopDistance = errors.New("risk: entry equals stop, no distance to size against")

// Sizer converts a risk allocation into order parameters.
type Sizer struct {
	MinUnits         int64   // broker minimum, floor for every order
	MaxUnits         int64   // hard cap regardless of allocation
	SpreadBufferPips float64 // extra stop distance beyond half the spread
}

// NewSizer returns a Sizer with the given cap and spread buffer. The
// minimum is fixed at 1000 units (0.01 lots).
func NewSizer(maxUnits int64, spreadBufferPips float64) *Sizer {
	return &Sizer{
		MinUnits:         1000,
		MaxUnits:         maxUnits,
		SpreadBufferPips: spreadBufferPips,
	}
}

// Units sizes a position from a fixed risk amount and the raw stop
// distance: units = risk / |entry - rawStop|, clamped to [MinUnits,
// MaxUnits]. The raw (unbuffered) stop is used so that the spread
// adjustment widens protection without shrinking the position.
func (s *Sizer) Units(riskAmount, entry, rawStop float64) (int64, error) {
	dist := math.Abs(entry - rawStop)
	if dist == 0 {
		return 0, ErrNoStopDistance
	}

	units := int64(math.Round(riskAmount / dist))
	if units < s.MinUnits {
		units = s.MinUnits
	}
	if s.MaxUnits > 0 && units > s.MaxUnits {
		units = s.MaxUnits
	}

	log.Printf("[risk] sized %d units (risk=%.2f stop_dist=%.5f, %.1f pips)",
		units, riskAmount, dist, dist/pip)
	return units, nil
}

// StopLoss adjusts the raw stop line outward for the bid/ask spread.
// The indicator runs on midpoint prices but broker stops trigger on bid
// (long) or ask (short), so the stop is pushed half a spread plus the
// configured buffer away from the position:
//
//	LONG:  stop = raw - (spread/2 + buffer)
//	SHORT: stop = raw + (spread/2 + buffer)
func (s *Sizer) StopLoss(rawStop float64, side model.Side, spread float64) float64 {
	adj := spread/2 + s.SpreadBufferPips*pip
	if side == model.SideShort {
		return round5(rawStop + adj)
	}
	return round5(rawStop - adj)
}

// TakeProfit places the target at ratio times the raw stop distance from
// entry. The unbuffered distance is used so the reward ratio is measured
// against the indicator line, not the widened broker stop.
func (s *Sizer) TakeProfit(entry, rawStop float64, side model.Side, ratio float64) float64 {
	reward := math.Abs(entry-rawStop) * ratio
	if side == model.SideShort {
		return round5(entry - reward)
	}
	return round5(entry + reward)
}

// Plan produces the full order parameters for an entry at the given
// price, protected by the raw stop line, under the given profile.
func (s *Sizer) Plan(p Profile, side model.Side, entry, rawStop, spread float64) (units int64, stopLoss, takeProfit float64, err error) {
	units, err = s.Units(p.RiskAmount, entry, rawStop)
	if err != nil {
		return 0, 0, 0, err
	}
	stopLoss = s.StopLoss(rawStop, side, spread)
	takeProfit = s.TakeProfit(entry, rawStop, side, p.RewardRatio)
	return units, stopLoss, takeProfit, nil
}

// round5 rounds to 5 decimal places, the price precision brokers accept
// for 4-decimal pairs.
func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}
