// Package markethours answers whether the FX market is tradable at a
// given instant. Spot FX runs continuously from the Sydney open Monday
// morning to the New York close Friday evening, which in New York local
// time is Sunday 17:00 through Friday 17:00.
package markethours

import (
	"fmt"
	"time"
)

// NewYork anchors the weekly session boundaries. Using the IANA zone
// keeps the open/close correct across US daylight saving shifts.
var NewYork = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("markethours: load %s: %v", name, err))
	}
	return loc
}

// Session boundary hour in New York local time.
const rolloverHour = 17

// IsMarketOpen reports whether spot FX trades at t.
func IsMarketOpen(t time.Time) bool {
	ny := t.In(NewYork)
	switch ny.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return ny.Hour() >= rolloverHour
	case time.Friday:
		return ny.Hour() < rolloverHour
	default:
		return true
	}
}

// NextOpen returns the next Sunday 17:00 New York open at or after t.
// If the market is already open it returns t unchanged.
func NextOpen(t time.Time) time.Time {
	if IsMarketOpen(t) {
		return t
	}
	ny := t.In(NewYork)
	daysUntilSunday := (int(time.Sunday) - int(ny.Weekday()) + 7) % 7
	if ny.Weekday() == time.Sunday && ny.Hour() >= rolloverHour {
		daysUntilSunday = 7
	}
	open := time.Date(ny.Year(), ny.Month(), ny.Day(), rolloverHour, 0, 0, 0, NewYork)
	return open.AddDate(0, 0, daysUntilSunday)
}

// TimeUntilOpen returns how long until the market next opens, zero if
// it is open now.
func TimeUntilOpen(t time.Time) time.Duration {
	d := NextOpen(t).Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

// NearWeekendClose reports whether t falls within the given margin
// before the Friday close. Used to stop opening fresh positions that
// would sit through the weekend gap.
func NearWeekendClose(t time.Time, margin time.Duration) bool {
	ny := t.In(NewYork)
	if ny.Weekday() != time.Friday {
		return false
	}
	close := time.Date(ny.Year(), ny.Month(), ny.Day(), rolloverHour, 0, 0, 0, NewYork)
	return ny.Before(close) && close.Sub(ny) <= margin
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return "Market Open"
	}
	return fmt.Sprintf("Market Closed, opens in %s", TimeUntilOpen(t).Round(time.Minute))
}
