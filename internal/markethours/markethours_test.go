package markethours

import (
	"testing"
	"time"
)

// nyTime builds a New York local time for a concrete 2026 date.
func nyTime(month time.Month, day, hour, min int) time.Time {
	return time.Date(2026, month, day, hour, min, 0, 0, NewYork)
}

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"wednesday midday", nyTime(time.June, 17, 12, 0), true},
		{"wednesday midnight", nyTime(time.June, 17, 0, 30), true},
		{"friday before close", nyTime(time.June, 19, 16, 59), true},
		{"friday at close", nyTime(time.June, 19, 17, 0), false},
		{"saturday", nyTime(time.June, 20, 12, 0), false},
		{"sunday before open", nyTime(time.June, 21, 16, 59), false},
		{"sunday at open", nyTime(time.June, 21, 17, 0), true},
		{"sunday evening", nyTime(time.June, 21, 20, 0), true},
	}
	for _, c := range cases {
		if got := IsMarketOpen(c.t); got != c.want {
			t.Errorf("%s: IsMarketOpen = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestNextOpen(t *testing.T) {
	// Saturday noon rolls to Sunday 17:00.
	sat := nyTime(time.June, 20, 12, 0)
	want := nyTime(time.June, 21, 17, 0)
	if got := NextOpen(sat); !got.Equal(want) {
		t.Errorf("NextOpen(saturday) = %v, want %v", got, want)
	}

	// Friday evening after close also rolls to Sunday.
	fri := nyTime(time.June, 19, 18, 0)
	if got := NextOpen(fri); !got.Equal(want) {
		t.Errorf("NextOpen(friday evening) = %v, want %v", got, want)
	}

	// An open market returns the instant unchanged.
	wed := nyTime(time.June, 17, 12, 0)
	if got := NextOpen(wed); !got.Equal(wed) {
		t.Errorf("NextOpen(open market) = %v, want %v", got, wed)
	}
}

func TestNearWeekendClose(t *testing.T) {
	margin := 2 * time.Hour

	if !NearWeekendClose(nyTime(time.June, 19, 15, 30), margin) {
		t.Error("90 minutes before Friday close should be near close")
	}
	if NearWeekendClose(nyTime(time.June, 19, 12, 0), margin) {
		t.Error("5 hours before close should not be near close")
	}
	if NearWeekendClose(nyTime(time.June, 18, 16, 30), margin) {
		t.Error("thursday should never be near weekend close")
	}
	if NearWeekendClose(nyTime(time.June, 19, 17, 30), margin) {
		t.Error("after the close is not 'near' it")
	}
}

func TestOpenIsUTCInvariant(t *testing.T) {
	// The same instant expressed in UTC must classify identically.
	ny := nyTime(time.June, 21, 17, 30)
	if !IsMarketOpen(ny.UTC()) {
		t.Error("UTC rendering of an open instant classified as closed")
	}
}
