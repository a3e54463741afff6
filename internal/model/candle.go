package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLCV candle for a single instrument.
// Timestamps are UTC bucket-start times, unique and strictly increasing
// within a series. A provider may replace the most recent candle until
// it closes; Complete reports whether the candle is final.
type Candle struct {
	Time     time.Time `json:"time"` // bucket start (UTC)
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume"`
	Complete bool      `json:"complete"`
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// OrderedSeries reports whether candles are sorted by strictly increasing
// timestamp. Providers return most-recent-last; everything downstream
// assumes that ordering.
func OrderedSeries(candles []Candle) bool {
	for i := 1; i < len(candles); i++ {
		if !candles[i].Time.After(candles[i-1].Time) {
			return false
		}
	}
	return true
}
