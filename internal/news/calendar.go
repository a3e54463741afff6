// Package news suppresses trading around scheduled high-impact events.
// The calendar is a local JSON file refreshed out of band; the gate
// only answers whether "now" falls inside a blackout window.
package news

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Event is one scheduled calendar entry.
type Event struct {
	Time     time.Time `json:"time"`
	Currency string    `json:"currency"` // "USD", "EUR", ...
	Impact   string    `json:"impact"`   // "high", "medium", "low"
	Title    string    `json:"title"`
}

// Gate blocks trading in a window around high-impact events touching
// the instrument's currencies.
type Gate struct {
	windowBefore time.Duration
	windowAfter  time.Duration
	currencies   []string

	mu     sync.RWMutex
	events []Event
}

// NewGate builds a gate for the given instrument ("EUR_USD" watches EUR
// and USD events).
func NewGate(instrument string, before, after time.Duration) *Gate {
	return &Gate{
		windowBefore: before,
		windowAfter:  after,
		currencies:   strings.Split(instrument, "_"),
	}
}

// LoadCalendar replaces the event list from a JSON file. Events with
// impact other than "high" are dropped at load time.
func (g *Gate) LoadCalendar(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("news: read calendar: %w", err)
	}

	var all []Event
	if err := json.Unmarshal(data, &all); err != nil {
		return fmt.Errorf("news: parse calendar: %w", err)
	}

	high := all[:0]
	for _, ev := range all {
		if strings.EqualFold(ev.Impact, "high") && g.watches(ev.Currency) {
			high = append(high, ev)
		}
	}

	g.mu.Lock()
	g.events = high
	g.mu.Unlock()

	log.Printf("[news] loaded %d relevant high-impact events from %s", len(high), path)
	return nil
}

// SetEvents replaces the event list directly.
func (g *Gate) SetEvents(events []Event) {
	g.mu.Lock()
	g.events = events
	g.mu.Unlock()
}

// Suppressed reports whether now falls inside any event's blackout
// window [event-before, event+after].
func (g *Gate) Suppressed(now time.Time) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, ev := range g.events {
		if !now.Before(ev.Time.Add(-g.windowBefore)) && !now.After(ev.Time.Add(g.windowAfter)) {
			log.Printf("[news] suppressed by %s %s at %s", ev.Currency, ev.Title, ev.Time.Format(time.RFC3339))
			return true
		}
	}
	return false
}

func (g *Gate) watches(currency string) bool {
	for _, c := range g.currencies {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return false
}

// Disabled is a SuppressionGate that never suppresses.
type Disabled struct{}

func (Disabled) Suppressed(time.Time) bool { return false }
