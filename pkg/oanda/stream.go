package oanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Tick is one streamed price update.
type Tick struct {
	Instrument string
	Bid        float64
	Ask        float64
	Time       time.Time
}

// Mid returns the midpoint price.
func (t Tick) Mid() float64 { return (t.Bid + t.Ask) / 2 }

// PriceStream consumes a WebSocket bridge of the v20 pricing stream.
// The decision loop polls candles; the stream only feeds the live P&L
// display and spread monitoring, so dropped ticks are acceptable and
// the consumer channel is never allowed to block the reader.
type PriceStream struct {
	url        string
	apiKey     string
	instrument string

	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	Ticks chan Tick

	// reconnect policy
	maxRetryAttempt int
	retryDelay      time.Duration
}

// NewPriceStream returns a stream for one instrument.
func NewPriceStream(url, apiKey, instrument string) *PriceStream {
	return &PriceStream{
		url:             url,
		apiKey:          apiKey,
		instrument:      instrument,
		dialer:          websocket.DefaultDialer,
		Ticks:           make(chan Tick, 256),
		maxRetryAttempt: 10,
		retryDelay:      2 * time.Second,
	}
}

type streamMessage struct {
	Type       string `json:"type"` // PRICE or HEARTBEAT
	Instrument string `json:"instrument"`
	Time       string `json:"time"`
	Bids       []struct {
		Price string `json:"price"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
	} `json:"asks"`
}

// Run connects and pumps ticks until ctx is cancelled. Reconnects with
// exponential backoff on every drop; gives up after maxRetryAttempt
// consecutive failures.
func (ps *PriceStream) Run(ctx context.Context) error {
	defer close(ps.Ticks)

	attempt := 0
	for {
		if err := ps.connect(ctx); err != nil {
			attempt++
			if attempt > ps.maxRetryAttempt {
				return fmt.Errorf("oanda stream: giving up after %d attempts: %w", attempt-1, err)
			}
			delay := ps.retryDelay * time.Duration(1<<(attempt-1))
			if delay > time.Minute {
				delay = time.Minute
			}
			log.Printf("[stream] connect failed (attempt %d): %v, retrying in %s", attempt, err, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
		attempt = 0

		if err := ps.readLoop(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[stream] connection dropped: %v", err)
		}
	}
}

func (ps *PriceStream) connect(ctx context.Context) error {
	header := map[string][]string{
		"Authorization": {"Bearer " + ps.apiKey},
	}
	conn, _, err := ps.dialer.DialContext(ctx, ps.url, header)
	if err != nil {
		return err
	}

	sub := map[string]any{
		"type":        "subscribe",
		"instruments": []string{ps.instrument},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	ps.mu.Lock()
	ps.conn = conn
	ps.mu.Unlock()

	log.Printf("[stream] connected, subscribed to %s", ps.instrument)
	return nil
}

func (ps *PriceStream) readLoop(ctx context.Context) error {
	ps.mu.Lock()
	conn := ps.conn
	ps.mu.Unlock()
	defer conn.Close()

	// Unblock ReadMessage on cancellation.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		// The server heartbeats every few seconds; a silent connection
		// is a dead one.
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[stream] bad message: %v", err)
			continue
		}
		if msg.Type != "PRICE" || len(msg.Bids) == 0 || len(msg.Asks) == 0 {
			continue
		}

		tick, err := msg.toTick()
		if err != nil {
			log.Printf("[stream] bad tick: %v", err)
			continue
		}

		select {
		case ps.Ticks <- tick:
		default:
			// Consumer behind; drop rather than stall the reader.
		}
	}
}

func (m *streamMessage) toTick() (Tick, error) {
	bid, err := strconv.ParseFloat(m.Bids[0].Price, 64)
	if err != nil {
		return Tick{}, fmt.Errorf("bid %q: %w", m.Bids[0].Price, err)
	}
	ask, err := strconv.ParseFloat(m.Asks[0].Price, 64)
	if err != nil {
		return Tick{}, fmt.Errorf("ask %q: %w", m.Asks[0].Price, err)
	}
	ts, err := time.Parse(time.RFC3339, m.Time)
	if err != nil {
		return Tick{}, fmt.Errorf("time %q: %w", m.Time, err)
	}
	return Tick{Instrument: m.Instrument, Bid: bid, Ask: ask, Time: ts.UTC()}, nil
}
