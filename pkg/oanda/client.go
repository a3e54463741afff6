// Package oanda is a typed client for the OANDA v20 REST API, covering
// the subset the bot needs: candle history, pricing, account state and
// order management. All methods take a context and retry transient
// failures with exponential backoff.
package oanda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pptrader/internal/model"
)

const (
	practiceHost = "https://api-fxpractice.oanda.com"
	liveHost     = "https://api-fxtrade.oanda.com"

	defaultTimeout = 10 * time.Second
	maxRetries     = 3
	retryBaseDelay = 500 * time.Millisecond
)

// Config configures the client.
type Config struct {
	APIKey      string
	AccountID   string
	Environment string // "practice" or "live"
	Timeout     time.Duration
	BaseURL     string // overrides the environment host (tests, simulators)

	// Observe, when set, receives the latency of every completed
	// operation (label, wall time including retries).
	Observe func(op string, d time.Duration)
}

// Client talks to one OANDA account.
type Client struct {
	apiKey    string
	accountID string
	baseURL   string
	observe   func(op string, d time.Duration)

	httpClient *http.Client
}

// New returns a configured client.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = practiceHost
		if cfg.Environment == "live" {
			base = liveHost
		}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiKey:     cfg.APIKey,
		accountID:  cfg.AccountID,
		baseURL:    strings.TrimRight(base, "/"),
		observe:    cfg.Observe,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// timeOp reports an operation's latency to the configured observer.
// Usage: defer c.timeOp("candles")()
func (c *Client) timeOp(op string) func() {
	if c.observe == nil {
		return func() {}
	}
	start := time.Now()
	return func() { c.observe(op, time.Since(start)) }
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("oanda: status %d: %s", e.StatusCode, e.Message)
}

// retryable reports whether the request should be retried. Server side
// errors and rate limits are transient; 4xx other than 429 are not.
func retryable(statusCode int, err error) bool {
	if err != nil {
		return true
	}
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}

// do sends one request with retries and decodes the JSON response into
// out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("oanda: marshal body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			log.Printf("[oanda] retry %d for %s %s in %s", attempt, method, path, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("oanda: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("oanda: %s %s: %w", method, path, err)
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("oanda: read response: %w", err)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
			if retryable(resp.StatusCode, nil) {
				lastErr = apiErr
				continue
			}
			return apiErr
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("oanda: decode response: %w", err)
		}
		return nil
	}
	return lastErr
}

func errorMessage(data []byte) string {
	var e struct {
		ErrorMessage string `json:"errorMessage"`
	}
	if json.Unmarshal(data, &e) == nil && e.ErrorMessage != "" {
		return e.ErrorMessage
	}
	return strings.TrimSpace(string(data))
}

// ── Candles ──

type candlesResponse struct {
	Candles []struct {
		Time     string `json:"time"`
		Complete bool   `json:"complete"`
		Volume   int64  `json:"volume"`
		Mid      struct {
			O string `json:"o"`
			H string `json:"h"`
			L string `json:"l"`
			C string `json:"c"`
		} `json:"mid"`
	} `json:"candles"`
}

// Candles fetches the latest count midpoint candles, oldest first.
func (c *Client) Candles(ctx context.Context, instrument, granularity string, count int) ([]model.Candle, error) {
	defer c.timeOp("candles")()
	path := fmt.Sprintf("/v3/instruments/%s/candles?granularity=%s&count=%d&price=M",
		instrument, granularity, count)

	var resp candlesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(resp.Candles))
	for _, rc := range resp.Candles {
		ts, err := time.Parse(time.RFC3339, rc.Time)
		if err != nil {
			return nil, fmt.Errorf("oanda: candle time %q: %w", rc.Time, err)
		}
		candle := model.Candle{
			Time:     ts.UTC(),
			Volume:   rc.Volume,
			Complete: rc.Complete,
		}
		if candle.Open, err = strconv.ParseFloat(rc.Mid.O, 64); err != nil {
			return nil, fmt.Errorf("oanda: candle open %q: %w", rc.Mid.O, err)
		}
		if candle.High, err = strconv.ParseFloat(rc.Mid.H, 64); err != nil {
			return nil, fmt.Errorf("oanda: candle high %q: %w", rc.Mid.H, err)
		}
		if candle.Low, err = strconv.ParseFloat(rc.Mid.L, 64); err != nil {
			return nil, fmt.Errorf("oanda: candle low %q: %w", rc.Mid.L, err)
		}
		if candle.Close, err = strconv.ParseFloat(rc.Mid.C, 64); err != nil {
			return nil, fmt.Errorf("oanda: candle close %q: %w", rc.Mid.C, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// ── Pricing ──

type pricingResponse struct {
	Prices []struct {
		Bids []struct {
			Price string `json:"price"`
		} `json:"bids"`
		Asks []struct {
			Price string `json:"price"`
		} `json:"asks"`
	} `json:"prices"`
}

// Spread returns the current bid/ask spread in price units.
func (c *Client) Spread(ctx context.Context, instrument string) (float64, error) {
	defer c.timeOp("pricing")()
	path := fmt.Sprintf("/v3/accounts/%s/pricing?instruments=%s", c.accountID, instrument)

	var resp pricingResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	if len(resp.Prices) == 0 || len(resp.Prices[0].Bids) == 0 || len(resp.Prices[0].Asks) == 0 {
		return 0, fmt.Errorf("oanda: no pricing for %s", instrument)
	}

	bid, err := strconv.ParseFloat(resp.Prices[0].Bids[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("oanda: bid price: %w", err)
	}
	ask, err := strconv.ParseFloat(resp.Prices[0].Asks[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("oanda: ask price: %w", err)
	}
	return ask - bid, nil
}

// ── Account ──

type accountSummaryResponse struct {
	Account struct {
		Balance       string `json:"balance"`
		NAV           string `json:"NAV"`
		MarginUsed    string `json:"marginUsed"`
		OpenTradeCount int   `json:"openTradeCount"`
	} `json:"account"`
}

// AccountSummary holds the account fields the bot reads.
type AccountSummary struct {
	Balance        float64
	NAV            float64
	MarginUsed     float64
	OpenTradeCount int
}

// Summary fetches the account summary.
func (c *Client) Summary(ctx context.Context) (AccountSummary, error) {
	defer c.timeOp("account_summary")()
	var resp accountSummaryResponse
	if err := c.do(ctx, http.MethodGet, "/v3/accounts/"+c.accountID+"/summary", nil, &resp); err != nil {
		return AccountSummary{}, err
	}

	var s AccountSummary
	var err error
	if s.Balance, err = strconv.ParseFloat(resp.Account.Balance, 64); err != nil {
		return AccountSummary{}, fmt.Errorf("oanda: balance: %w", err)
	}
	if s.NAV, err = strconv.ParseFloat(resp.Account.NAV, 64); err != nil {
		return AccountSummary{}, fmt.Errorf("oanda: NAV: %w", err)
	}
	if s.MarginUsed, err = strconv.ParseFloat(resp.Account.MarginUsed, 64); err != nil {
		return AccountSummary{}, fmt.Errorf("oanda: marginUsed: %w", err)
	}
	s.OpenTradeCount = resp.Account.OpenTradeCount
	return s, nil
}
