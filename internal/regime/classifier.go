// Package regime classifies the broad market direction on a coarse
// timeframe so the decision layer can bias risk toward the prevailing
// trend.
package regime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"pptrader/internal/indicator"
	"pptrader/internal/model"
	"pptrader/internal/signal"
)

// ErrClassification wraps any failure to classify. The classifier still
// returns RegimeNeutral with it, so callers keep a usable value and log
// the degraded state.
var ErrClassification = errors.New("regime: classification failed")

// Classifier runs the same trend indicator on a coarser granularity and
// maps its reading to a market regime. Results are cached briefly since
// a 3 hour candle does not move between one minute cycles.
type Classifier struct {
	md          model.MarketData
	instrument  string
	granularity string
	count       int
	params      indicator.Params
	interp      *signal.Interpreter
	cacheTTL    time.Duration

	mu        sync.Mutex
	cached    model.Regime
	cachedAt  time.Time
	haveCache bool
}

// New returns a Classifier reading the given coarse granularity
// (typically "H3") from the market data source.
func New(md model.MarketData, instrument, granularity string, params indicator.Params, cacheTTL time.Duration) *Classifier {
	return &Classifier{
		md:          md,
		instrument:  instrument,
		granularity: granularity,
		count:       100,
		params:      params,
		interp:      &signal.Interpreter{ClosedCandlesOnly: true},
		cacheTTL:    cacheTTL,
	}
}

// Regime classifies the current market. On any failure it returns
// RegimeNeutral together with a wrapped ErrClassification; a stale cache
// entry is never served in place of the error, since trading at full
// size on an unverified regime is exactly what NEUTRAL exists to avoid.
func (c *Classifier) Regime(ctx context.Context) (model.Regime, error) {
	c.mu.Lock()
	if c.haveCache && time.Since(c.cachedAt) < c.cacheTTL {
		r := c.cached
		c.mu.Unlock()
		return r, nil
	}
	c.mu.Unlock()

	r, err := c.classify(ctx)
	if err != nil {
		log.Printf("[regime] classification failed, defaulting to NEUTRAL: %v", err)
		return model.RegimeNeutral, fmt.Errorf("%w: %v", ErrClassification, err)
	}

	c.mu.Lock()
	c.cached = r
	c.cachedAt = time.Now()
	c.haveCache = true
	c.mu.Unlock()

	log.Printf("[regime] %s %s -> %s", c.instrument, c.granularity, r)
	return r, nil
}

func (c *Classifier) classify(ctx context.Context) (model.Regime, error) {
	candles, err := c.md.Candles(ctx, c.instrument, c.granularity, c.count)
	if err != nil {
		return "", fmt.Errorf("fetch %s candles: %w", c.granularity, err)
	}

	rows, err := indicator.Compute(candles, c.params)
	if err != nil {
		return "", fmt.Errorf("compute indicator: %w", err)
	}

	info, err := c.interp.Interpret(candles, rows)
	if err != nil {
		return "", fmt.Errorf("interpret: %w", err)
	}

	switch info.Kind {
	case model.SignalBuy, model.SignalHoldLong:
		return model.RegimeBull, nil
	case model.SignalSell, model.SignalHoldShort:
		return model.RegimeBear, nil
	default:
		return "", fmt.Errorf("unmapped signal kind %q", info.Kind)
	}
}
