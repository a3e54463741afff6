package model

import (
	"context"
	"time"
)

// ── Collaborator Port Interfaces ──
// These interfaces decouple the decision pipeline from its concrete
// collaborators (broker REST client, checkpoint stores, news calendar).
// The core never imports an implementation package.

// MarketData supplies candle windows for an instrument and granularity.
// Implementations return candles ordered most-recent-last and may return
// fewer than requested near the start of history.
type MarketData interface {
	Candles(ctx context.Context, instrument, granularity string, count int) ([]Candle, error)

	// Spread returns the current bid/ask spread for the instrument, in
	// price units. Used to push stop losses outward so the midpoint
	// based stop reference is not hit by quote noise alone.
	Spread(ctx context.Context, instrument string) (float64, error)
}

// OrderRequest describes a market order with protective levels attached.
type OrderRequest struct {
	Instrument string
	Units      int64 // positive = buy, negative = sell
	StopLoss   float64
	TakeProfit float64 // 0 = no take profit
}

// OrderResult is a successful fill.
type OrderResult struct {
	TradeID   string
	FillPrice float64
	FilledAt  time.Time
}

// CloseResult is a successful position close.
type CloseResult struct {
	FillPrice  float64
	RealizedPL float64
	ClosedAt   time.Time
}

// OrderExecutor places and manages orders. Every method either succeeds
// completely or fails leaving broker-side state unchanged from the
// core's point of view; on failure the core retries on the next cycle.
type OrderExecutor interface {
	MarketOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ClosePosition(ctx context.Context, instrument string) (CloseResult, error)
	UpdateStopLoss(ctx context.Context, instrument, tradeID string, price float64) error

	// OpenPosition returns the current position for the instrument, or
	// nil when flat. Used for startup recovery and external-close
	// detection.
	OpenPosition(ctx context.Context, instrument string) (*Position, error)
}

// MarkerStore persists the dedup marker: the timestamp of the candle the
// last authorized action was taken on. It must be durable across process
// restarts; it is the sole guard against re-issuing a stale signal.
type MarkerStore interface {
	// Load returns the stored marker. ok is false when no marker is set.
	Load(ctx context.Context) (ts time.Time, ok bool, err error)

	// Save overwrites the marker. Called only after a confirmed
	// execution.
	Save(ctx context.Context, ts time.Time) error

	// Clear removes the marker, re-arming the next genuine signal.
	// Called after any close.
	Clear(ctx context.Context) error

	Close() error
}

// SuppressionGate reports whether trading is currently suppressed
// (scheduled high-impact news, weekend close, maintenance).
type SuppressionGate interface {
	Suppressed(now time.Time) bool
}

// SignalSource produces the current cycle's signal reading.
type SignalSource interface {
	Read(ctx context.Context) (SignalInfo, error)
}

// RegimeSource classifies the market regime on a coarser timeframe.
// Implementations fall back to RegimeNeutral on failure and return a
// typed error alongside it so callers can log the degradation.
type RegimeSource interface {
	Regime(ctx context.Context) (Regime, error)
}
