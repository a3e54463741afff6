// Package backtest replays historical candles through the identical
// decision pipeline the live loop runs: same indicator, interpreter,
// regime classifier, gating engine and trailing controller, with the
// broker replaced by a candle-driven fill simulator and the dedup
// marker held in memory.
package backtest

import (
	"context"
	"fmt"
	"time"

	"pptrader/internal/bot"
	"pptrader/internal/decision"
	"pptrader/internal/indicator"
	"pptrader/internal/model"
	"pptrader/internal/regime"
	"pptrader/internal/risk"
	"pptrader/internal/signal"
)

// Regime classification needs a minimal coarse-timeframe history before
// its output means anything; candles before that are skipped rather than
// traded at NEUTRAL sizing.
const minMarketCandles = 15

// Config parameterizes a simulation run.
type Config struct {
	Instrument        string
	MarketGranularity string // coarse regime timeframe, default H3

	Params indicator.Params
	Policy decision.Policy
	Table  risk.Table

	MaxUnits         int64
	SpreadBufferPips float64
	TrailingMinMove  float64

	Spread         float64 // fixed simulated bid/ask spread
	InitialBalance float64

	// UseLiveCandles reads signals from the still-forming candle instead
	// of the last closed one, matching the live bot's flag.
	UseLiveCandles bool
}

func (c *Config) applyDefaults() {
	if c.MarketGranularity == "" {
		c.MarketGranularity = "H3"
	}
	if c.Params == (indicator.Params{}) {
		c.Params = indicator.DefaultParams()
	}
	if zeroTable(c.Table) {
		c.Table = risk.DefaultTable()
	}
	if c.MaxUnits == 0 {
		c.MaxUnits = 500000
	}
	if c.Spread == 0 {
		c.Spread = 0.0002
	}
	if c.InitialBalance == 0 {
		c.InitialBalance = 10000
	}
}

func zeroTable(t risk.Table) bool {
	return t.Bull.Long.RiskAmount == 0 && t.Bear.Long.RiskAmount == 0
}

// Engine runs simulations.
type Engine struct {
	cfg Config
}

// New validates the config and returns an Engine.
func New(cfg Config) (*Engine, error) {
	cfg.applyDefaults()
	if cfg.Instrument == "" {
		return nil, fmt.Errorf("backtest: instrument required")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// Run replays trading candles against the coarse market series. Both
// slices must be ordered oldest first. Indicator rows are computed once
// over the full trading series; each step then exposes only the prefix
// up to the current candle, so no step reads the future.
func (e *Engine) Run(ctx context.Context, trading, market []model.Candle) (*Result, error) {
	rows, err := indicator.Compute(trading, e.cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("backtest: indicator: %w", err)
	}

	hist := &histMarket{
		granularity: e.cfg.MarketGranularity,
		market:      market,
		spread:      e.cfg.Spread,
	}

	classifier := regime.New(hist, e.cfg.Instrument, e.cfg.MarketGranularity, e.cfg.Params, 0)
	recorder := &recordingRegime{inner: classifier, last: model.RegimeNeutral}

	broker := NewSimBroker(e.cfg.Instrument, e.cfg.Spread, recorder.Last)

	src := &replaySource{
		candles: trading,
		rows:    rows,
		interp:  &signal.Interpreter{ClosedCandlesOnly: !e.cfg.UseLiveCandles},
	}

	sizer := risk.NewSizer(e.cfg.MaxUnits, e.cfg.SpreadBufferPips)
	b, err := bot.New(bot.Options{
		Instrument:      e.cfg.Instrument,
		Interval:        time.Minute, // unused, Cycle is driven directly
		Market:          hist,
		Signals:         src,
		Executor:        broker,
		Marker:          &memMarker{},
		Regime:          recorder,
		Engine:          decision.New(e.cfg.Policy, e.cfg.Table, sizer),
		Trailing:        &decision.TrailingController{Sizer: sizer, MinMove: e.cfg.TrailingMinMove},
		SkipMarketHours: true,
	})
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}

	start := e.cfg.Params.MinCandles()
	for i := start; i < len(trading); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := trading[i]

		hist.cursor = c.Time
		broker.Advance(c)

		if hist.available() < minMarketCandles {
			continue
		}

		src.limit = i + 1
		if err := b.Cycle(ctx); err != nil {
			return nil, fmt.Errorf("backtest: candle %s: %w", c.Time.Format(time.RFC3339), err)
		}
	}
	broker.Finalize()

	trades := broker.Trades()
	final := e.cfg.InitialBalance
	for i := range trades {
		final += trades[i].RealizedPL
	}
	return &Result{
		Instrument:     e.cfg.Instrument,
		InitialBalance: e.cfg.InitialBalance,
		FinalBalance:   final,
		Trades:         trades,
	}, nil
}

// ── replay collaborators ──

// histMarket serves the coarse regime series sliced at the replay cursor
// and a fixed spread. It implements model.MarketData.
type histMarket struct {
	granularity string
	market      []model.Candle
	spread      float64
	cursor      time.Time
}

func (h *histMarket) Candles(ctx context.Context, instrument, granularity string, count int) ([]model.Candle, error) {
	if granularity != h.granularity {
		return nil, fmt.Errorf("backtest: no %s data loaded", granularity)
	}
	n := h.available()
	if n > count {
		return h.market[n-count : n], nil
	}
	return h.market[:n], nil
}

func (h *histMarket) Spread(ctx context.Context, instrument string) (float64, error) {
	return h.spread, nil
}

// available counts market candles at or before the cursor. Both series
// are ordered, so the cursor only ever moves forward.
func (h *histMarket) available() int {
	n := 0
	for n < len(h.market) && !h.market[n].Time.After(h.cursor) {
		n++
	}
	return n
}

// replaySource exposes the precomputed series up to the replay cursor.
// It implements model.SignalSource.
type replaySource struct {
	candles []model.Candle
	rows    []model.IndicatorRow
	interp  *signal.Interpreter
	limit   int
}

func (s *replaySource) Read(ctx context.Context) (model.SignalInfo, error) {
	window := s.candles[:s.limit]
	if s.interp.ClosedCandlesOnly {
		// Present the newest candle the way a live feed would, still
		// forming, so the signal keeps its one candle of lag.
		live := make([]model.Candle, s.limit)
		copy(live, window)
		live[s.limit-1].Complete = false
		window = live
	}
	return s.interp.Interpret(window, s.rows[:s.limit])
}

// recordingRegime remembers the last classification so the simulated
// broker can stamp trades with the regime active at entry.
type recordingRegime struct {
	inner model.RegimeSource
	last  model.Regime
}

func (r *recordingRegime) Regime(ctx context.Context) (model.Regime, error) {
	reg, err := r.inner.Regime(ctx)
	r.last = reg
	return reg, err
}

func (r *recordingRegime) Last() model.Regime { return r.last }

// memMarker is the in-memory model.MarkerStore for simulations; dedup
// semantics are identical to the durable stores, persistence is not.
type memMarker struct {
	ts  time.Time
	set bool
}

func (m *memMarker) Load(ctx context.Context) (time.Time, bool, error) { return m.ts, m.set, nil }
func (m *memMarker) Save(ctx context.Context, ts time.Time) error {
	m.ts, m.set = ts, true
	return nil
}
func (m *memMarker) Clear(ctx context.Context) error {
	m.ts, m.set = time.Time{}, false
	return nil
}
func (m *memMarker) Close() error { return nil }
