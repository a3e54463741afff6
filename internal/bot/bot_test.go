package bot

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"pptrader/internal/decision"
	"pptrader/internal/model"
	"pptrader/internal/notify"
	"pptrader/internal/risk"
)

// ── fakes ──

type fakeMarket struct{ spread float64 }

func (f *fakeMarket) Candles(ctx context.Context, instrument, granularity string, count int) ([]model.Candle, error) {
	return nil, errors.New("not used")
}
func (f *fakeMarket) Spread(ctx context.Context, instrument string) (float64, error) {
	return f.spread, nil
}

type fakeSignals struct {
	info model.SignalInfo
	err  error
}

func (f *fakeSignals) Read(ctx context.Context) (model.SignalInfo, error) {
	return f.info, f.err
}

type fakeRegime struct{ regime model.Regime }

func (f *fakeRegime) Regime(ctx context.Context) (model.Regime, error) {
	return f.regime, nil
}

type fakeMarker struct {
	ts     time.Time
	set    bool
	saves  []time.Time
	clears int
}

func (f *fakeMarker) Load(ctx context.Context) (time.Time, bool, error) { return f.ts, f.set, nil }
func (f *fakeMarker) Save(ctx context.Context, ts time.Time) error {
	f.ts, f.set = ts, true
	f.saves = append(f.saves, ts)
	return nil
}
func (f *fakeMarker) Clear(ctx context.Context) error {
	f.ts, f.set = time.Time{}, false
	f.clears++
	return nil
}
func (f *fakeMarker) Close() error { return nil }

type fakeExec struct {
	pos *model.Position

	orderErr  error
	closeErr  error
	orders    []model.OrderRequest
	closes    int
	stopMoves []float64

	fillPrice  float64
	realizedPL float64
}

func (f *fakeExec) MarketOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	if f.orderErr != nil {
		return model.OrderResult{}, f.orderErr
	}
	f.orders = append(f.orders, req)
	side := model.SideLong
	units := req.Units
	if units < 0 {
		side = model.SideShort
		units = -units
	}
	f.pos = &model.Position{Side: side, Units: units, EntryPrice: f.fillPrice, StopLoss: req.StopLoss, TradeID: "t1"}
	return model.OrderResult{TradeID: "t1", FillPrice: f.fillPrice, FilledAt: time.Now()}, nil
}

func (f *fakeExec) ClosePosition(ctx context.Context, instrument string) (model.CloseResult, error) {
	if f.closeErr != nil {
		return model.CloseResult{}, f.closeErr
	}
	f.closes++
	f.pos = nil
	return model.CloseResult{FillPrice: f.fillPrice, RealizedPL: f.realizedPL, ClosedAt: time.Now()}, nil
}

func (f *fakeExec) UpdateStopLoss(ctx context.Context, instrument, tradeID string, price float64) error {
	f.stopMoves = append(f.stopMoves, price)
	if f.pos != nil {
		f.pos.StopLoss = price
	}
	return nil
}

func (f *fakeExec) OpenPosition(ctx context.Context, instrument string) (*model.Position, error) {
	if f.pos == nil {
		return nil, nil
	}
	cp := *f.pos
	return &cp, nil
}

// ── fixtures ──

var signalTime = time.Date(2026, 4, 6, 10, 30, 0, 0, time.UTC)

func buyInfo() model.SignalInfo {
	return model.SignalInfo{
		Kind:           model.SignalBuy,
		Trend:          1,
		Price:          1.10000,
		SuperTrend:     1.09700,
		TrailingUp:     1.09700,
		TrailingDown:   math.NaN(),
		ConfirmedClose: 1.09990,
		CandleTime:     signalTime,
	}
}

func holdInfo(trailingUp, confirmedClose float64) model.SignalInfo {
	return model.SignalInfo{
		Kind:           model.SignalHoldLong,
		Trend:          1,
		Price:          1.10100,
		SuperTrend:     trailingUp,
		TrailingUp:     trailingUp,
		TrailingDown:   math.NaN(),
		ConfirmedClose: confirmedClose,
		CandleTime:     signalTime.Add(5 * time.Minute),
	}
}

type fixture struct {
	bot    *Bot
	exec   *fakeExec
	marker *fakeMarker
	sigs   *fakeSignals
	regime *fakeRegime
}

func newFixture(t *testing.T, info model.SignalInfo) *fixture {
	t.Helper()
	exec := &fakeExec{fillPrice: 1.10002}
	marker := &fakeMarker{}
	sigs := &fakeSignals{info: info}
	reg := &fakeRegime{regime: model.RegimeBull}

	b, err := New(Options{
		Instrument: "EUR_USD",
		Interval:   time.Minute,
		Market:     &fakeMarket{spread: 0.0002},
		Signals:    sigs,
		Executor:   exec,
		Marker:     marker,
		Regime:     reg,
		Engine: decision.New(
			decision.Policy{DisableOppositeTrade: true},
			risk.DefaultTable(),
			risk.NewSizer(500000, 3),
		),
		Trailing: &decision.TrailingController{
			Sizer:   risk.NewSizer(500000, 3),
			MinMove: 0.0005,
		},
		SkipMarketHours: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{bot: b, exec: exec, marker: marker, sigs: sigs, regime: reg}
}

// ── tests ──

func TestCycle_BuyOpensAndSavesMarker(t *testing.T) {
	f := newFixture(t, buyInfo())

	if err := f.bot.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	if len(f.exec.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(f.exec.orders))
	}
	if f.exec.orders[0].Units != 100000 {
		t.Errorf("units = %d, want +100000", f.exec.orders[0].Units)
	}
	if len(f.marker.saves) != 1 || !f.marker.saves[0].Equal(signalTime) {
		t.Errorf("marker saves = %v, want [%v]", f.marker.saves, signalTime)
	}
	if f.bot.position == nil || f.bot.position.Side != model.SideLong {
		t.Errorf("position = %+v, want open LONG", f.bot.position)
	}
}

func TestCycle_FailedOrderLeavesMarkerUntouched(t *testing.T) {
	f := newFixture(t, buyInfo())
	f.exec.orderErr = errors.New("broker rejected")

	if err := f.bot.Cycle(context.Background()); err == nil {
		t.Fatal("expected cycle error on rejected order")
	}

	if len(f.marker.saves) != 0 {
		t.Errorf("marker saved despite failed execution: %v", f.marker.saves)
	}
	if f.bot.position != nil {
		t.Errorf("position = %+v, want nil", f.bot.position)
	}

	// Recovery: the same signal retries next cycle once the broker is back.
	f.exec.orderErr = nil
	if err := f.bot.Cycle(context.Background()); err != nil {
		t.Fatalf("retry cycle: %v", err)
	}
	if len(f.exec.orders) != 1 || len(f.marker.saves) != 1 {
		t.Errorf("retry did not execute: orders=%d saves=%d", len(f.exec.orders), len(f.marker.saves))
	}
}

func TestCycle_DuplicateCandleIsNoOp(t *testing.T) {
	f := newFixture(t, buyInfo())
	f.marker.ts, f.marker.set = signalTime, true

	if err := f.bot.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if len(f.exec.orders) != 0 {
		t.Errorf("orders = %d, want 0 for already-acted candle", len(f.exec.orders))
	}
}

func TestCycle_ReversalClosesThenOpensFollow(t *testing.T) {
	f := newFixture(t, buyInfo())
	f.regime.regime = model.RegimeBear

	// Open short first.
	sell := buyInfo()
	sell.Kind = model.SignalSell
	sell.SuperTrend = 1.10300
	sell.TrailingUp = math.NaN()
	sell.TrailingDown = 1.10300
	f.sigs.info = sell
	if err := f.bot.Cycle(context.Background()); err != nil {
		t.Fatalf("open short: %v", err)
	}
	if f.bot.position == nil || f.bot.position.Side != model.SideShort {
		t.Fatalf("position = %+v, want SHORT", f.bot.position)
	}

	// BUY against the short in a BULL regime: close and reverse.
	f.regime.regime = model.RegimeBull
	buy := buyInfo()
	buy.CandleTime = signalTime.Add(10 * time.Minute)
	f.sigs.info = buy
	if err := f.bot.Cycle(context.Background()); err != nil {
		t.Fatalf("reversal: %v", err)
	}

	if f.exec.closes != 1 {
		t.Errorf("closes = %d, want 1", f.exec.closes)
	}
	if f.bot.position == nil || f.bot.position.Side != model.SideLong {
		t.Errorf("position = %+v, want LONG after reversal", f.bot.position)
	}
	// Close cleared the old marker, the follow-up open saved the new one.
	if f.marker.clears != 1 {
		t.Errorf("marker clears = %d, want 1", f.marker.clears)
	}
	if !f.marker.set || !f.marker.ts.Equal(buy.CandleTime) {
		t.Errorf("marker = %v set=%v, want %v", f.marker.ts, f.marker.set, buy.CandleTime)
	}
}

func TestCycle_ExternalCloseClearsMarker(t *testing.T) {
	f := newFixture(t, buyInfo())
	if err := f.bot.Cycle(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Broker-side stop hit between cycles.
	n := &captureNotifier{}
	f.bot.opt.Notifier = n
	f.exec.pos = nil
	f.sigs.info = holdInfo(1.09800, 1.10050)
	if err := f.bot.Cycle(context.Background()); err != nil {
		t.Fatalf("sync cycle: %v", err)
	}

	if f.bot.position != nil {
		t.Errorf("position = %+v, want nil after external close", f.bot.position)
	}
	if f.marker.set {
		t.Error("marker still set after external close")
	}

	// The alert names what was released; fill and P&L happened at the
	// broker and must not show up as zeros.
	if len(n.events) != 1 {
		t.Fatalf("events = %d, want 1 external close alert", len(n.events))
	}
	if !strings.Contains(n.events[0].Title, "closed at broker") {
		t.Errorf("event title = %q, want external close wording", n.events[0].Title)
	}
	if strings.Contains(n.events[0].Message, "0.00000") || strings.Contains(n.events[0].Message, "P&L 0.00") {
		t.Errorf("event message carries fabricated fill figures: %q", n.events[0].Message)
	}
}

func TestCycle_TrailingMovesStop(t *testing.T) {
	f := newFixture(t, buyInfo())
	if err := f.bot.Cycle(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	// HOLD cycle with a line well above the entry stop.
	f.sigs.info = holdInfo(1.09900, 1.10050)
	if err := f.bot.Cycle(context.Background()); err != nil {
		t.Fatalf("trail cycle: %v", err)
	}

	if len(f.exec.stopMoves) != 1 {
		t.Fatalf("stop moves = %d, want 1", len(f.exec.stopMoves))
	}
	// Line 1.09900 minus spread/2 (0.0001) and 3 pip buffer.
	want := 1.09860
	if math.Abs(f.exec.stopMoves[0]-want) > 1e-9 {
		t.Errorf("new stop = %.5f, want %.5f", f.exec.stopMoves[0], want)
	}
	if math.Abs(f.bot.position.StopLoss-want) > 1e-9 {
		t.Errorf("tracked stop = %.5f, want %.5f", f.bot.position.StopLoss, want)
	}
}

func TestCycle_EmergencyCloseOnConfirmedBreach(t *testing.T) {
	f := newFixture(t, buyInfo())
	if err := f.bot.Cycle(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Confirmed close below the trailing line.
	f.sigs.info = holdInfo(1.09900, 1.09850)
	if err := f.bot.Cycle(context.Background()); err != nil {
		t.Fatalf("emergency cycle: %v", err)
	}

	if f.exec.closes != 1 {
		t.Errorf("closes = %d, want 1 emergency close", f.exec.closes)
	}
	if f.bot.position != nil {
		t.Errorf("position = %+v, want nil", f.bot.position)
	}
	if f.marker.set {
		t.Error("marker still set after emergency close")
	}
}

func TestCycle_CloseOnNewsExitsOpenPosition(t *testing.T) {
	f := newFixture(t, buyInfo())
	f.bot.opt.CloseOnNews = true
	if err := f.bot.Cycle(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	f.bot.opt.Gate = alwaysSuppressed{}
	f.sigs.info = holdInfo(1.09800, 1.10050)
	if err := f.bot.Cycle(context.Background()); err != nil {
		t.Fatalf("news cycle: %v", err)
	}

	if f.exec.closes != 1 {
		t.Errorf("closes = %d, want 1 ahead of event", f.exec.closes)
	}
	if f.bot.position != nil {
		t.Errorf("position = %+v, want nil", f.bot.position)
	}
	if f.marker.set {
		t.Error("marker still set after news close")
	}
}

func TestCycle_SuppressionHoldsEverything(t *testing.T) {
	f := newFixture(t, buyInfo())
	f.bot.opt.Gate = alwaysSuppressed{}

	if err := f.bot.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if len(f.exec.orders) != 0 {
		t.Errorf("orders = %d, want 0 while suppressed", len(f.exec.orders))
	}
}

type alwaysSuppressed struct{}

func (alwaysSuppressed) Suppressed(time.Time) bool { return true }

type captureNotifier struct{ events []notify.Event }

func (c *captureNotifier) Send(ctx context.Context, ev notify.Event) error {
	c.events = append(c.events, ev)
	return nil
}
