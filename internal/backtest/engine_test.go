package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"pptrader/internal/model"
)

// series builds an M5 candle run around a price path: oldest first,
// fixed high/low envelope around the close.
func series(start time.Time, closes []float64) []model.Candle {
	candles := make([]model.Candle, len(closes))
	for i, c := range closes {
		candles[i] = model.Candle{
			Time: start.Add(time.Duration(i) * 5 * time.Minute),
			Open: c - 0.0004, High: c + 0.0006,
			Low: c - 0.0006, Close: c, Complete: true,
		}
	}
	return candles
}

// vShape dips for down candles then rallies, producing a trend flip to
// long partway through the rally.
func vShape(n, down int, step float64) []float64 {
	closes := make([]float64, n)
	price := 1.1000
	for i := range closes {
		if i < down {
			price -= step
		} else {
			price += step
		}
		closes[i] = price
	}
	return closes
}

// marketSeries is a coarse H3 window ending at the given time, rising or
// falling so the regime resolves unambiguously.
func marketSeries(end time.Time, n int, up bool) []model.Candle {
	candles := make([]model.Candle, n)
	price := 1.1000
	for i := range candles {
		step := 0.0008
		if i < n/4 {
			step = -step
		}
		if !up {
			step = -step
		}
		price += step
		candles[i] = model.Candle{
			Time: end.Add(time.Duration(i-n) * 3 * time.Hour),
			Open: price - 0.0004, High: price + 0.0006,
			Low: price - 0.0006, Close: price, Complete: true,
		}
	}
	return candles
}

func TestRun_RallyProducesLongTrade(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	trading := series(start, vShape(120, 30, 0.0008))
	market := marketSeries(start, 80, true)

	e, err := New(Config{Instrument: "EUR_USD", TrailingMinMove: 0.0005})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := e.Run(context.Background(), trading, market)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) == 0 {
		t.Fatal("rally produced no trades")
	}
	first := res.Trades[0]
	if first.Side != model.SideLong {
		t.Errorf("first trade side = %s, want LONG", first.Side)
	}
	if first.Units < 1000 {
		t.Errorf("first trade units = %d, want >= 1000", first.Units)
	}
	if first.Regime != model.RegimeBull {
		t.Errorf("first trade regime = %s, want BULL", first.Regime)
	}
	if !first.ExitTime.After(first.EntryTime) {
		t.Errorf("exit %v not after entry %v", first.ExitTime, first.EntryTime)
	}

	// Balance reconciles with the trade list.
	sum := res.InitialBalance
	for _, tr := range res.Trades {
		sum += tr.RealizedPL
	}
	if math.Abs(sum-res.FinalBalance) > 1e-6 {
		t.Errorf("final balance %.2f, trades sum to %.2f", res.FinalBalance, sum)
	}
}

func TestRun_NoLookahead(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	closes := vShape(120, 30, 0.0008)
	market := marketSeries(start, 80, true)

	e, err := New(Config{Instrument: "EUR_USD"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	full, err := e.Run(context.Background(), series(start, closes), market)
	if err != nil {
		t.Fatalf("full run: %v", err)
	}
	if len(full.Trades) == 0 {
		t.Fatal("no trades in full run")
	}

	// Replaying a prefix must reproduce the trades that fall inside it:
	// future candles cannot have influenced earlier decisions.
	cut := 90
	prefix, err := e.Run(context.Background(), series(start, closes[:cut]), market)
	if err != nil {
		t.Fatalf("prefix run: %v", err)
	}
	cutTime := start.Add(time.Duration(cut-1) * 5 * time.Minute)
	for i, tr := range prefix.Trades {
		if tr.ExitReason == "BACKTEST_END" {
			continue // prefix ran out of data mid-trade
		}
		if i >= len(full.Trades) {
			t.Fatalf("prefix trade %d has no counterpart in full run", i)
		}
		ft := full.Trades[i]
		if !tr.EntryTime.Equal(ft.EntryTime) || tr.EntryPrice != ft.EntryPrice {
			t.Errorf("trade %d diverged: prefix entry %v @ %.5f, full %v @ %.5f",
				i, tr.EntryTime, tr.EntryPrice, ft.EntryTime, ft.EntryPrice)
		}
		if tr.ExitTime.After(cutTime) {
			t.Errorf("trade %d exits after prefix end: %v", i, tr.ExitTime)
		}
	}
}

func TestSummarize(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	res := &Result{
		Instrument:     "EUR_USD",
		InitialBalance: 10000,
		FinalBalance:   10150,
		Trades: []Trade{
			{Side: model.SideLong, RealizedPL: 300, Regime: model.RegimeBull,
				ExitReason: "TAKE_PROFIT", EntryTime: base, ExitTime: base.Add(time.Hour)},
			{Side: model.SideShort, RealizedPL: -150, Regime: model.RegimeBear,
				ExitReason: "STOP_LOSS", EntryTime: base, ExitTime: base.Add(3 * time.Hour)},
		},
	}

	s := res.Summarize()
	if s.TotalTrades != 2 || s.Wins != 1 || s.Losses != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1", s.TotalTrades, s.Wins, s.Losses)
	}
	if s.WinRate != 50 {
		t.Errorf("win rate = %.1f, want 50", s.WinRate)
	}
	if s.TotalPL != 150 {
		t.Errorf("total P&L = %.2f, want 150", s.TotalPL)
	}
	if s.ProfitFactor != 2 {
		t.Errorf("profit factor = %.2f, want 2", s.ProfitFactor)
	}
	if s.AvgDuration != 2*time.Hour {
		t.Errorf("avg duration = %s, want 2h", s.AvgDuration)
	}
	if s.ByRegime[model.RegimeBull].Profit != 300 {
		t.Errorf("BULL profit = %.2f, want 300", s.ByRegime[model.RegimeBull].Profit)
	}
	if s.ByExit["STOP_LOSS"] != 1 {
		t.Errorf("STOP_LOSS exits = %d, want 1", s.ByExit["STOP_LOSS"])
	}
}

func TestSimBroker_IntrabarStop(t *testing.T) {
	b := NewSimBroker("EUR_USD", 0.0002, func() model.Regime { return model.RegimeBull })
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	b.Advance(model.Candle{Time: now, Close: 1.1000, High: 1.1006, Low: 1.0994})
	if _, err := b.MarketOrder(context.Background(), model.OrderRequest{
		Instrument: "EUR_USD", Units: 10000, StopLoss: 1.0980, TakeProfit: 1.1050,
	}); err != nil {
		t.Fatalf("MarketOrder: %v", err)
	}

	// Candle trades through the stop: exit at the stop price, not the
	// close.
	b.Advance(model.Candle{Time: now.Add(5 * time.Minute), Close: 1.0990, High: 1.0995, Low: 1.0975})
	trades := b.Trades()
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	tr := trades[0]
	if tr.ExitReason != "STOP_LOSS" || tr.ExitPrice != 1.0980 {
		t.Errorf("exit = %s @ %.5f, want STOP_LOSS @ 1.09800", tr.ExitReason, tr.ExitPrice)
	}
	// Entry filled at ask: 1.1000 + spread/2.
	wantPL := (1.0980 - 1.1001) * 10000
	if math.Abs(tr.RealizedPL-wantPL) > 1e-6 {
		t.Errorf("P&L = %.2f, want %.2f", tr.RealizedPL, wantPL)
	}
}

func TestSimBroker_IntrabarTakeProfitShort(t *testing.T) {
	b := NewSimBroker("EUR_USD", 0, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	b.Advance(model.Candle{Time: now, Close: 1.1000, High: 1.1006, Low: 1.0994})
	if _, err := b.MarketOrder(context.Background(), model.OrderRequest{
		Instrument: "EUR_USD", Units: -10000, StopLoss: 1.1030, TakeProfit: 1.0960,
	}); err != nil {
		t.Fatalf("MarketOrder: %v", err)
	}

	b.Advance(model.Candle{Time: now.Add(5 * time.Minute), Close: 1.0970, High: 1.0985, Low: 1.0955})
	trades := b.Trades()
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	tr := trades[0]
	if tr.ExitReason != "TAKE_PROFIT" || tr.ExitPrice != 1.0960 {
		t.Errorf("exit = %s @ %.5f, want TAKE_PROFIT @ 1.09600", tr.ExitReason, tr.ExitPrice)
	}
	if wantPL := (1.1000 - 1.0960) * 10000; math.Abs(tr.RealizedPL-wantPL) > 1e-6 {
		t.Errorf("P&L = %.2f, want %.2f", tr.RealizedPL, wantPL)
	}
	if tr.Regime != model.RegimeNeutral {
		t.Errorf("regime = %s, want NEUTRAL default", tr.Regime)
	}
}

func TestSimBroker_FinalizeClosesOpenTrade(t *testing.T) {
	b := NewSimBroker("EUR_USD", 0, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	b.Advance(model.Candle{Time: now, Close: 1.1000, High: 1.1006, Low: 1.0994})
	if _, err := b.MarketOrder(context.Background(), model.OrderRequest{
		Instrument: "EUR_USD", Units: 10000, StopLoss: 1.0950,
	}); err != nil {
		t.Fatalf("MarketOrder: %v", err)
	}
	b.Advance(model.Candle{Time: now.Add(5 * time.Minute), Close: 1.1010, High: 1.1012, Low: 1.0998})
	b.Finalize()

	trades := b.Trades()
	if len(trades) != 1 || trades[0].ExitReason != "BACKTEST_END" {
		t.Fatalf("trades = %+v, want one BACKTEST_END close", trades)
	}
	if wantPL := (1.1010 - 1.1000) * 10000; math.Abs(trades[0].RealizedPL-wantPL) > 1e-6 {
		t.Errorf("P&L = %.2f, want %.2f", trades[0].RealizedPL, wantPL)
	}
}
