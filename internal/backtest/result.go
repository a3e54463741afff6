package backtest

import (
	"fmt"
	"math"
	"strings"
	"time"

	"pptrader/internal/model"
)

// Result is the outcome of one simulation run.
type Result struct {
	Instrument     string
	InitialBalance float64
	FinalBalance   float64
	Trades         []Trade
}

// RegimeStats aggregates trades opened under one regime.
type RegimeStats struct {
	Trades int
	Profit float64
}

// Summary is the aggregate view of a Result.
type Summary struct {
	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64 // percent
	TotalPL     float64
	ReturnPct   float64
	// ProfitFactor is gross wins over gross losses; +Inf when no trade
	// lost.
	ProfitFactor float64
	AvgWin       float64
	AvgLoss      float64
	AvgDuration  time.Duration

	ByRegime map[model.Regime]RegimeStats
	ByExit   map[string]int
}

// Summarize computes the aggregate statistics.
func (r *Result) Summarize() Summary {
	s := Summary{
		ByRegime: make(map[model.Regime]RegimeStats),
		ByExit:   make(map[string]int),
	}
	if len(r.Trades) == 0 {
		return s
	}

	var grossWin, grossLoss float64
	var totalDur time.Duration
	for i := range r.Trades {
		t := &r.Trades[i]
		s.TotalTrades++
		s.TotalPL += t.RealizedPL
		totalDur += t.Duration()

		if t.RealizedPL > 0 {
			s.Wins++
			grossWin += t.RealizedPL
		} else if t.RealizedPL < 0 {
			s.Losses++
			grossLoss += -t.RealizedPL
		}

		rs := s.ByRegime[t.Regime]
		rs.Trades++
		rs.Profit += t.RealizedPL
		s.ByRegime[t.Regime] = rs
		s.ByExit[t.ExitReason]++
	}

	s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	s.ReturnPct = s.TotalPL / r.InitialBalance * 100
	if grossLoss > 0 {
		s.ProfitFactor = grossWin / grossLoss
	} else {
		s.ProfitFactor = math.Inf(1)
	}
	if s.Wins > 0 {
		s.AvgWin = grossWin / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = -grossLoss / float64(s.Losses)
	}
	s.AvgDuration = totalDur / time.Duration(s.TotalTrades)
	return s
}

// String renders a human-readable report.
func (r *Result) String() string {
	s := r.Summarize()
	var b strings.Builder

	fmt.Fprintf(&b, "Backtest %s: %d trades\n", r.Instrument, s.TotalTrades)
	fmt.Fprintf(&b, "  Balance:       %.2f -> %.2f (%+.2f%%)\n",
		r.InitialBalance, r.FinalBalance, s.ReturnPct)
	fmt.Fprintf(&b, "  Win rate:      %.1f%% (%d W / %d L)\n", s.WinRate, s.Wins, s.Losses)
	fmt.Fprintf(&b, "  Profit factor: %.2f\n", s.ProfitFactor)
	fmt.Fprintf(&b, "  Avg win/loss:  %+.2f / %+.2f\n", s.AvgWin, s.AvgLoss)
	fmt.Fprintf(&b, "  Avg duration:  %s\n", s.AvgDuration.Round(time.Minute))

	for _, reg := range []model.Regime{model.RegimeBull, model.RegimeBear, model.RegimeNeutral} {
		if rs, ok := s.ByRegime[reg]; ok {
			fmt.Fprintf(&b, "  %-8s %3d trades, P&L %+.2f\n", reg, rs.Trades, rs.Profit)
		}
	}
	for reason, n := range s.ByExit {
		fmt.Fprintf(&b, "  exit %-16s %d\n", reason, n)
	}
	return b.String()
}
