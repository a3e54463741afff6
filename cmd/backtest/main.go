// cmd/backtest fetches historical candles and replays them through the
// live decision pipeline with simulated fills.
//
// Usage:
//
//	go run ./cmd/backtest --config=config.yaml --count=2000
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"pptrader/internal/backtest"
	"pptrader/internal/config"
	"pptrader/internal/decision"
	"pptrader/internal/indicator"
	"pptrader/internal/logger"
	"pptrader/pkg/oanda"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config")
	count := flag.Int("count", 2000, "Trading candles to replay")
	marketCount := flag.Int("market-count", 500, "Coarse regime candles to fetch")
	spread := flag.Float64("spread", 0.0002, "Simulated bid/ask spread")
	balance := flag.Float64("balance", 10000, "Initial balance")
	csvPath := flag.String("csv", "", "Write completed trades to this CSV file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[backtest] config: %v", err)
	}
	logger.Init("backtest", slog.LevelInfo)

	broker := oanda.New(oanda.Config{
		APIKey:      cfg.Oanda.APIKey,
		AccountID:   cfg.Oanda.AccountID,
		Environment: cfg.Oanda.Environment,
		Timeout:     cfg.Oanda.Timeout,
	})

	ctx := context.Background()
	log.Printf("[backtest] fetching %d %s candles for %s", *count, cfg.Granularity, cfg.Instrument)
	trading, err := broker.Candles(ctx, cfg.Instrument, cfg.Granularity, *count)
	if err != nil {
		log.Fatalf("[backtest] fetch trading candles: %v", err)
	}
	market, err := broker.Candles(ctx, cfg.Instrument, cfg.Regime.Granularity, *marketCount)
	if err != nil {
		log.Fatalf("[backtest] fetch %s candles: %v", cfg.Regime.Granularity, err)
	}

	engine, err := backtest.New(backtest.Config{
		Instrument:        cfg.Instrument,
		MarketGranularity: cfg.Regime.Granularity,
		Params: indicator.Params{
			PivotPeriod: cfg.Indicator.PivotPeriod,
			ATRFactor:   cfg.Indicator.ATRFactor,
			ATRPeriod:   cfg.Indicator.ATRPeriod,
		},
		Policy:           decision.Policy{DisableOppositeTrade: !cfg.Regime.AllowCounterTrend},
		Table:            cfg.Risk.Table,
		MaxUnits:         cfg.Risk.MaxUnits,
		SpreadBufferPips: cfg.Risk.SpreadBufferPips,
		TrailingMinMove:  cfg.Trailing.MinMovePips * 0.0001,
		Spread:           *spread,
		InitialBalance:   *balance,
		UseLiveCandles:   cfg.UseLiveCandles,
	})
	if err != nil {
		log.Fatalf("[backtest] init: %v", err)
	}

	res, err := engine.Run(ctx, trading, market)
	if err != nil {
		log.Fatalf("[backtest] run: %v", err)
	}

	fmt.Println()
	fmt.Print(res.String())

	if *csvPath != "" {
		if err := writeTradesCSV(*csvPath, res); err != nil {
			log.Fatalf("[backtest] csv export: %v", err)
		}
		log.Printf("[backtest] wrote %d trades to %s", len(res.Trades), *csvPath)
	}
}

func writeTradesCSV(path string, res *backtest.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"id", "side", "units", "entry_time", "entry_price",
		"stop_loss", "take_profit", "exit_time", "exit_price",
		"exit_reason", "realized_pl", "regime",
	}); err != nil {
		return err
	}
	for i := range res.Trades {
		t := &res.Trades[i]
		rec := []string{
			strconv.Itoa(t.ID),
			string(t.Side),
			strconv.FormatInt(t.Units, 10),
			t.EntryTime.UTC().Format("2006-01-02T15:04:05Z"),
			strconv.FormatFloat(t.EntryPrice, 'f', 5, 64),
			strconv.FormatFloat(t.StopLoss, 'f', 5, 64),
			strconv.FormatFloat(t.TakeProfit, 'f', 5, 64),
			t.ExitTime.UTC().Format("2006-01-02T15:04:05Z"),
			strconv.FormatFloat(t.ExitPrice, 'f', 5, 64),
			t.ExitReason,
			strconv.FormatFloat(t.RealizedPL, 'f', 2, 64),
			string(t.Regime),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
