// cmd/tradebot runs the live candle-by-candle decision loop against the
// OANDA v20 API.
//
// Usage:
//
//	go run ./cmd/tradebot --config=config.yaml
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"pptrader/internal/bot"
	"pptrader/internal/config"
	"pptrader/internal/decision"
	"pptrader/internal/indicator"
	"pptrader/internal/journal"
	"pptrader/internal/logger"
	"pptrader/internal/metrics"
	"pptrader/internal/model"
	"pptrader/internal/news"
	"pptrader/internal/notify"
	"pptrader/internal/regime"
	"pptrader/internal/risk"
	"pptrader/internal/signal"
	filestore "pptrader/internal/store/file"
	redisstore "pptrader/internal/store/redis"
	sqlitestore "pptrader/internal/store/sqlite"
	"pptrader/pkg/oanda"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[tradebot] config: %v", err)
	}
	logger.Init("tradebot", logger.ParseLevel(cfg.LogLevel))
	slog.Info("starting", "instrument", cfg.Instrument, "granularity", cfg.Granularity,
		"env", cfg.Oanda.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received")
		cancel()
	}()

	var m *metrics.Metrics
	health := metrics.NewHealthStatus()
	if !cfg.Metrics.Disabled {
		m = metrics.New()
		srv := metrics.NewServer(cfg.Metrics.Addr, health)
		srv.Start()
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			srv.Stop(shutCtx)
		}()
	}

	// Broker client serves both market data and execution.
	brokerCfg := oanda.Config{
		APIKey:      cfg.Oanda.APIKey,
		AccountID:   cfg.Oanda.AccountID,
		Environment: cfg.Oanda.Environment,
		Timeout:     cfg.Oanda.Timeout,
	}
	if m != nil {
		brokerCfg.Observe = func(op string, d time.Duration) {
			m.BrokerReqDur.WithLabelValues(op).Observe(d.Seconds())
		}
	}
	broker := oanda.New(brokerCfg)

	marker, err := newMarkerStore(cfg)
	if err != nil {
		log.Fatalf("[tradebot] marker store: %v", err)
	}
	defer marker.Close()

	var jrnl *journal.Journal
	if !cfg.Journal.Disabled {
		jrnl, err = journal.New(cfg.Journal.SQLitePath)
		if err != nil {
			log.Fatalf("[tradebot] journal: %v", err)
		}
		defer jrnl.Close()
	}

	var gate model.SuppressionGate = news.Disabled{}
	if cfg.News.Enabled {
		g := news.NewGate(cfg.Instrument, cfg.News.WindowBefore, cfg.News.WindowAfter)
		if err := g.LoadCalendar(cfg.News.CalendarPath); err != nil {
			log.Fatalf("[tradebot] news calendar: %v", err)
		}
		gate = g
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL)
	}

	params := indicator.Params{
		PivotPeriod: cfg.Indicator.PivotPeriod,
		ATRFactor:   cfg.Indicator.ATRFactor,
		ATRPeriod:   cfg.Indicator.ATRPeriod,
	}
	interp := &signal.Interpreter{ClosedCandlesOnly: !cfg.UseLiveCandles}
	sizer := risk.NewSizer(cfg.Risk.MaxUnits, cfg.Risk.SpreadBufferPips)

	minMove := cfg.Trailing.MinMovePips * 0.0001
	if cfg.Trailing.Disabled {
		// An unreachable threshold keeps emergency closes active while
		// suppressing stop moves.
		minMove = 1e9
	}

	b, err := bot.New(bot.Options{
		Instrument: cfg.Instrument,
		Interval:   cfg.CheckInterval,
		Market:     broker,
		Signals:    signal.NewReader(broker, cfg.Instrument, cfg.Granularity, cfg.CandleCount, params, interp),
		Executor:   broker,
		Marker:     marker,
		Gate:       gate,
		Regime:     regime.New(broker, cfg.Instrument, cfg.Regime.Granularity, params, cfg.Regime.CacheTTL),
		Engine: decision.New(
			decision.Policy{DisableOppositeTrade: !cfg.Regime.AllowCounterTrend},
			cfg.Risk.Table,
			sizer,
		),
		Trailing:    &decision.TrailingController{Sizer: sizer, MinMove: minMove},
		Journal:     jrnl,
		Notifier:    notifier,
		Metrics:     m,
		Health:      health,
		CloseOnNews: cfg.News.ClosePositions,
	})
	if err != nil {
		log.Fatalf("[tradebot] init: %v", err)
	}

	if cfg.Oanda.StreamURL != "" {
		go runStream(ctx, cfg)
	}

	if err := b.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("[tradebot] fatal: %v", err)
	}
	slog.Info("stopped")
}

// runStream consumes the tick bridge for spread visibility. The decision
// loop does not depend on it.
func runStream(ctx context.Context, cfg *config.Config) {
	ps := oanda.NewPriceStream(cfg.Oanda.StreamURL, cfg.Oanda.APIKey, cfg.Instrument)
	go func() {
		if err := ps.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[tradebot] price stream stopped: %v", err)
		}
	}()

	var n int
	for tick := range ps.Ticks {
		n++
		if n%100 == 1 {
			log.Printf("[stream] %s bid=%.5f ask=%.5f spread=%.5f",
				tick.Instrument, tick.Bid, tick.Ask, tick.Ask-tick.Bid)
		}
	}
}

func newMarkerStore(cfg *config.Config) (model.MarkerStore, error) {
	switch cfg.Marker.Backend {
	case "sqlite":
		return sqlitestore.NewMarkerStore(cfg.Marker.SQLitePath, cfg.Instrument)
	case "redis":
		return redisstore.NewMarkerStore(redisstore.MarkerConfig{
			Addr:     cfg.Marker.Redis.Addr,
			Password: cfg.Marker.Redis.Password,
			DB:       cfg.Marker.Redis.DB,
		}, cfg.Instrument)
	default:
		return filestore.NewMarkerStore(cfg.Marker.Path)
	}
}
