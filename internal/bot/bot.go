// Package bot runs the live decision loop: every interval it reads the
// market, computes the indicator, interprets the signal, asks the
// decision engine for an action and executes it against the broker.
//
// Ordering inside a cycle is load-bearing. The dedup marker is saved
// only after the broker confirmed an execution, so a failed order
// leaves the marker untouched and the same signal retries next cycle.
// Any close clears the marker so the next genuine signal re-arms.
package bot

import (
	"context"
	"fmt"
	"log"
	"time"

	"pptrader/internal/decision"
	"pptrader/internal/journal"
	"pptrader/internal/markethours"
	"pptrader/internal/metrics"
	"pptrader/internal/model"
	"pptrader/internal/news"
	"pptrader/internal/notify"
)

// Options wires the bot's collaborators.
type Options struct {
	Instrument string
	Interval   time.Duration

	Market   model.MarketData
	Signals  model.SignalSource
	Executor model.OrderExecutor
	Marker   model.MarkerStore
	Gate     model.SuppressionGate
	Regime   model.RegimeSource

	Engine   *decision.Engine
	Trailing *decision.TrailingController

	Journal  *journal.Journal // optional
	Notifier notify.Notifier  // optional, defaults to log
	Metrics  *metrics.Metrics // optional
	Health   *metrics.HealthStatus

	// CloseOnNews closes an open position as soon as a suppression
	// window begins, instead of riding the event with stops in place.
	CloseOnNews bool

	// SkipMarketHours disables the weekend gate (backtests, simulators).
	SkipMarketHours bool
}

// Bot is the live trading loop.
type Bot struct {
	opt Options

	position *model.Position
}

// New validates the options and returns a Bot.
func New(opt Options) (*Bot, error) {
	switch {
	case opt.Market == nil, opt.Signals == nil, opt.Executor == nil,
		opt.Marker == nil, opt.Engine == nil, opt.Trailing == nil,
		opt.Regime == nil:
		return nil, fmt.Errorf("bot: missing collaborator")
	case opt.Instrument == "":
		return nil, fmt.Errorf("bot: instrument required")
	}
	if opt.Gate == nil {
		opt.Gate = news.Disabled{}
	}
	if opt.Notifier == nil {
		opt.Notifier = notify.LogNotifier{}
	}
	return &Bot{opt: opt}, nil
}

// Run recovers state and then cycles until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.recover(ctx); err != nil {
		return fmt.Errorf("bot: startup recovery: %w", err)
	}

	ticker := time.NewTicker(b.opt.Interval)
	defer ticker.Stop()

	// First cycle immediately rather than one interval in.
	b.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.runCycle(ctx)
		}
	}
}

func (b *Bot) runCycle(ctx context.Context) {
	start := time.Now()
	if err := b.Cycle(ctx); err != nil {
		log.Printf("[bot] cycle error: %v", err)
	}
	if m := b.opt.Metrics; m != nil {
		m.CyclesTotal.Inc()
		m.CycleDur.Observe(time.Since(start).Seconds())
	}
	if b.opt.Health != nil {
		b.opt.Health.MarkCycle()
	}
}

// recover adopts any position already open at the broker, so a restart
// mid-trade keeps managing it instead of trading blind next to it.
func (b *Bot) recover(ctx context.Context) error {
	pos, err := b.opt.Executor.OpenPosition(ctx, b.opt.Instrument)
	if err != nil {
		return err
	}
	b.position = pos
	if pos != nil {
		log.Printf("[bot] recovered open %s position: %d units @ %.5f",
			pos.Side, pos.Units, pos.EntryPrice)
	}
	return nil
}

// Cycle runs one full decision pass. Exported so a simulator can drive
// the bot candle by candle.
func (b *Bot) Cycle(ctx context.Context) error {
	now := time.Now()
	if !b.opt.SkipMarketHours && !markethours.IsMarketOpen(now) {
		log.Printf("[bot] %s", markethours.StatusString(now))
		return nil
	}

	// Regime first: its failure degrades to NEUTRAL, never aborts.
	regime, err := b.opt.Regime.Regime(ctx)
	if err != nil {
		log.Printf("[bot] regime degraded: %v", err)
	}
	if m := b.opt.Metrics; m != nil {
		m.RegimeState.Set(regimeGaugeValue(regime))
	}

	sig, err := b.opt.Signals.Read(ctx)
	if err != nil {
		b.setBrokerOK(false)
		return fmt.Errorf("read signal: %w", err)
	}
	b.setBrokerOK(true)
	if m := b.opt.Metrics; m != nil {
		m.SignalsTotal.WithLabelValues(string(sig.Kind)).Inc()
	}

	if err := b.syncPosition(ctx); err != nil {
		return fmt.Errorf("sync position: %w", err)
	}

	marker, markerSet, err := b.opt.Marker.Load(ctx)
	b.setMarkerOK(err == nil)
	if err != nil {
		return fmt.Errorf("load marker: %w", err)
	}

	spread, err := b.opt.Market.Spread(ctx, b.opt.Instrument)
	if err != nil {
		log.Printf("[bot] spread unavailable, using zero adjustment: %v", err)
		spread = 0
	}

	suppressed := b.opt.Gate.Suppressed(now)
	if suppressed {
		if m := b.opt.Metrics; m != nil {
			m.SuppressedTotal.Inc()
		}
		if b.opt.CloseOnNews && b.position != nil {
			log.Printf("[bot] closing %s position ahead of scheduled event", b.position.Side)
			d := model.Decision{Action: model.ActionClose, Reason: "scheduled high-impact event window"}
			if err := b.closePosition(ctx, d, sig, "NEWS"); err != nil {
				return err
			}
		}
	}

	d := b.opt.Engine.Evaluate(decision.Input{
		Signal:     sig,
		Pos:        b.position,
		Regime:     regime,
		Marker:     marker,
		MarkerSet:  markerSet,
		Suppressed: suppressed,
		Spread:     spread,
	})
	if m := b.opt.Metrics; m != nil {
		m.ActionsTotal.WithLabelValues(string(d.Action)).Inc()
	}

	if !d.IsHold() {
		log.Printf("[bot] %s: %s", d.Action, d.Reason)
		if err := b.execute(ctx, d, sig, regime); err != nil {
			return err
		}
		return nil
	}

	// No trade this cycle; manage the open position, if any.
	return b.manageStops(ctx, sig, regime, spread)
}

// syncPosition reconciles local state with the broker. A position that
// vanished broker-side (stop hit, manual close) clears the marker so
// the next signal can trade.
func (b *Bot) syncPosition(ctx context.Context) error {
	broker, err := b.opt.Executor.OpenPosition(ctx, b.opt.Instrument)
	if err != nil {
		return err
	}

	switch {
	case b.position != nil && broker == nil:
		log.Printf("[bot] %s position closed externally (stop, target or manual)", b.position.Side)
		b.notify(ctx, notify.TradeClosedExternally(b.opt.Instrument, b.position.Side, b.position.Units))
		b.position = nil
		if err := b.opt.Marker.Clear(ctx); err != nil {
			return fmt.Errorf("clear marker after external close: %w", err)
		}
	case b.position == nil && broker != nil:
		log.Printf("[bot] adopting externally opened %s position", broker.Side)
		b.position = broker
	case b.position != nil && broker != nil:
		// Keep locally tracked stop and regime; broker units govern.
		b.position.Units = broker.Units
	}

	if m := b.opt.Metrics; m != nil {
		m.PositionOpen.Set(positionGaugeValue(b.position))
	}
	return nil
}

func (b *Bot) execute(ctx context.Context, d model.Decision, sig model.SignalInfo, regime model.Regime) error {
	switch d.Action {
	case model.ActionOpenLong, model.ActionOpenShort:
		return b.openPosition(ctx, d, d.Action, sig, regime)

	case model.ActionClose:
		if err := b.closePosition(ctx, d, sig, "CLOSE"); err != nil {
			return err
		}
		if d.Follow == "" {
			return nil
		}
		return b.openPosition(ctx, d, d.Follow, sig, regime)
	}
	return nil
}

func (b *Bot) openPosition(ctx context.Context, d model.Decision, action model.Action, sig model.SignalInfo, regime model.Regime) error {
	side := model.SideLong
	units := d.Units
	if action == model.ActionOpenShort {
		side = model.SideShort
		units = -units
	}

	res, err := b.opt.Executor.MarketOrder(ctx, model.OrderRequest{
		Instrument: b.opt.Instrument,
		Units:      units,
		StopLoss:   d.StopLoss,
		TakeProfit: d.TakeProfit,
	})
	if err != nil {
		b.execFailed(ctx, "market_order", err)
		return fmt.Errorf("market order: %w", err)
	}

	b.position = &model.Position{
		Side:       side,
		Units:      d.Units,
		EntryPrice: res.FillPrice,
		StopLoss:   d.StopLoss,
		TakeProfit: d.TakeProfit,
		OpenedAt:   res.FilledAt,
		Regime:     regime,
		TradeID:    res.TradeID,
	}

	// Confirmed execution pins the signal candle.
	if err := b.opt.Marker.Save(ctx, sig.CandleTime); err != nil {
		log.Printf("[bot] WARNING: marker save failed, duplicate protection degraded: %v", err)
	}

	b.journalTrade(b.opt.Instrument, d, action, res.FillPrice, 0, regime, sig.CandleTime)
	b.notify(ctx, notify.TradeOpened(b.opt.Instrument, side, d.Units, res.FillPrice, d.StopLoss, d.TakeProfit))
	log.Printf("[bot] opened %s: %d units @ %.5f, SL %.5f, TP %.5f",
		side, d.Units, res.FillPrice, d.StopLoss, d.TakeProfit)
	return nil
}

func (b *Bot) closePosition(ctx context.Context, d model.Decision, sig model.SignalInfo, kind string) error {
	side := b.position.Side
	entryRegime := b.position.Regime
	res, err := b.opt.Executor.ClosePosition(ctx, b.opt.Instrument)
	if err != nil {
		b.execFailed(ctx, "close_position", err)
		return fmt.Errorf("close position: %w", err)
	}
	b.position = nil

	if err := b.opt.Marker.Clear(ctx); err != nil {
		log.Printf("[bot] WARNING: marker clear failed: %v", err)
	}

	b.journalTrade(b.opt.Instrument, model.Decision{Reason: d.Reason}, model.ActionClose,
		res.FillPrice, res.RealizedPL, entryRegime, sig.CandleTime)
	b.notify(ctx, notify.TradeClosed(b.opt.Instrument, side, res.FillPrice, res.RealizedPL))
	if m := b.opt.Metrics; m != nil {
		m.RealizedPL.Add(res.RealizedPL)
	}
	log.Printf("[bot] closed %s (%s) @ %.5f, P&L %.2f", side, kind, res.FillPrice, res.RealizedPL)
	return nil
}

// manageStops runs the trailing controller on HOLD cycles.
func (b *Bot) manageStops(ctx context.Context, sig model.SignalInfo, regime model.Regime, spread float64) error {
	if b.position == nil {
		return nil
	}

	upd := b.opt.Trailing.Check(b.position, sig, spread)
	switch upd.Action {
	case decision.StopMove:
		if err := b.opt.Executor.UpdateStopLoss(ctx, b.opt.Instrument, b.position.TradeID, upd.NewStop); err != nil {
			b.execFailed(ctx, "update_stop", err)
			return fmt.Errorf("update stop: %w", err)
		}
		log.Printf("[bot] trailed %s stop %.5f -> %.5f", b.position.Side, b.position.StopLoss, upd.NewStop)
		b.position.StopLoss = upd.NewStop
		if m := b.opt.Metrics; m != nil {
			m.StopMovesTotal.Inc()
		}

	case decision.StopEmergencyClose:
		side := b.position.Side
		line := sig.TrailingUp
		if side == model.SideShort {
			line = sig.TrailingDown
		}
		log.Printf("[bot] EMERGENCY: %s", upd.Reason)
		res, err := b.opt.Executor.ClosePosition(ctx, b.opt.Instrument)
		if err != nil {
			b.execFailed(ctx, "emergency_close", err)
			return fmt.Errorf("emergency close: %w", err)
		}
		b.position = nil
		if err := b.opt.Marker.Clear(ctx); err != nil {
			log.Printf("[bot] WARNING: marker clear failed: %v", err)
		}
		b.journalTrade(b.opt.Instrument, model.Decision{Reason: upd.Reason}, "EMERGENCY_CLOSE",
			res.FillPrice, res.RealizedPL, regime, sig.CandleTime)
		b.notify(ctx, notify.EmergencyClosed(b.opt.Instrument, side, sig.ConfirmedClose, line))
		if m := b.opt.Metrics; m != nil {
			m.EmergencyCloses.Inc()
			m.RealizedPL.Add(res.RealizedPL)
		}
	}
	return nil
}

// ── helpers ──

func (b *Bot) journalTrade(instrument string, d model.Decision, action model.Action, fill, pl float64, regime model.Regime, candleTime time.Time) {
	if b.opt.Journal == nil {
		return
	}
	if err := b.opt.Journal.RecordDecision(instrument, d, action, fill, pl, regime, candleTime); err != nil {
		log.Printf("[bot] journal write failed: %v", err)
	}
}

func (b *Bot) notify(ctx context.Context, ev notify.Event) {
	if err := b.opt.Notifier.Send(ctx, ev); err != nil {
		log.Printf("[bot] notify failed: %v", err)
	}
}

func (b *Bot) execFailed(ctx context.Context, op string, err error) {
	if m := b.opt.Metrics; m != nil {
		m.ExecFailures.WithLabelValues(op).Inc()
	}
	b.notify(ctx, notify.ExecutionFailed(b.opt.Instrument, op, err))
}

func (b *Bot) setBrokerOK(ok bool) {
	if b.opt.Health != nil {
		b.opt.Health.SetBrokerOK(ok)
	}
}

func (b *Bot) setMarkerOK(ok bool) {
	if b.opt.Health != nil {
		b.opt.Health.SetMarkerStoreOK(ok)
	}
}

func regimeGaugeValue(r model.Regime) float64 {
	switch r {
	case model.RegimeBull:
		return 1
	case model.RegimeBear:
		return -1
	default:
		return 0
	}
}

func positionGaugeValue(p *model.Position) float64 {
	switch {
	case p == nil:
		return 0
	case p.Side == model.SideLong:
		return 1
	default:
		return -1
	}
}

