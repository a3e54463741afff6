package backtest

import (
	"context"
	"fmt"
	"log"
	"time"

	"pptrader/internal/model"
)

// Trade is one completed round trip in a simulation.
type Trade struct {
	ID         int
	Side       model.Side
	Units      int64
	EntryPrice float64
	EntryTime  time.Time
	StopLoss   float64
	TakeProfit float64
	ExitPrice  float64
	ExitTime   time.Time
	ExitReason string
	RealizedPL float64
	Regime     model.Regime
}

// Duration is the time the trade was open.
func (t *Trade) Duration() time.Duration { return t.ExitTime.Sub(t.EntryTime) }

// SimBroker fills orders against replayed candles. It implements
// model.OrderExecutor: market orders fill at the candle midpoint shifted
// by half the spread, taking the worse side the way a live fill would.
//
// Between decision cycles Advance checks the candle's high/low against
// the open position's stop and take-profit, so exits that would have
// triggered intrabar are not deferred to the next close. The stop is
// checked first; when both levels fall inside one candle the pessimistic
// outcome wins.
type SimBroker struct {
	instrument string
	spread     float64
	regimeFn   func() model.Regime

	now   time.Time
	price float64

	pos       *model.Position
	entryTime time.Time
	seq       int

	trades []Trade
}

// NewSimBroker creates a broker replaying at the given fixed spread.
// regimeFn stamps each opened trade with the regime active at entry; nil
// stamps NEUTRAL.
func NewSimBroker(instrument string, spread float64, regimeFn func() model.Regime) *SimBroker {
	if regimeFn == nil {
		regimeFn = func() model.Regime { return model.RegimeNeutral }
	}
	return &SimBroker{instrument: instrument, spread: spread, regimeFn: regimeFn}
}

// Advance moves the simulation to the given candle and settles any
// intrabar stop or take-profit hit before the next decision cycle runs.
func (b *SimBroker) Advance(c model.Candle) {
	b.now = c.Time
	b.price = c.Close
	if b.pos == nil {
		return
	}

	switch b.pos.Side {
	case model.SideLong:
		if c.Low <= b.pos.StopLoss {
			b.closeAt(b.pos.StopLoss, c.Time, "STOP_LOSS")
			return
		}
		if b.pos.TakeProfit > 0 && c.High >= b.pos.TakeProfit {
			b.closeAt(b.pos.TakeProfit, c.Time, "TAKE_PROFIT")
		}
	case model.SideShort:
		if c.High >= b.pos.StopLoss {
			b.closeAt(b.pos.StopLoss, c.Time, "STOP_LOSS")
			return
		}
		if b.pos.TakeProfit > 0 && c.Low <= b.pos.TakeProfit {
			b.closeAt(b.pos.TakeProfit, c.Time, "TAKE_PROFIT")
		}
	}
}

// Finalize closes any trade still open when the data runs out.
func (b *SimBroker) Finalize() {
	if b.pos != nil {
		b.closeAt(b.exitPrice(b.pos.Side), b.now, "BACKTEST_END")
	}
}

// Trades returns all completed trades in open order.
func (b *SimBroker) Trades() []Trade {
	cp := make([]Trade, len(b.trades))
	copy(cp, b.trades)
	return cp
}

// ── model.OrderExecutor ──

func (b *SimBroker) MarketOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	if b.pos != nil {
		return model.OrderResult{}, fmt.Errorf("simbroker: position already open")
	}
	if req.Units == 0 {
		return model.OrderResult{}, fmt.Errorf("simbroker: zero units")
	}

	side := model.SideLong
	units := req.Units
	fill := b.price + b.spread/2 // buy at ask
	if units < 0 {
		side = model.SideShort
		units = -units
		fill = b.price - b.spread/2 // sell at bid
	}

	b.seq++
	b.pos = &model.Position{
		Side:       side,
		Units:      units,
		EntryPrice: fill,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenedAt:   b.now,
		Regime:     b.regimeFn(),
		TradeID:    fmt.Sprintf("SIM-%d", b.seq),
	}
	b.entryTime = b.now

	log.Printf("[simbroker] filled %s %d @ %.5f SL %.5f TP %.5f",
		side, units, fill, req.StopLoss, req.TakeProfit)
	return model.OrderResult{TradeID: b.pos.TradeID, FillPrice: fill, FilledAt: b.now}, nil
}

func (b *SimBroker) ClosePosition(ctx context.Context, instrument string) (model.CloseResult, error) {
	if b.pos == nil {
		return model.CloseResult{}, fmt.Errorf("simbroker: no open position")
	}
	exit := b.exitPrice(b.pos.Side)
	pl := b.closeAt(exit, b.now, "SIGNAL_CLOSE")
	return model.CloseResult{FillPrice: exit, RealizedPL: pl, ClosedAt: b.now}, nil
}

func (b *SimBroker) UpdateStopLoss(ctx context.Context, instrument, tradeID string, price float64) error {
	if b.pos == nil || b.pos.TradeID != tradeID {
		return fmt.Errorf("simbroker: no open trade %s", tradeID)
	}
	b.pos.StopLoss = price
	return nil
}

func (b *SimBroker) OpenPosition(ctx context.Context, instrument string) (*model.Position, error) {
	if b.pos == nil {
		return nil, nil
	}
	cp := *b.pos
	return &cp, nil
}

// ── internals ──

// exitPrice is the fill for closing at the current candle: longs sell at
// the bid, shorts buy back at the ask.
func (b *SimBroker) exitPrice(side model.Side) float64 {
	if side == model.SideLong {
		return b.price - b.spread/2
	}
	return b.price + b.spread/2
}

func (b *SimBroker) closeAt(exit float64, at time.Time, reason string) float64 {
	pos := b.pos
	pl := (exit - pos.EntryPrice) * float64(pos.Units)
	if pos.Side == model.SideShort {
		pl = -pl
	}

	b.trades = append(b.trades, Trade{
		ID:         b.seq,
		Side:       pos.Side,
		Units:      pos.Units,
		EntryPrice: pos.EntryPrice,
		EntryTime:  b.entryTime,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
		ExitPrice:  exit,
		ExitTime:   at,
		ExitReason: reason,
		RealizedPL: pl,
		Regime:     pos.Regime,
	})
	b.pos = nil

	log.Printf("[simbroker] closed %s @ %.5f P&L %.2f (%s)", pos.Side, exit, pl, reason)
	return pl
}
