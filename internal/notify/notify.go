// Package notify delivers trade events to external channels. Delivery
// is best effort: a failed webhook never fails the trade that
// triggered it.
package notify

import (
	"context"
	"fmt"
	"log"

	"pptrader/internal/model"
)

// Level is the severity of an event.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Event is one notification.
type Event struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Notifier delivers events to some channel.
type Notifier interface {
	Send(ctx context.Context, ev Event) error
}

// LogNotifier writes events to the process log. The default when no
// webhook is configured.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, ev Event) error {
	log.Printf("[notify] [%s] %s: %s", ev.Level, ev.Title, ev.Message)
	return nil
}

// TradeOpened formats an entry fill.
func TradeOpened(instrument string, side model.Side, units int64, price, sl, tp float64) Event {
	return Event{
		Level: LevelInfo,
		Title: fmt.Sprintf("Opened %s %s", side, instrument),
		Message: fmt.Sprintf("%d units @ %.5f, SL %.5f, TP %.5f",
			units, price, sl, tp),
	}
}

// TradeClosed formats a position close.
func TradeClosed(instrument string, side model.Side, price, realizedPL float64) Event {
	level := LevelInfo
	if realizedPL < 0 {
		level = LevelWarning
	}
	return Event{
		Level:   level,
		Title:   fmt.Sprintf("Closed %s %s", side, instrument),
		Message: fmt.Sprintf("filled @ %.5f, realized P&L %.2f", price, realizedPL),
	}
}

// TradeClosedExternally formats a close observed at the broker rather
// than ordered by the bot (stop hit, target hit or manual close). The
// fill and realized P&L happened broker-side and are not in the local
// position snapshot, so the event reports only what was released.
func TradeClosedExternally(instrument string, side model.Side, units int64) Event {
	return Event{
		Level:   LevelWarning,
		Title:   fmt.Sprintf("%s %s closed at broker", side, instrument),
		Message: fmt.Sprintf("%d units closed externally (stop, target or manual); position released", units),
	}
}

// EmergencyClosed formats a trailing-line breach close.
func EmergencyClosed(instrument string, side model.Side, confirmedClose, line float64) Event {
	return Event{
		Level: LevelCritical,
		Title: fmt.Sprintf("Emergency close %s %s", side, instrument),
		Message: fmt.Sprintf("confirmed close %.5f breached trailing line %.5f",
			confirmedClose, line),
	}
}

// ExecutionFailed formats a broker failure.
func ExecutionFailed(instrument, op string, err error) Event {
	return Event{
		Level:   LevelCritical,
		Title:   fmt.Sprintf("Execution failure on %s", instrument),
		Message: fmt.Sprintf("%s: %v", op, err),
	}
}
