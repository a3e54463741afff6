// Package journal persists executed trades to SQLite for analysis and
// audit. Every confirmed open and close gets a row; decisions that did
// not reach the broker do not.
package journal

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pptrader/internal/model"
)

// Journal is a SQLite-backed trade log.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Entry is one executed trade event.
type Entry struct {
	ID         int64
	Instrument string
	Action     string // OPEN_LONG, OPEN_SHORT, CLOSE, EMERGENCY_CLOSE
	Units      int64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	RealizedPL float64 // closes only
	Regime     string
	Reason     string
	CandleTime time.Time
	ExecutedAt time.Time
}

// New opens (or creates) the journal database at dbPath.
func New(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument  TEXT NOT NULL,
		action      TEXT NOT NULL,
		units       INTEGER NOT NULL,
		price       REAL NOT NULL,
		stop_loss   REAL,
		take_profit REAL,
		realized_pl REAL,
		regime      TEXT,
		reason      TEXT,
		candle_ts   DATETIME,
		executed_at DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_instrument ON trades(instrument);
	CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// Record persists one trade event.
func (j *Journal) Record(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (instrument, action, units, price, stop_loss, take_profit, realized_pl, regime, reason, candle_ts, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Instrument,
		e.Action,
		e.Units,
		e.Price,
		e.StopLoss,
		e.TakeProfit,
		e.RealizedPL,
		e.Regime,
		e.Reason,
		e.CandleTime.UTC().Format(time.RFC3339),
		e.ExecutedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// RecordDecision is a convenience wrapper mapping a decision plus its
// fill onto an Entry.
func (j *Journal) RecordDecision(instrument string, d model.Decision, action model.Action, fillPrice, realizedPL float64, regime model.Regime, candleTime time.Time) error {
	return j.Record(Entry{
		Instrument: instrument,
		Action:     string(action),
		Units:      d.Units,
		Price:      fillPrice,
		StopLoss:   d.StopLoss,
		TakeProfit: d.TakeProfit,
		RealizedPL: realizedPL,
		Regime:     string(regime),
		Reason:     d.Reason,
		CandleTime: candleTime,
		ExecutedAt: time.Now(),
	})
}

// Recent returns the last N trades, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, instrument, action, units, price, stop_loss, take_profit, realized_pl, regime, reason, candle_ts, executed_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var candleTS, executedAt string
		if err := rows.Scan(&e.ID, &e.Instrument, &e.Action, &e.Units, &e.Price,
			&e.StopLoss, &e.TakeProfit, &e.RealizedPL, &e.Regime, &e.Reason,
			&candleTS, &executedAt); err != nil {
			return nil, err
		}
		e.CandleTime, _ = time.Parse(time.RFC3339, candleTS)
		e.ExecutedAt, _ = time.Parse(time.RFC3339, executedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExportCSV writes all trades, oldest first, to w.
func (j *Journal) ExportCSV(w io.Writer) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, instrument, action, units, price, stop_loss, take_profit, realized_pl, regime, reason, candle_ts, executed_at
		 FROM trades ORDER BY id ASC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "instrument", "action", "units", "price", "stop_loss", "take_profit", "realized_pl", "regime", "reason", "candle_time", "executed_at"}); err != nil {
		return err
	}

	for rows.Next() {
		var e Entry
		var candleTS, executedAt string
		if err := rows.Scan(&e.ID, &e.Instrument, &e.Action, &e.Units, &e.Price,
			&e.StopLoss, &e.TakeProfit, &e.RealizedPL, &e.Regime, &e.Reason,
			&candleTS, &executedAt); err != nil {
			return err
		}
		rec := []string{
			strconv.FormatInt(e.ID, 10),
			e.Instrument,
			e.Action,
			strconv.FormatInt(e.Units, 10),
			fmt.Sprintf("%.5f", e.Price),
			fmt.Sprintf("%.5f", e.StopLoss),
			fmt.Sprintf("%.5f", e.TakeProfit),
			fmt.Sprintf("%.2f", e.RealizedPL),
			e.Regime,
			e.Reason,
			candleTS,
			executedAt,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error { return j.db.Close() }
