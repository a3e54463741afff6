package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// MarkerStore persists the last-acted signal candle time in SQLite.
// One row per instrument; the row's absence means no marker.
type MarkerStore struct {
	db         *sql.DB
	instrument string
}

// NewMarkerStore opens (or creates) the marker database at dbPath.
func NewMarkerStore(dbPath, instrument string) (*MarkerStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS signal_markers (
			instrument TEXT PRIMARY KEY,
			candle_ts  INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] marker store at %s", dbPath)
	return &MarkerStore{db: db, instrument: instrument}, nil
}

// Load returns the stored marker for the instrument.
func (s *MarkerStore) Load(ctx context.Context) (time.Time, bool, error) {
	var unix int64
	err := s.db.QueryRowContext(ctx,
		`SELECT candle_ts FROM signal_markers WHERE instrument = ?`, s.instrument,
	).Scan(&unix)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlite load marker: %w", err)
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

// Save upserts the marker.
func (s *MarkerStore) Save(ctx context.Context, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signal_markers (instrument, candle_ts, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(instrument) DO UPDATE SET
			candle_ts = excluded.candle_ts,
			updated_at = excluded.updated_at
	`, s.instrument, ts.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite save marker: %w", err)
	}
	return nil
}

// Clear removes the marker.
func (s *MarkerStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM signal_markers WHERE instrument = ?`, s.instrument)
	if err != nil {
		return fmt.Errorf("sqlite clear marker: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *MarkerStore) Close() error { return s.db.Close() }
