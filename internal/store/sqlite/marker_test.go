package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestMarkerStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "markers.db")

	s, err := NewMarkerStore(dbPath, "EUR_USD")
	if err != nil {
		t.Fatalf("NewMarkerStore: %v", err)
	}
	defer s.Close()

	if _, ok, err := s.Load(ctx); err != nil || ok {
		t.Fatalf("Load on empty store = ok=%v err=%v, want ok=false", ok, err)
	}

	ts := time.Date(2026, 4, 6, 10, 30, 0, 0, time.UTC)
	if err := s.Save(ctx, ts); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := s.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load = ok=%v err=%v", ok, err)
	}
	if !got.Equal(ts) {
		t.Errorf("marker = %v, want %v", got, ts)
	}

	// Save again overwrites rather than duplicating.
	ts2 := ts.Add(5 * time.Minute)
	if err := s.Save(ctx, ts2); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	got, _, _ = s.Load(ctx)
	if !got.Equal(ts2) {
		t.Errorf("marker after overwrite = %v, want %v", got, ts2)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := s.Load(ctx); ok {
		t.Fatal("marker still present after Clear")
	}
}

func TestMarkerStore_PerInstrument(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "markers.db")

	eur, err := NewMarkerStore(dbPath, "EUR_USD")
	if err != nil {
		t.Fatal(err)
	}
	defer eur.Close()

	gbp, err := NewMarkerStore(dbPath, "GBP_USD")
	if err != nil {
		t.Fatal(err)
	}
	defer gbp.Close()

	ts := time.Date(2026, 4, 6, 10, 30, 0, 0, time.UTC)
	if err := eur.Save(ctx, ts); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := gbp.Load(ctx); ok {
		t.Fatal("GBP store sees EUR marker")
	}
}
