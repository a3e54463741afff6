// Package file is the zero-dependency marker store: a small JSON state
// file next to the bot. Suits single-instance deployments where
// installing SQLite or Redis is not worth it.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type markerState struct {
	LastSignalCandleTime string `json:"last_signal_candle_time"`
}

// MarkerStore stores the marker in a JSON file, written atomically via
// a temp file rename so a crash mid-write never leaves a torn state.
type MarkerStore struct {
	path string
}

// NewMarkerStore returns a store backed by the given file path. The
// parent directory is created if missing.
func NewMarkerStore(path string) (*MarkerStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file marker mkdir: %w", err)
	}
	return &MarkerStore{path: path}, nil
}

// Load reads the marker from disk. A missing file means no marker.
func (s *MarkerStore) Load(ctx context.Context) (time.Time, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("file marker read: %w", err)
	}

	var st markerState
	if err := json.Unmarshal(data, &st); err != nil {
		return time.Time{}, false, fmt.Errorf("file marker parse: %w", err)
	}
	if st.LastSignalCandleTime == "" {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse(time.RFC3339, st.LastSignalCandleTime)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("file marker parse %q: %w", st.LastSignalCandleTime, err)
	}
	return ts.UTC(), true, nil
}

// Save writes the marker atomically.
func (s *MarkerStore) Save(ctx context.Context, ts time.Time) error {
	data, err := json.Marshal(markerState{LastSignalCandleTime: ts.UTC().Format(time.RFC3339)})
	if err != nil {
		return fmt.Errorf("file marker encode: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file marker write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("file marker rename: %w", err)
	}
	return nil
}

// Clear removes the state file.
func (s *MarkerStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file marker clear: %w", err)
	}
	return nil
}

// Close is a no-op; the store holds no open handle.
func (s *MarkerStore) Close() error { return nil }
