package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNew_TagsService(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "tradebot", slog.LevelInfo)
	l.Info("starting", "instrument", "EUR_USD")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if rec["service"] != "tradebot" {
		t.Errorf("service = %v, want tradebot", rec["service"])
	}
	if rec["msg"] != "starting" {
		t.Errorf("msg = %v, want starting", rec["msg"])
	}
	if rec["instrument"] != "EUR_USD" {
		t.Errorf("instrument = %v, want EUR_USD", rec["instrument"])
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "tradebot", slog.LevelWarn)

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record emitted at warn level: %s", buf.String())
	}

	l.Warn("kept")
	if buf.Len() == 0 {
		t.Fatal("warn record missing at warn level")
	}
}

func TestInit_SetsDefault(t *testing.T) {
	l := Init("test-service", slog.LevelInfo)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	if slog.Default() != l {
		t.Error("Init did not install the default logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, c := range cases {
		if got := ParseLevel(c.in); got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
