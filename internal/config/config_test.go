package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimal = `
oanda:
  api_key: test-key
  account_id: "101-004-1234567-001"
`

func TestLoad_DefaultsApplied(t *testing.T) {
	c, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Instrument != "EUR_USD" {
		t.Errorf("instrument = %q, want EUR_USD", c.Instrument)
	}
	if c.CheckInterval != time.Minute {
		t.Errorf("check_interval = %v, want 1m", c.CheckInterval)
	}
	if c.Indicator.PivotPeriod != 2 || c.Indicator.ATRFactor != 3 || c.Indicator.ATRPeriod != 10 {
		t.Errorf("indicator defaults = %+v", c.Indicator)
	}
	if c.Regime.Granularity != "H3" || c.Regime.CacheTTL != 3*time.Minute {
		t.Errorf("regime defaults = %+v", c.Regime)
	}
	if c.Risk.Table.Bull.Long.RiskAmount != 300 {
		t.Errorf("risk table default missing: %+v", c.Risk.Table)
	}
	if c.Marker.Backend != "file" {
		t.Errorf("marker backend = %q, want file", c.Marker.Backend)
	}
	if c.UseLiveCandles {
		t.Error("use_live_candles should default off")
	}
	if c.Regime.AllowCounterTrend {
		t.Error("allow_counter_trend should default off")
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimal+`
instrument: GBP_USD
check_interval: 30s
indicator:
  pivot_period: 4
risk:
  table:
    bull:
      long: {risk_amount: 500, reward_ratio: 2.0}
      short: {risk_amount: 50, reward_ratio: 0.5}
    bear:
      long: {risk_amount: 50, reward_ratio: 0.5}
      short: {risk_amount: 500, reward_ratio: 2.0}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Instrument != "GBP_USD" {
		t.Errorf("instrument = %q", c.Instrument)
	}
	if c.CheckInterval != 30*time.Second {
		t.Errorf("check_interval = %v", c.CheckInterval)
	}
	if c.Indicator.PivotPeriod != 4 {
		t.Errorf("pivot_period = %d", c.Indicator.PivotPeriod)
	}
	// Untouched sibling still gets its default.
	if c.Indicator.ATRPeriod != 10 {
		t.Errorf("atr_period = %d, want default 10", c.Indicator.ATRPeriod)
	}
	if c.Risk.Table.Bull.Long.RiskAmount != 500 {
		t.Errorf("risk table override lost: %+v", c.Risk.Table.Bull)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("OANDA_API_KEY", "env-key")
	t.Setenv("INSTRUMENT", "USD_JPY")

	c, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Oanda.APIKey != "env-key" {
		t.Errorf("api key = %q, want env override", c.Oanda.APIKey)
	}
	if c.Instrument != "USD_JPY" {
		t.Errorf("instrument = %q, want env override", c.Instrument)
	}
}

func TestLoad_MissingCredentialsRejected(t *testing.T) {
	t.Setenv("OANDA_API_KEY", "")
	t.Setenv("OANDA_ACCOUNT_ID", "")
	_, err := Load(writeConfig(t, "instrument: EUR_USD\n"))
	if err == nil {
		t.Fatal("expected validation error without credentials")
	}
	if !strings.Contains(err.Error(), "validate config") {
		t.Errorf("err = %v, want validation failure", err)
	}
}

func TestLoad_BadEnumRejected(t *testing.T) {
	_, err := Load(writeConfig(t, minimal+`
marker:
  backend: memcached
`))
	if err == nil {
		t.Fatal("expected validation error for unknown marker backend")
	}
}
