// Package config loads the bot configuration from YAML with defaults
// and validation. Credentials are never stored in the file in
// production; environment variables override the corresponding fields.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"pptrader/internal/risk"
)

var validate = validator.New()

// Config is the full bot configuration tree.
type Config struct {
	Instrument    string        `yaml:"instrument" default:"EUR_USD" validate:"required"`
	Granularity   string        `yaml:"granularity" default:"M5" validate:"required"`
	CheckInterval time.Duration `yaml:"check_interval" default:"60s" validate:"gte=1s"`
	CandleCount   int           `yaml:"candle_count" default:"100" validate:"gte=30"`

	// UseLiveCandles reads signals off the still-forming candle instead
	// of the last closed one. Off by default: live reads repaint.
	UseLiveCandles bool `yaml:"use_live_candles"`

	Indicator IndicatorConfig `yaml:"indicator"`
	Regime    RegimeConfig    `yaml:"regime"`
	Risk      RiskConfig      `yaml:"risk"`
	Trailing  TrailingConfig  `yaml:"trailing"`
	Oanda     OandaConfig     `yaml:"oanda"`
	Marker    MarkerConfig    `yaml:"marker"`
	Journal   JournalConfig   `yaml:"journal"`
	News      NewsConfig      `yaml:"news"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Notify    NotifyConfig    `yaml:"notify"`

	LogLevel string `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`
}

// IndicatorConfig holds the Pivot Point SuperTrend parameters.
type IndicatorConfig struct {
	PivotPeriod int     `yaml:"pivot_period" default:"2" validate:"gte=1"`
	ATRFactor   float64 `yaml:"atr_factor" default:"3" validate:"gt=0"`
	ATRPeriod   int     `yaml:"atr_period" default:"10" validate:"gte=1"`
}

// RegimeConfig controls the coarse-timeframe market classification.
type RegimeConfig struct {
	Granularity string        `yaml:"granularity" default:"H3"`
	CacheTTL    time.Duration `yaml:"cache_ttl" default:"3m"`

	// AllowCounterTrend permits entries against the classified regime.
	// Off by default: counter-trend entries are refused, not resized.
	AllowCounterTrend bool `yaml:"allow_counter_trend"`
}

// RiskConfig holds sizing limits and the per-regime allocation table.
type RiskConfig struct {
	MaxUnits         int64      `yaml:"max_units" default:"500000" validate:"gte=1000"`
	SpreadBufferPips float64    `yaml:"spread_buffer_pips" default:"3" validate:"gte=0"`
	Table            risk.Table `yaml:"table"`
}

// TrailingConfig controls the stop-follow behavior.
type TrailingConfig struct {
	Disabled    bool    `yaml:"disabled"`
	MinMovePips float64 `yaml:"min_move_pips" default:"5" validate:"gte=0"`
}

// OandaConfig holds broker API access. APIKey and AccountID are
// normally injected via OANDA_API_KEY and OANDA_ACCOUNT_ID.
type OandaConfig struct {
	APIKey      string        `yaml:"api_key" validate:"required"`
	AccountID   string        `yaml:"account_id" validate:"required"`
	Environment string        `yaml:"environment" default:"practice" validate:"oneof=practice live"`
	Timeout     time.Duration `yaml:"timeout" default:"10s"`

	// StreamURL points at a WebSocket bridge of the v20 pricing stream.
	// Empty disables tick streaming; the decision loop polls candles
	// either way.
	StreamURL string `yaml:"stream_url"`
}

// MarkerConfig selects the dedup marker backend.
type MarkerConfig struct {
	Backend    string `yaml:"backend" default:"file" validate:"oneof=file sqlite redis"`
	Path       string `yaml:"path" default:"data/marker.json"`
	SQLitePath string `yaml:"sqlite_path" default:"data/markers.db"`
	Redis      struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}

// JournalConfig controls the trade journal.
type JournalConfig struct {
	Disabled   bool   `yaml:"disabled"`
	SQLitePath string `yaml:"sqlite_path" default:"data/journal.db"`
}

// NewsConfig controls suppression around scheduled events.
type NewsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	CalendarPath string        `yaml:"calendar_path" default:"data/calendar.json"`
	WindowBefore time.Duration `yaml:"window_before" default:"30m"`
	WindowAfter  time.Duration `yaml:"window_after" default:"30m"`

	// ClosePositions exits an open position when a window opens rather
	// than holding through the event.
	ClosePositions bool `yaml:"close_positions"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Disabled bool   `yaml:"disabled"`
	Addr     string `yaml:"addr" default:":9090"`
}

// NotifyConfig controls trade-event webhooks. Empty URL disables.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// Load reads the YAML file at path, applies defaults, overrides from
// the environment, and validates the result.
func Load(path string) (*Config, error) {
	var c Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if zero(c.Risk.Table) {
		c.Risk.Table = risk.DefaultTable()
	}

	applyEnv(&c)

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("OANDA_API_KEY"); v != "" {
		c.Oanda.APIKey = v
	}
	if v := os.Getenv("OANDA_ACCOUNT_ID"); v != "" {
		c.Oanda.AccountID = v
	}
	if v := os.Getenv("OANDA_ENV"); v != "" {
		c.Oanda.Environment = v
	}
	if v := os.Getenv("OANDA_STREAM_URL"); v != "" {
		c.Oanda.StreamURL = v
	}
	if v := os.Getenv("INSTRUMENT"); v != "" {
		c.Instrument = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Marker.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Marker.Redis.Password = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Notify.WebhookURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CheckInterval = d
		}
	}
	if v := os.Getenv("MAX_UNITS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Risk.MaxUnits = n
		}
	}
}

// zero reports whether the risk table was absent from the YAML.
func zero(t risk.Table) bool {
	return t.Bull.Long.RiskAmount == 0 && t.Bear.Short.RiskAmount == 0
}
