// Package metrics exposes Prometheus metrics and a health endpoint for
// the trading loop.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	CyclesTotal     prometheus.Counter
	CycleDur        prometheus.Histogram
	SignalsTotal    *prometheus.CounterVec // labels: kind
	ActionsTotal    *prometheus.CounterVec // labels: action
	ExecFailures    *prometheus.CounterVec // labels: op
	BrokerReqDur    *prometheus.HistogramVec
	StopMovesTotal  prometheus.Counter
	EmergencyCloses prometheus.Counter
	SuppressedTotal prometheus.Counter

	RegimeState  prometheus.Gauge // -1=bear, 0=neutral, 1=bull
	PositionOpen prometheus.Gauge // 0=flat, 1=long, -1=short
	RealizedPL   prometheus.Gauge // cumulative net P&L, can go down
}

// New registers and returns all bot metrics.
func New() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_cycles_total",
			Help: "Total decision cycles run",
		}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradebot_cycle_duration_seconds",
			Help:    "Full decision cycle latency, fetch through execution",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_signals_total",
			Help: "Signals read per cycle (by kind)",
		}, []string{"kind"}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_actions_total",
			Help: "Authorized actions (by action)",
		}, []string{"action"}),
		ExecFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_execution_failures_total",
			Help: "Broker calls that failed (by operation)",
		}, []string{"op"}),
		BrokerReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradebot_broker_request_duration_seconds",
			Help:    "Broker REST request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		StopMovesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_stop_moves_total",
			Help: "Trailing stop updates sent to the broker",
		}),
		EmergencyCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_emergency_closes_total",
			Help: "Positions closed on a confirmed trailing line breach",
		}),
		SuppressedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_suppressed_cycles_total",
			Help: "Cycles held by a suppression window",
		}),
		RegimeState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_regime_state",
			Help: "Market regime (-1=bear, 0=neutral, 1=bull)",
		}),
		PositionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_position_state",
			Help: "Open position direction (0=flat, 1=long, -1=short)",
		}),
		RealizedPL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_realized_pl",
			Help: "Cumulative realized P&L in account currency",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDur,
		m.SignalsTotal,
		m.ActionsTotal,
		m.ExecFailures,
		m.BrokerReqDur,
		m.StopMovesTotal,
		m.EmergencyCloses,
		m.SuppressedTotal,
		m.RegimeState,
		m.PositionOpen,
		m.RealizedPL,
	)

	return m
}

// HealthStatus tracks liveness of the bot's dependencies.
type HealthStatus struct {
	mu sync.RWMutex

	BrokerOK      bool
	MarkerStoreOK bool
	LastCycleAt   time.Time
	StartedAt     time.Time
}

// NewHealthStatus returns a default health status. Dependencies start
// healthy: before the first cycle there has been no failed contact to
// report, and a 503 at boot would fail readiness probes for no reason.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		BrokerOK:      true,
		MarkerStoreOK: true,
		StartedAt:     time.Now(),
	}
}

func (h *HealthStatus) SetBrokerOK(v bool) {
	h.mu.Lock()
	h.BrokerOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetMarkerStoreOK(v bool) {
	h.mu.Lock()
	h.MarkerStoreOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) MarkCycle() {
	h.mu.Lock()
	h.LastCycleAt = time.Now()
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint. Degraded when the broker or
// the marker store failed last contact, or no cycle ran recently.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall := "healthy"
	code := http.StatusOK
	if !h.BrokerOK || !h.MarkerStoreOK {
		overall = "degraded"
		code = http.StatusServiceUnavailable
	}

	cycleAge := ""
	if !h.LastCycleAt.IsZero() {
		cycleAge = time.Since(h.LastCycleAt).Round(time.Millisecond).String()
	}

	status := struct {
		Status        string `json:"status"`
		Uptime        string `json:"uptime"`
		BrokerOK      bool   `json:"broker_ok"`
		MarkerStoreOK bool   `json:"marker_store_ok"`
		LastCycleAt   string `json:"last_cycle_at"`
		CycleAge      string `json:"cycle_age"`
	}{
		Status:        overall,
		Uptime:        time.Since(h.StartedAt).Round(time.Second).String(),
		BrokerOK:      h.BrokerOK,
		MarkerStoreOK: h.MarkerStoreOK,
		LastCycleAt:   h.LastCycleAt.Format(time.RFC3339),
		CycleAge:      cycleAge,
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
