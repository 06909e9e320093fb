package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the band trader.
type Metrics struct {
	reg *prometheus.Registry

	CyclesTotal   *prometheus.CounterVec // labels: pair, outcome
	SignalsTotal  *prometheus.CounterVec // labels: pair, action
	CycleDuration *prometheus.HistogramVec
	BandSource    *prometheus.CounterVec // labels: pair, source
	PositionState *prometheus.GaugeVec   // 0=none, 1=armed sell, -1=armed buy
	Trigger       *prometheus.GaugeVec
	Volatility    *prometheus.GaugeVec
	Indicator     *prometheus.GaugeVec // labels: pair, name

	OrderFailures    *prometheus.CounterVec // labels: pair
	DataFetchErrors  *prometheus.CounterVec // labels: pair, op
	BalanceShortfall *prometheus.CounterVec // labels: pair
	PendingOrders    *prometheus.GaugeVec   // 1 while a pair awaits reconciliation

	// Redis publisher
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisDroppedEvents       prometheus.Counter

	WSClients prometheus.Gauge
}

// NewMetrics registers all metrics on a private registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandtrader_cycles_total",
			Help: "Evaluation cycles completed (by pair and outcome)",
		}, []string{"pair", "outcome"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandtrader_signals_total",
			Help: "BUY/SELL signals executed",
		}, []string{"pair", "action"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bandtrader_cycle_duration_seconds",
			Help:    "Wall time of one evaluation cycle including exchange calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"pair"}),
		BandSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandtrader_band_source_total",
			Help: "Warm cycles by selected band family",
		}, []string{"pair", "source"}),
		PositionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bandtrader_position_state",
			Help: "Trailing-stop state (0=none, 1=armed sell, -1=armed buy)",
		}, []string{"pair"}),
		Trigger: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bandtrader_trigger_price",
			Help: "Armed trailing trigger price, 0 when not armed",
		}, []string{"pair"}),
		Volatility: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bandtrader_volatility_pct",
			Help: "Last bar range as a percentage of close",
		}, []string{"pair"}),
		Indicator: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bandtrader_indicator_value",
			Help: "Latest warm indicator statistics (SMA_20, ATR_10, RSI_14...)",
		}, []string{"pair", "name"}),

		OrderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandtrader_order_failures_total",
			Help: "Order placements that failed, or orders whose state commit failed",
		}, []string{"pair"}),
		DataFetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandtrader_data_fetch_errors_total",
			Help: "Skipped cycles due to OHLC or balance fetch errors",
		}, []string{"pair", "op"}),
		BalanceShortfall: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandtrader_insufficient_balance_total",
			Help: "Signals held because the relevant balance was empty",
		}, []string{"pair"}),
		PendingOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bandtrader_pending_orders",
			Help: "1 while the pair is blocked on an order with an unknown outcome",
		}, []string{"pair"}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bandtrader_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandtrader_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisDroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandtrader_redis_dropped_events_total",
			Help: "Cycle events dropped by the Redis publisher",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bandtrader_ws_clients",
			Help: "Connected WebSocket dashboard clients",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CyclesTotal,
		m.SignalsTotal,
		m.CycleDuration,
		m.BandSource,
		m.PositionState,
		m.Trigger,
		m.Volatility,
		m.Indicator,
		m.OrderFailures,
		m.DataFetchErrors,
		m.BalanceShortfall,
		m.PendingOrders,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisDroppedEvents,
		m.WSClients,
	)

	return m
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Pinger is a dependency that can be probed for liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type probe struct {
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
	Required  bool    `json:"required"`
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	DryRun      bool
	Pairs       []string
	lastCycle   map[string]time.Time
	probes      map[string]probe
	pingers     map[string]Pinger
	required    map[string]bool
	LastCheckAt time.Time
	StartedAt   time.Time

	// StaleAfter marks the process degraded when no cycle finished in this
	// window. Zero disables the check.
	StaleAfter time.Duration
	now        func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(pairs []string, dryRun bool, staleAfter time.Duration) *HealthStatus {
	return &HealthStatus{
		DryRun:     dryRun,
		Pairs:      pairs,
		lastCycle:  make(map[string]time.Time),
		probes:     make(map[string]probe),
		pingers:    make(map[string]Pinger),
		required:   make(map[string]bool),
		StaleAfter: staleAfter,
		StartedAt:  time.Now(),
		now:        time.Now,
	}
}

// AddDependency registers a probe. A failing required dependency makes
// /healthz report unhealthy; an optional one only degrades it.
func (h *HealthStatus) AddDependency(name string, p Pinger, required bool) {
	h.mu.Lock()
	h.pingers[name] = p
	h.required[name] = required
	h.mu.Unlock()
}

// SetLastCycle records that a cycle for pair just finished.
func (h *HealthStatus) SetLastCycle(pair string, t time.Time) {
	h.mu.Lock()
	h.lastCycle[pair] = t
	h.mu.Unlock()
}

// Check probes every registered dependency once.
func (h *HealthStatus) Check(ctx context.Context) {
	h.mu.RLock()
	pingers := make(map[string]Pinger, len(h.pingers))
	for k, v := range h.pingers {
		pingers[k] = v
	}
	h.mu.RUnlock()

	results := make(map[string]probe, len(pingers))
	for name, p := range pingers {
		start := time.Now()
		err := p.Ping(ctx)
		pr := probe{
			OK:        err == nil,
			LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
		}
		if err != nil {
			pr.Error = err.Error()
		}
		results[name] = pr
	}

	h.mu.Lock()
	for name, pr := range results {
		pr.Required = h.required[name]
		h.probes[name] = pr
	}
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			h.Check(probeCtx)
			cancel()

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	overallStatus := "healthy"
	httpCode := http.StatusOK

	for _, pr := range h.probes {
		if pr.OK {
			continue
		}
		if pr.Required {
			overallStatus = "unhealthy"
			httpCode = http.StatusServiceUnavailable
		} else if overallStatus == "healthy" {
			overallStatus = "degraded"
		}
	}

	cycleAge := make(map[string]string, len(h.Pairs))
	pairs := append([]string(nil), h.Pairs...)
	sort.Strings(pairs)
	for _, p := range pairs {
		last, ok := h.lastCycle[p]
		if !ok {
			cycleAge[p] = ""
			continue
		}
		age := now.Sub(last)
		cycleAge[p] = age.Round(time.Millisecond).String()
		if h.StaleAfter > 0 && age > h.StaleAfter && overallStatus == "healthy" {
			overallStatus = "degraded"
		}
	}

	status := struct {
		Status       string            `json:"status"`
		Uptime       string            `json:"uptime"`
		DryRun       bool              `json:"dry_run"`
		CycleAge     map[string]string `json:"cycle_age"`
		Dependencies map[string]probe  `json:"dependencies"`
		LastCheckAt  string            `json:"last_check_at"`
	}{
		Status:       overallStatus,
		Uptime:       now.Sub(h.StartedAt).Round(time.Second).String(),
		DryRun:       h.DryRun,
		CycleAge:     cycleAge,
		Dependencies: h.probes,
		LastCheckAt:  h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server. The handler is supplied by the caller so the
// status API, /metrics and /healthz can share one listener.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a server bound to addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
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

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
