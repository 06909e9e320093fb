// Package api provides the HTTP status API for the band trader.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"trading-bands/internal/model"
	"trading-bands/internal/portfolio"
	"trading-bands/internal/strategy"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 1000
)

// StateSource exposes the per-pair position machines.
type StateSource interface {
	Pairs() []string
	States() map[string]strategy.PositionState
}

// EventSource exposes the latest published cycle event per pair.
type EventSource interface {
	Latest() []model.CycleEvent
}

// PendingSource lists and resolves orders whose outcome is unknown.
type PendingSource interface {
	Pending() []model.PendingOrder
	Resolve(ctx context.Context, pair string, filled bool) error
}

// Deps wires the router. Any field may be nil; the matching routes then
// answer 503 or are not mounted.
type Deps struct {
	States  StateSource
	Events  EventSource
	Pending PendingSource
	Book    *portfolio.Book
	Trades  model.TradeReader
	PnL     *portfolio.PnLTracker
	DryRun  bool
	Stream  http.Handler // WebSocket event stream
	Metrics http.Handler // Prometheus exposition
	Health  http.Handler // dependency health
}

// NewRouter sets up HTTP routes for the status API.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"dry_run": d.DryRun,
		})
	})
	r.Get("/api/v1/positions", d.handlePositions)
	r.Get("/api/v1/trades", d.handleTrades)
	r.Get("/api/v1/pnl", d.handlePnL)
	r.Get("/api/v1/pending", d.handlePending)
	r.Post("/api/v1/pending/resolve", d.handleResolve)

	if d.Stream != nil {
		r.Handle("/ws", d.Stream)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	if d.Health != nil {
		r.Handle("/healthz", d.Health)
	}
	return r
}

type pairPosition struct {
	Pair      string                 `json:"pair"`
	State     strategy.PositionState `json:"state"`
	LastCycle *model.CycleEvent      `json:"last_cycle,omitempty"`
}

type positionsResponse struct {
	Positions         []pairPosition     `json:"positions"`
	Balances          map[string]float64 `json:"balances,omitempty"`
	BalancesUpdatedAt *time.Time         `json:"balances_updated_at,omitempty"`
}

func (d Deps) handlePositions(w http.ResponseWriter, r *http.Request) {
	if d.States == nil {
		writeError(w, http.StatusServiceUnavailable, "trader not running")
		return
	}
	latest := make(map[string]model.CycleEvent)
	if d.Events != nil {
		for _, ev := range d.Events.Latest() {
			latest[ev.Pair] = ev
		}
	}

	states := d.States.States()
	resp := positionsResponse{Positions: make([]pairPosition, 0, len(states))}
	for _, pair := range d.States.Pairs() {
		pp := pairPosition{Pair: pair, State: states[pair]}
		if ev, ok := latest[pair]; ok {
			pp.LastCycle = &ev
		}
		resp.Positions = append(resp.Positions, pp)
	}
	if d.Book != nil {
		balances, at := d.Book.Snapshot()
		if !at.IsZero() {
			resp.Balances = balances
			resp.BalancesUpdatedAt = &at
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d Deps) handleTrades(w http.ResponseWriter, r *http.Request) {
	if d.Trades == nil {
		writeError(w, http.StatusServiceUnavailable, "trade journal not configured")
		return
	}
	limit := defaultTradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxTradeLimit {
			n = maxTradeLimit
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	trades, err := d.Trades.RecentTrades(ctx, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if trades == nil {
		trades = []model.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trades": trades,
		"count":  len(trades),
	})
}

func (d Deps) handlePnL(w http.ResponseWriter, r *http.Request) {
	if d.PnL == nil {
		writeError(w, http.StatusServiceUnavailable, "pnl tracker not configured")
		return
	}
	resp := pnlResponse{PnLSummary: d.PnL.Summary(), Marks: map[string]float64{}}
	if d.Events != nil {
		for _, ev := range d.Events.Latest() {
			if ev.Price > 0 {
				resp.Marks[ev.Pair] = ev.Price
			}
		}
	}
	resp.UnrealizedPnL = d.PnL.UnrealizedPnL(resp.Marks)
	writeJSON(w, http.StatusOK, resp)
}

type pnlResponse struct {
	portfolio.PnLSummary
	UnrealizedPnL float64            `json:"unrealized_pnl"`
	Marks         map[string]float64 `json:"marks"` // last cycle price per pair
}

func (d Deps) handlePending(w http.ResponseWriter, r *http.Request) {
	if d.Pending == nil {
		writeError(w, http.StatusServiceUnavailable, "trader not running")
		return
	}
	pending := d.Pending.Pending()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending": pending,
		"count":   len(pending),
	})
}

type resolveRequest struct {
	Pair   string `json:"pair"`
	Filled *bool  `json:"filled"`
}

func (d Deps) handleResolve(w http.ResponseWriter, r *http.Request) {
	if d.Pending == nil {
		writeError(w, http.StatusServiceUnavailable, "trader not running")
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.Pair == "" || req.Filled == nil {
		writeError(w, http.StatusBadRequest, `body must be {"pair": "...", "filled": true|false}`)
		return
	}
	if err := d.Pending.Resolve(r.Context(), req.Pair, *req.Filled); err != nil {
		code := http.StatusConflict
		if errors.Is(err, model.ErrNoPendingOrder) {
			code = http.StatusNotFound
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pair":     req.Pair,
		"filled":   *req.Filled,
		"resolved": true,
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
