// Package api is a small read-only HTTP surface over the game: health,
// market clock, leaderboard, and per-company views. All mutation goes
// through the Discord front end.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mtaung/stonks/internal/ledger"
	"github.com/mtaung/stonks/internal/marketclock"
	"github.com/mtaung/stonks/internal/store"
)

type Server struct {
	log    *slog.Logger
	ledger *ledger.Service
	clock  *marketclock.Clock
	mux    *chi.Mux
}

func New(logger *slog.Logger, svc *ledger.Service, clock *marketclock.Clock) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:    logger,
		ledger: svc,
		clock:  clock,
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/market/time", s.handleMarketTime)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/companies/{id}", s.handleCompany)
		r.Get("/companies/{id}/holdings", s.handleHoldings)
	})
}

func (s *Server) handleMarketTime(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"now":        now.Format(time.RFC3339),
		"open":       s.clock.SessionOpen(),
		"next_open":  s.clock.NextOpen().Format(time.RFC3339),
		"next_close": s.clock.NextClose().Format(time.RFC3339),
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be 1..100")
			return
		}
		limit = n
	}
	rows, err := s.ledger.Leaderboard(r.Context(), limit)
	if err != nil {
		s.log.Error("leaderboard", "error", err)
		writeError(w, http.StatusInternalServerError, "leaderboard unavailable")
		return
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]any{
			"rank":      row.Rank,
			"company":   row.CompanyName,
			"net_worth": ledger.MicrosToUSD(row.NetWorthMicros),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": out})
}

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	sum, err := s.ledger.BalanceReport(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      sum.CompanyName,
		"balance":   ledger.MicrosToUSD(sum.BalanceMicros),
		"net_worth": ledger.MicrosToUSD(sum.NetWorthMicros),
		"delta_pct": sum.DeltaPct,
	})
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	holdings, err := s.ledger.Portfolio(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, map[string]any{
			"symbol":   h.Symbol,
			"quantity": h.Quantity,
			"value":    ledger.MicrosToUSD(h.ValueMicros),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"holdings": out})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "company not found")
	case errors.Is(err, ledger.ErrMissingClose):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
