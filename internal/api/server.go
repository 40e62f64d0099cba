// Package api serves read-only economy views and health checks over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"growtube/internal/career"
	"growtube/internal/game"
	"growtube/internal/market"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pinger reports round-trip latency to the chat gateway.
type Pinger interface {
	Latency() time.Duration
}

type Server struct {
	log     *slog.Logger
	market  *market.Engine
	careers *career.Scheduler
	pinger  Pinger
	started time.Time
	now     func() time.Time
	mux     *chi.Mux
}

func New(logger *slog.Logger, engine *market.Engine, careers *career.Scheduler, pinger Pinger, started time.Time) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:     logger,
		market:  engine,
		careers: careers,
		pinger:  pinger,
		started: started,
		now:     time.Now,
		mux:     chi.NewRouter(),
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
	r.Get("/ping", s.handlePing)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/market", s.handleMarket)
		r.Get("/top", s.handleTop)
		r.Get("/careers", s.handleCareers)
		r.Get("/users/{id}/wallet", s.handleWallet)
		r.Get("/users/{id}/inventory", s.handleInventory)
		r.Get("/users/{id}/career", s.handleCareerInfo)
	})
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	out := map[string]any{
		"uptime_seconds": int64(s.now().Sub(s.started).Seconds()),
		"started_at":     s.started.UTC(),
	}
	if s.pinger != nil {
		out["latency_ms"] = s.pinger.Latency().Milliseconds()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	listings, err := s.market.Market(r.Context())
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": listings})
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	rows, err := s.market.Top(r.Context(), limit)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *Server) handleCareers(w http.ResponseWriter, r *http.Request) {
	careers, err := s.careers.List(r.Context())
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"careers": careers})
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	acct, err := s.market.Wallet(r.Context(), userID)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	inv, err := s.market.Inventory(r.Context(), userID)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleCareerInfo(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	info, err := s.careers.Info(r.Context(), userID)
	if err != nil {
		s.writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func userParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrNotRegistered), errors.Is(err, game.ErrItemNotBuyable), errors.Is(err, game.ErrNotOwned):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrTxConflict), errors.Is(err, game.ErrInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.log.ErrorContext(ctx, "request failed", "request_id", middleware.GetReqID(ctx), "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
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
