// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/siege/internal/adapters/http/ws"
	"github.com/okian/siege/internal/adapters/repository"
	service "github.com/okian/siege/internal/app"
	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/internal/domain/questitem"
	"github.com/okian/siege/internal/domain/siege"
)

const defaultMaxLeaderboardLimit = 100

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SiegeDependencies
	LeaderboardDependencies
	RankDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = repository.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	siegesHandler      *SiegesHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler

	hub      *ws.Hub
	maxLimit int
}

// Option configures a Server.
type Option func(*Server)

// WithHub enables GET /sieges/{id}/ws.
func WithHub(h *ws.Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithMaxLeaderboardLimit caps the limit accepted by GET /leaderboard.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{maxLimit: defaultMaxLeaderboardLimit}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.siegesHandler = NewSiegesHandler(deps, s.hub)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.maxLimit)
	s.rankHandler = NewRankHandler(deps)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /sieges", MetricsMiddleware(s.siegesHandler.HandleCreate, "sieges_create"))
	mux.HandleFunc("GET /sieges", MetricsMiddleware(s.siegesHandler.HandleList, "sieges_list"))
	mux.HandleFunc("GET /sieges/{id}", MetricsMiddleware(s.siegesHandler.HandleStatus, "sieges_status"))
	mux.HandleFunc("POST /sieges/{id}/notifications", MetricsMiddleware(s.siegesHandler.HandleNotification, "notifications"))
	mux.HandleFunc("POST /sieges/{id}/deliveries", MetricsMiddleware(s.siegesHandler.HandleDelivery, "deliveries"))
	mux.HandleFunc("GET /sieges/{id}/results", MetricsMiddleware(s.siegesHandler.HandleResults, "results"))
	mux.HandleFunc("GET /sieges/{id}/results/{name}", MetricsMiddleware(s.siegesHandler.HandleResult, "result"))
	mux.HandleFunc("GET /sieges/{id}/ws", MetricsMiddleware(s.siegesHandler.HandleWebsocket, "ws"))

	mux.HandleFunc("GET /leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /leaderboard/{name}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps upstream errors to a status code and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidNotification),
		errors.Is(err, siege.ErrInvalidLevel),
		errors.Is(err, siege.ErrEmptyRoster),
		errors.Is(err, siege.ErrRosterTooLarge),
		errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrSiegeNotFound),
		errors.Is(err, siege.ErrUnknownParticipant),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBackpressure), errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, siege.ErrNotFinalized):
		return http.StatusConflict, "not_finalized"
	case errors.Is(err, siege.ErrNotRunning):
		return http.StatusConflict, "not_running"
	case errors.Is(err, siege.ErrAlreadyWon):
		return http.StatusConflict, "already_won"
	case errors.Is(err, questitem.ErrNotHoldingItem):
		return http.StatusConflict, "not_holding_item"
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, ErrWebsocketUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeClassified(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

var _ Dependencies = (*service.Service)(nil)

// statusResponse wraps a siege projection for the JSON API.
type statusResponse struct {
	model.Status
	RemainingSeconds float64 `json:"remaining_seconds"`
}

func newStatusResponse(st model.Status) statusResponse { //nolint:gocritic // hugeParam: read-only projection
	return statusResponse{Status: st, RemainingSeconds: st.Remaining.Seconds()}
}
