// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	service "github.com/ssherman/the-greatest-sub000/internal/app"
	"github.com/ssherman/the-greatest-sub000/internal/adapters/repository"
	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	"github.com/ssherman/the-greatest-sub000/internal/domain/ranking"
	"github.com/ssherman/the-greatest-sub000/internal/domain/registry"
	"github.com/ssherman/the-greatest-sub000/internal/domain/types"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	RecalculationDependencies
	RankingDependencies
	StatsProvider
}

// RecalculationDependencies triggers recalculations.
type RecalculationDependencies interface {
	Recalculate(ctx context.Context, configurationID int64) (service.Trigger, error)
	RecalculateAll(ctx context.Context, d model.Domain) ([]service.Trigger, []types.RecalculationFailure, error)
	RecalculateNow(ctx context.Context, configurationID int64) (ranking.Summary, error)
	RecalculateAllNow(ctx context.Context, d model.Domain) ([]ranking.Summary, []types.RecalculationFailure, error)
}

// RankingDependencies reads materialized rankings.
type RankingDependencies interface {
	RankedItems(ctx context.Context, configurationID int64, limit int) ([]types.Entry, error)
	RankedItem(ctx context.Context, configurationID, itemID int64) (types.Entry, error)
	RankedLists(ctx context.Context, configurationID int64) ([]types.ListEntry, error)
}

// Server wires HTTP routes for the ranking API.
type Server struct {
	opsHandler     *OpsHandler
	recalcHandler  *RecalculateHandler
	rankingHandler *RankingHandler
}

// NewServer creates a new API server with all handlers. defaultLimit is
// used by ranked-items when the request has no limit.
func NewServer(deps Dependencies, defaultLimit int) *Server {
	return &Server{
		opsHandler:     NewOpsHandler(deps),
		recalcHandler:  NewRecalculateHandler(deps),
		rankingHandler: NewRankingHandler(deps, defaultLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.opsHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.opsHandler.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.opsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /configurations/{id}/recalculate",
		MetricsMiddleware(s.recalcHandler.HandleConfiguration, "recalculate"))
	mux.HandleFunc("POST /domains/{domain}/recalculate",
		MetricsMiddleware(s.recalcHandler.HandleDomain, "recalculate_domain"))
	mux.HandleFunc("POST /recalculate",
		MetricsMiddleware(s.recalcHandler.HandleDomain, "recalculate_all"))

	mux.HandleFunc("GET /configurations/{id}/ranked-items",
		MetricsMiddleware(s.rankingHandler.HandleRankedItems, "ranked_items"))
	mux.HandleFunc("GET /configurations/{id}/ranked-items/{item_id}",
		MetricsMiddleware(s.rankingHandler.HandleRankedItem, "ranked_item"))
	mux.HandleFunc("GET /configurations/{id}/ranked-lists",
		MetricsMiddleware(s.rankingHandler.HandleRankedLists, "ranked_lists"))
}

type errorResponse struct {
	Code    string                `json:"code"`
	Message string                `json:"message"`
	Errors  []registry.FieldError `json:"errors,omitempty"`
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
	resp := errorResponse{Code: code, Message: msg}
	var ve *registry.ValidationError
	if errors.As(err, &ve) {
		resp.Errors = ve.Errors
	}
	writeJSON(w, status, resp)
}

// writeFailure maps a domain error onto a status code and writes it.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err)
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, repository.ErrInvalidLimit),
		errors.Is(err, model.ErrUnknownDomain):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "backpressure", err)
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func wantsSync(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("sync"))
	return ok
}
