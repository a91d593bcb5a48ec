package api

import (
	"net/http"
	"strconv"
)

// RankingHandler serves materialized rankings.
type RankingHandler struct {
	deps         RankingDependencies
	defaultLimit int
}

// NewRankingHandler creates a new ranking handler.
func NewRankingHandler(deps RankingDependencies, defaultLimit int) *RankingHandler {
	if defaultLimit < 1 {
		defaultLimit = 100
	}
	return &RankingHandler{deps: deps, defaultLimit: defaultLimit}
}

// HandleRankedItems handles GET /configurations/{id}/ranked-items?limit=N.
func (h *RankingHandler) HandleRankedItems(w http.ResponseWriter, r *http.Request) {
	const op = "api.ranked_items"
	id, ok := pathID(r, "id")
	if !ok {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeFailure(w, WrapKind(op, ErrBadRequest, err))
			return
		}
		limit = n
	}
	entries, err := h.deps.RankedItems(r.Context(), id, limit)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleRankedItem handles GET /configurations/{id}/ranked-items/{item_id}.
func (h *RankingHandler) HandleRankedItem(w http.ResponseWriter, r *http.Request) {
	const op = "api.ranked_item"
	id, ok := pathID(r, "id")
	itemID, itemOK := pathID(r, "item_id")
	if !ok || !itemOK {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}
	entry, err := h.deps.RankedItem(r.Context(), id, itemID)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleRankedLists handles GET /configurations/{id}/ranked-lists.
func (h *RankingHandler) HandleRankedLists(w http.ResponseWriter, r *http.Request) {
	const op = "api.ranked_lists"
	id, ok := pathID(r, "id")
	if !ok {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}
	lists, err := h.deps.RankedLists(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, lists)
}
