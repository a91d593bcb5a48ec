package api

import (
	"net/http"

	service "github.com/ssherman/the-greatest-sub000/internal/app"
	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
	"github.com/ssherman/the-greatest-sub000/internal/domain/ranking"
	"github.com/ssherman/the-greatest-sub000/internal/domain/types"
)

// RecalculateHandler handles recalculation triggers.
type RecalculateHandler struct {
	deps RecalculationDependencies
}

// NewRecalculateHandler creates a new recalculation handler.
func NewRecalculateHandler(deps RecalculationDependencies) *RecalculateHandler {
	return &RecalculateHandler{deps: deps}
}

type bulkTriggerResponse struct {
	Triggers []service.Trigger           `json:"triggers"`
	Failures []types.RecalculationFailure `json:"failures"`
}

type bulkResponse struct {
	Summaries []ranking.Summary            `json:"summaries"`
	Failures  []types.RecalculationFailure `json:"failures"`
}

// HandleConfiguration handles POST /configurations/{id}/recalculate.
// With ?sync=true the run happens inline and its summary is returned.
func (h *RecalculateHandler) HandleConfiguration(w http.ResponseWriter, r *http.Request) {
	const op = "api.recalculate"
	id, ok := pathID(r, "id")
	if !ok {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}
	if wantsSync(r) {
		sum, err := h.deps.RecalculateNow(r.Context(), id)
		if err != nil {
			writeFailure(w, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, sum)
		return
	}
	t, err := h.deps.Recalculate(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, t)
}

// HandleDomain handles POST /domains/{domain}/recalculate and
// POST /recalculate, which covers every domain.
func (h *RecalculateHandler) HandleDomain(w http.ResponseWriter, r *http.Request) {
	const op = "api.recalculate_domain"
	var d model.Domain
	if raw := r.PathValue("domain"); raw != "" {
		parsed, err := model.ParseDomain(raw)
		if err != nil {
			writeFailure(w, WrapKind(op, ErrBadRequest, err))
			return
		}
		d = parsed
	}
	if wantsSync(r) {
		sums, failures, err := h.deps.RecalculateAllNow(r.Context(), d)
		if err != nil {
			writeFailure(w, Wrap(op, err))
			return
		}
		if sums == nil {
			sums = []ranking.Summary{}
		}
		if failures == nil {
			failures = []types.RecalculationFailure{}
		}
		writeJSON(w, http.StatusOK, bulkResponse{Summaries: sums, Failures: failures})
		return
	}
	triggers, failures, err := h.deps.RecalculateAll(r.Context(), d)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if triggers == nil {
		triggers = []service.Trigger{}
	}
	if failures == nil {
		failures = []types.RecalculationFailure{}
	}
	writeJSON(w, http.StatusAccepted, bulkTriggerResponse{Triggers: triggers, Failures: failures})
}
