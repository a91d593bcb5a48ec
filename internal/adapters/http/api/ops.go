package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssherman/the-greatest-sub000/pkg/metrics"
)

// StatsProvider reports runtime statistics for GET /stats.
type StatsProvider interface {
	GetStats() map[string]any
}

// OpsHandler serves liveness, statistics and Prometheus metrics.
type OpsHandler struct {
	stats StatsProvider
}

func NewOpsHandler(stats StatsProvider) *OpsHandler {
	return &OpsHandler{stats: stats}
}

// HandleHealth handles GET /healthz.
func (h *OpsHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStats handles GET /stats.
func (h *OpsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.GetStats())
}

// MetricsHandler serves the ranking metrics registry.
func (h *OpsHandler) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
