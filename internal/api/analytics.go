package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/loanifi/loanifi-console/internal/funnel"
	"github.com/loanifi/loanifi-console/internal/gateway"
)

// AnalyticsHandler serves the funnel report and the overview dashboard,
// both computed from the backend's authoritative counts on every
// request.
type AnalyticsHandler struct {
	backend gateway.Backend
}

// NewAnalyticsHandler creates an analytics handler.
func NewAnalyticsHandler(backend gateway.Backend) *AnalyticsHandler {
	return &AnalyticsHandler{backend: backend}
}

// RegisterRoutes registers analytics routes.
func (h *AnalyticsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/analytics", func(r chi.Router) {
		r.Get("/funnel", h.Funnel)
		r.Get("/overview", h.Overview)
	})
}

// Funnel fetches the stage counts and derives per-stage conversion and
// drop-off rates. Optional start_date/end_date (YYYY-MM-DD) narrow the
// window.
func (h *AnalyticsHandler) Funnel(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")

	snapshot, err := h.backend.ConversionFunnel(r.Context(), startDate, endDate)
	if err != nil {
		slog.Error("failed to fetch conversion funnel", "error", err)
		GatewayError(w, err)
		return
	}

	JSON(w, http.StatusOK, funnel.ComputeReport(snapshot))
}

// Overview passes through the backend's dashboard stats.
func (h *AnalyticsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	stats, err := h.backend.OverviewStats(r.Context())
	if err != nil {
		slog.Error("failed to fetch overview stats", "error", err)
		GatewayError(w, err)
		return
	}
	JSON(w, http.StatusOK, stats)
}
