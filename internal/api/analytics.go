package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/campaigner/internal/analytics"
)

// handleAnalyticsList handles GET /api/v1/analytics
func (s *Server) handleAnalyticsList(w http.ResponseWriter, r *http.Request) {
	records, err := s.analytics.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list analytics", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list analytics")
		return
	}
	if records == nil {
		records = []*analytics.Record{}
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"campaigns": records})
}

// handleAnalyticsGet handles GET /api/v1/analytics/{campaign}
func (s *Server) handleAnalyticsGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.analytics.Get(r.Context(), chi.URLParam(r, "campaign"))
	if err != nil {
		if errors.Is(err, analytics.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Campaign not found")
			return
		}
		s.logger.Error("failed to get analytics", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get analytics")
		return
	}
	s.sendJSON(w, http.StatusOK, rec)
}

// handleAnalyticsExport handles GET /api/v1/analytics/export
func (s *Server) handleAnalyticsExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="email_stats.json"`)
	if err := s.analytics.Export(r.Context(), w); err != nil {
		s.logger.Error("failed to export analytics", "error", err)
	}
}
