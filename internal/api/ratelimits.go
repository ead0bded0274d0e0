package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/campaigner/internal/config"
	"github.com/foxzi/campaigner/internal/ratelimit"
)

// RateLimitsResponse is the response for GET /api/v1/ratelimits
type RateLimitsResponse struct {
	Enabled bool                   `json:"enabled"`
	Config  config.RateLimitConfig `json:"config"`
	Stats   []*ratelimit.Stats     `json:"stats"`
}

// handleRateLimitsList handles GET /api/v1/ratelimits
func (s *Server) handleRateLimitsList(w http.ResponseWriter, r *http.Request) {
	resp := RateLimitsResponse{
		Enabled: s.limiter != nil,
		Config:  s.config.RateLimit,
		Stats:   []*ratelimit.Stats{},
	}

	if s.limiter != nil {
		stats, err := s.limiter.ListStats(r.Context())
		if err != nil {
			s.logger.Error("failed to list rate limit stats", "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to get rate limit stats")
			return
		}
		if stats != nil {
			resp.Stats = stats
		}
	}

	s.sendJSON(w, http.StatusOK, resp)
}

// handleRateLimitStats handles GET /api/v1/ratelimits/{level}/{key}
func (s *Server) handleRateLimitStats(w http.ResponseWriter, r *http.Request) {
	if s.limiter == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Rate limiting is not enabled")
		return
	}

	level := ratelimit.Level(chi.URLParam(r, "level"))
	switch level {
	case ratelimit.LevelGlobal, ratelimit.LevelSender, ratelimit.LevelRecipient:
	default:
		s.sendError(w, http.StatusBadRequest, "Unknown rate limit level")
		return
	}

	stats, err := s.limiter.GetStats(r.Context(), level, chi.URLParam(r, "key"))
	if err != nil {
		s.logger.Error("failed to get rate limit stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get rate limit stats")
		return
	}

	s.sendJSON(w, http.StatusOK, stats)
}
