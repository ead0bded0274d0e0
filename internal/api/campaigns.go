package api

import (
	"errors"
	"net/http"

	"github.com/foxzi/campaigner/internal/campaign"
	"github.com/foxzi/campaigner/internal/recipient"
	"github.com/foxzi/campaigner/internal/template"
	"github.com/foxzi/campaigner/internal/transport"
)

// CampaignRequest is the request body for POST /api/v1/campaigns/send
type CampaignRequest struct {
	Template     string  `json:"template,omitempty"` // empty = built-in personalized email
	RecipientIDs []int64 `json:"recipient_ids,omitempty"`
	DryRun       bool    `json:"dry_run,omitempty"`
	Limit        int     `json:"limit,omitempty"`
}

// CampaignResponse is the response for POST /api/v1/campaigns/send
type CampaignResponse struct {
	*campaign.Report
	Summary string `json:"summary"`
}

// handleCampaignSend handles POST /api/v1/campaigns/send. The run is
// synchronous; the response carries the full report.
func (s *Server) handleCampaignSend(w http.ResponseWriter, r *http.Request) {
	var req CampaignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Limit < 0 {
		s.sendError(w, http.StatusBadRequest, "limit must not be negative")
		return
	}

	recipients, err := campaign.Select(r.Context(), s.recipients, req.RecipientIDs)
	if err != nil {
		switch {
		case errors.Is(err, recipient.ErrNotFound):
			s.sendError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, campaign.ErrInactive):
			s.sendError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("failed to select recipients", "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to select recipients")
		}
		return
	}
	if len(recipients) == 0 {
		s.sendError(w, http.StatusUnprocessableEntity, "No active recipients")
		return
	}

	var cfg transport.Config
	if !req.DryRun {
		if cfg, err = s.transport(r.Context()); err != nil {
			s.logger.Error("failed to resolve SMTP settings", "error", err)
			s.sendError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}

	report, err := s.dispatcher.Send(r.Context(), recipients, req.Template, cfg, campaign.Options{
		DryRun: req.DryRun,
		Limit:  req.Limit,
	})
	if err != nil && report == nil {
		if errors.Is(err, template.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Template not found")
			return
		}
		s.logger.Error("campaign failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Campaign failed")
		return
	}

	s.logger.Info("campaign run via API",
		"campaign", report.CampaignID,
		"run_id", report.RunID,
		"sent", report.Sent,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"dry_run", report.DryRun,
	)
	s.sendJSON(w, http.StatusOK, CampaignResponse{Report: report, Summary: report.Summary()})
}
