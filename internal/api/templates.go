package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/campaigner/internal/recipient"
	"github.com/foxzi/campaigner/internal/template"
)

// TemplateRequest is the request body for creating or replacing a template
type TemplateRequest struct {
	Name    string `json:"name,omitempty"`
	Subject string `json:"subject"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// TemplateResponse describes a stored template
type TemplateResponse struct {
	*template.Template
	Fields []string `json:"fields"`
}

// PreviewRequest is the request body for POST /api/v1/templates/{name}/preview
type PreviewRequest struct {
	RecipientID int64 `json:"recipient_id"`
}

// handleTemplatesList handles GET /api/v1/templates
func (s *Server) handleTemplatesList(w http.ResponseWriter, r *http.Request) {
	names, err := s.templates.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}
	if names == nil {
		names = []string{}
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"templates": names})
}

// handleTemplatesCreate handles POST /api/v1/templates
func (s *Server) handleTemplatesCreate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tmpl := &template.Template{Name: req.Name, Subject: req.Subject, Text: req.Text, HTML: req.HTML}
	if err := s.templates.Create(r.Context(), tmpl); err != nil {
		s.templateError(w, err, "Failed to create template")
		return
	}

	s.logger.Info("template created via API", "name", tmpl.Name)
	s.sendJSON(w, http.StatusCreated, TemplateResponse{Template: tmpl, Fields: tmpl.Fields()})
}

// handleTemplatesGet handles GET /api/v1/templates/{name}
func (s *Server) handleTemplatesGet(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.templates.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.templateError(w, err, "Failed to get template")
		return
	}
	s.sendJSON(w, http.StatusOK, TemplateResponse{Template: tmpl, Fields: tmpl.Fields()})
}

// handleTemplatesUpdate handles PUT /api/v1/templates/{name}
func (s *Server) handleTemplatesUpdate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req TemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name != "" && req.Name != name {
		s.sendError(w, http.StatusBadRequest, "Template name cannot be changed")
		return
	}

	tmpl := &template.Template{Name: name, Subject: req.Subject, Text: req.Text, HTML: req.HTML}
	if err := s.templates.Save(r.Context(), tmpl); err != nil {
		s.templateError(w, err, "Failed to save template")
		return
	}

	s.logger.Info("template saved via API", "name", name)
	s.sendJSON(w, http.StatusOK, TemplateResponse{Template: tmpl, Fields: tmpl.Fields()})
}

// handleTemplatesDelete handles DELETE /api/v1/templates/{name}
func (s *Server) handleTemplatesDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.templateError(w, err, "Failed to delete template")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTemplatesPreview handles POST /api/v1/templates/{name}/preview.
// Without a recipient id the first active recipient is used.
func (s *Server) handleTemplatesPreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tmpl, err := s.templates.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.templateError(w, err, "Failed to get template")
		return
	}

	var rcpt *recipient.Recipient
	if req.RecipientID > 0 {
		rcpt, err = s.recipients.Get(r.Context(), req.RecipientID)
		if err != nil {
			s.recipientError(w, err, "Failed to get recipient")
			return
		}
	} else {
		active, err := s.recipients.List(r.Context(), recipient.Filter{ActiveOnly: true, Limit: 1})
		if err != nil {
			s.recipientError(w, err, "Failed to list recipients")
			return
		}
		if len(active) == 0 {
			s.sendError(w, http.StatusNotFound, "No active recipients to preview with")
			return
		}
		rcpt = &active[0]
	}

	email, err := s.renderer.RenderTemplate(tmpl, rcpt)
	if err != nil {
		s.sendError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, email)
}

// templateError maps registry errors to status codes
func (s *Server) templateError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, template.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "Template not found")
	case errors.Is(err, template.ErrAlreadyExists):
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, template.ErrInvalid):
		s.sendError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		s.sendError(w, http.StatusInternalServerError, fallback)
	}
}
