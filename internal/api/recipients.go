package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/campaigner/internal/recipient"
)

// RecipientListResponse is the response for GET /api/v1/recipients
type RecipientListResponse struct {
	Recipients []recipient.Recipient `json:"recipients"`
	Total      int                   `json:"total"`
}

// RecipientRequest is the request body for POST /api/v1/recipients
type RecipientRequest struct {
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	Company          *string `json:"company,omitempty"`
	LastPurchaseDate *string `json:"last_purchase_date,omitempty"`
}

// handleRecipientsList handles GET /api/v1/recipients
func (s *Server) handleRecipientsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := recipient.Filter{
		ActiveOnly: q.Get("active") == "true",
		Search:     q.Get("search"),
		Limit:      100,
	}

	if limit := q.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			filter.Limit = min(l, 1000)
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	list, err := s.recipients.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list recipients", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list recipients")
		return
	}
	if list == nil {
		list = []recipient.Recipient{}
	}

	s.sendJSON(w, http.StatusOK, RecipientListResponse{Recipients: list, Total: len(list)})
}

// handleRecipientsCreate handles POST /api/v1/recipients
func (s *Server) handleRecipientsCreate(w http.ResponseWriter, r *http.Request) {
	var req RecipientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rcpt := &recipient.Recipient{
		Name:             req.Name,
		Email:            req.Email,
		Company:          req.Company,
		LastPurchaseDate: req.LastPurchaseDate,
	}
	if err := s.recipients.Add(r.Context(), rcpt); err != nil {
		s.recipientError(w, err, "Failed to add recipient")
		return
	}

	s.logger.Info("recipient added via API", "id", rcpt.ID, "email", rcpt.Email)
	s.sendJSON(w, http.StatusCreated, rcpt)
}

// handleRecipientsGet handles GET /api/v1/recipients/{id}
func (s *Server) handleRecipientsGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.recipientID(w, r)
	if !ok {
		return
	}

	rcpt, err := s.recipients.Get(r.Context(), id)
	if err != nil {
		s.recipientError(w, err, "Failed to get recipient")
		return
	}

	s.sendJSON(w, http.StatusOK, rcpt)
}

// handleRecipientsUpdate handles PATCH /api/v1/recipients/{id}
func (s *Server) handleRecipientsUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.recipientID(w, r)
	if !ok {
		return
	}

	var u recipient.Update
	if err := decodeJSON(w, r, &u); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if u.IsEmpty() {
		s.sendError(w, http.StatusBadRequest, "No fields to update")
		return
	}

	if err := s.recipients.Update(r.Context(), id, u); err != nil {
		s.recipientError(w, err, "Failed to update recipient")
		return
	}

	rcpt, err := s.recipients.Get(r.Context(), id)
	if err != nil {
		s.recipientError(w, err, "Failed to get recipient")
		return
	}
	s.sendJSON(w, http.StatusOK, rcpt)
}

// handleRecipientsDeactivate handles POST /api/v1/recipients/{id}/deactivate
func (s *Server) handleRecipientsDeactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.recipientID(w, r)
	if !ok {
		return
	}

	if err := s.recipients.Deactivate(r.Context(), id); err != nil {
		s.recipientError(w, err, "Failed to deactivate recipient")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRecipientsRestore handles POST /api/v1/recipients/{id}/restore
func (s *Server) handleRecipientsRestore(w http.ResponseWriter, r *http.Request) {
	id, ok := s.recipientID(w, r)
	if !ok {
		return
	}

	if err := s.recipients.Restore(r.Context(), id); err != nil {
		s.recipientError(w, err, "Failed to restore recipient")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRecipientsImport handles POST /api/v1/recipients/import with a CSV body
func (s *Server) handleRecipientsImport(w http.ResponseWriter, r *http.Request) {
	result, err := s.recipients.ImportCSV(r.Context(), http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("recipients imported via API",
		"imported", result.Imported,
		"duplicates", result.Duplicates,
		"skipped", result.Skipped,
	)
	s.sendJSON(w, http.StatusOK, result)
}

// handleRecipientsBackup handles POST /api/v1/recipients/backup
func (s *Server) handleRecipientsBackup(w http.ResponseWriter, r *http.Request) {
	path, err := s.recipients.Backup(r.Context(), s.config.Storage.BackupDir, time.Now())
	if err != nil {
		s.logger.Error("backup failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to back up recipients")
		return
	}
	s.sendJSON(w, http.StatusCreated, map[string]string{"path": path})
}

func (s *Server) recipientID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.sendError(w, http.StatusBadRequest, "Invalid recipient id")
		return 0, false
	}
	return id, true
}

// recipientError maps store errors to status codes
func (s *Server) recipientError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, recipient.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "Recipient not found")
	case errors.Is(err, recipient.ErrDuplicate), errors.Is(err, recipient.ErrDuplicateOnUpdate):
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, recipient.ErrInvalid):
		s.sendError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		s.sendError(w, http.StatusInternalServerError, fallback)
	}
}
