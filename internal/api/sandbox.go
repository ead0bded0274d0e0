package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/campaigner/internal/mailbox"
	"github.com/foxzi/campaigner/internal/sandbox"
)

// SandboxListResponse is the response for GET /api/v1/sandbox/messages
type SandboxListResponse struct {
	Messages []*sandbox.Message `json:"messages"`
	Total    int                `json:"total"`
}

// SandboxMessageDetailResponse is the response for GET /api/v1/sandbox/messages/{id}
type SandboxMessageDetailResponse struct {
	*sandbox.Message
	Text        string               `json:"text,omitempty"`
	HTML        string               `json:"html,omitempty"`
	Attachments []mailbox.Attachment `json:"attachments,omitempty"`
	Size        int                  `json:"size"`
}

// handleSandboxList handles GET /api/v1/sandbox/messages
func (s *Server) handleSandboxList(w http.ResponseWriter, r *http.Request) {
	if s.sandbox == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Sandbox storage not available")
		return
	}

	q := r.URL.Query()
	filter := sandbox.ListFilter{
		From:      q.Get("from"),
		Recipient: q.Get("to"),
		Source:    q.Get("source"),
		Limit:     100,
	}

	if limit := q.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			filter.Limit = min(l, 1000)
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			filter.Offset = min(o, 1000000)
		}
	}

	messages, err := s.sandbox.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list sandbox messages", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	if messages == nil {
		messages = []*sandbox.Message{}
	}

	s.sendJSON(w, http.StatusOK, SandboxListResponse{Messages: messages, Total: len(messages)})
}

// handleSandboxGet handles GET /api/v1/sandbox/messages/{id}
func (s *Server) handleSandboxGet(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.sandboxMessage(w, r)
	if !ok {
		return
	}

	parsed := mailbox.Parse(msg.Data)
	size := len(msg.Data)
	msg.Data = nil

	s.sendJSON(w, http.StatusOK, SandboxMessageDetailResponse{
		Message:     msg,
		Text:        parsed.Text,
		HTML:        parsed.HTML,
		Attachments: parsed.Attachments,
		Size:        size,
	})
}

// handleSandboxRaw handles GET /api/v1/sandbox/messages/{id}/raw
func (s *Server) handleSandboxRaw(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.sandboxMessage(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "message/rfc822")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+sanitizeFilename(msg.ID)+".eml\"")
	w.WriteHeader(http.StatusOK)
	w.Write(msg.Data)
}

// handleSandboxDelete handles DELETE /api/v1/sandbox/messages/{id}
func (s *Server) handleSandboxDelete(w http.ResponseWriter, r *http.Request) {
	if s.sandbox == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Sandbox storage not available")
		return
	}

	if err := s.sandbox.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Message not found")
			return
		}
		s.logger.Error("failed to delete sandbox message", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete message")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSandboxClear handles DELETE /api/v1/sandbox/messages
func (s *Server) handleSandboxClear(w http.ResponseWriter, r *http.Request) {
	if s.sandbox == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Sandbox storage not available")
		return
	}

	var olderThan time.Duration
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			s.sendError(w, http.StatusBadRequest, "Invalid older_than format (use Go duration: 24h, 30m)")
			return
		}
		olderThan = d
	}

	count, err := s.sandbox.Clear(r.Context(), olderThan)
	if err != nil {
		s.logger.Error("failed to clear sandbox", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to clear messages")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]int{"cleared": count})
}

// handleSandboxStats handles GET /api/v1/sandbox/stats
func (s *Server) handleSandboxStats(w http.ResponseWriter, r *http.Request) {
	if s.sandbox == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Sandbox storage not available")
		return
	}

	stats, err := s.sandbox.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to get sandbox stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}

	s.sendJSON(w, http.StatusOK, stats)
}

func (s *Server) sandboxMessage(w http.ResponseWriter, r *http.Request) (*sandbox.Message, bool) {
	if s.sandbox == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Sandbox storage not available")
		return nil, false
	}

	msg, err := s.sandbox.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Message not found")
			return nil, false
		}
		s.logger.Error("failed to get sandbox message", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get message")
		return nil, false
	}
	return msg, true
}

// sanitizeFilename keeps letters, digits, '-' and '_'
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, name)
}
