package sandbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// Session implements smtp.Session and smtp.AuthSession for go-smtp
type Session struct {
	backend  *Backend
	conn     *smtp.Conn
	from     string
	to       []string
	authUser string
	logger   *slog.Logger
}

// NewSession creates a new SMTP session
func NewSession(b *Backend, c *smtp.Conn) *Session {
	return &Session{
		backend: b,
		conn:    c,
		logger:  b.logger.With("remote_addr", c.Conn().RemoteAddr().String()),
	}
}

// AuthMechanisms returns supported authentication mechanisms
func (s *Session) AuthMechanisms() []string {
	if !s.backend.authRequired() {
		return nil
	}
	return []string{sasl.Plain}
}

// Auth handles authentication
func (s *Session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, errors.New("unsupported authentication mechanism")
	}

	return sasl.NewPlainServer(func(identity, username, password string) error {
		if identity != "" && identity != username {
			return errors.New("identity must be empty or match username")
		}
		if username != s.backend.username || password != s.backend.password {
			s.logger.Warn("authentication failed", "username", username)
			return smtp.ErrAuthFailed
		}

		s.authUser = username
		s.logger.Debug("authentication successful", "username", username)
		return nil
	}), nil
}

// Mail handles MAIL FROM command
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	if s.backend.authRequired() && s.authUser == "" {
		return &smtp.SMTPError{
			Code:         530,
			EnhancedCode: smtp.EnhancedCode{5, 7, 0},
			Message:      "Authentication required",
		}
	}

	s.from = from
	return nil
}

// Rcpt handles RCPT TO command
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	if s.backend.reject[strings.ToLower(to)] {
		s.logger.Debug("rejecting recipient", "to", to)
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "Mailbox unavailable",
		}
	}

	s.to = append(s.to, to)
	return nil
}

// Data stores the message
func (s *Session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return &smtp.SMTPError{
			Code:    442,
			Message: "Failed to read message data",
		}
	}

	msg := &Message{
		ID:         uuid.NewString(),
		From:       s.from,
		To:         s.to,
		Subject:    parseSubject(data),
		Data:       data,
		Source:     SourceSMTP,
		CapturedAt: s.backend.now(),
		ClientIP:   s.conn.Conn().RemoteAddr().String(),
		AuthUser:   s.authUser,
	}

	if err := s.backend.storage.Save(context.Background(), msg); err != nil {
		s.logger.Error("failed to store message", "error", err)
		return &smtp.SMTPError{
			Code:    451,
			Message: "Failed to store message",
		}
	}

	s.logger.Info("message captured",
		"id", msg.ID,
		"from", s.from,
		"to", s.to,
		"size", len(data),
	)
	return nil
}

// Reset resets the session state
func (s *Session) Reset() {
	s.from = ""
	s.to = nil
}

// Logout handles session logout
func (s *Session) Logout() error {
	return nil
}

// parseSubject returns the decoded Subject header, or "" when the message
// cannot be parsed
func parseSubject(data []byte) string {
	entity, err := message.Read(bytes.NewReader(data))
	if entity == nil {
		return ""
	}
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return ""
	}

	h := mail.Header{Header: entity.Header}
	subject, err := h.Subject()
	if err != nil {
		return h.Get("Subject")
	}
	return subject
}
