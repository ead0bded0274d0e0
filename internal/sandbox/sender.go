package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/campaigner/internal/config"
	"github.com/foxzi/campaigner/internal/transport"
)

// Sender wraps a real transport and intercepts campaign mail according to
// the sandbox mode
type Sender struct {
	real       transport.Sender
	storage    *Storage
	mode       string
	redirectTo []string
	logger     *slog.Logger
	now        func() time.Time
}

// NewSender creates a sandbox sender. real may be nil in capture mode.
func NewSender(real transport.Sender, storage *Storage, cfg config.SandboxConfig, logger *slog.Logger) *Sender {
	return &Sender{
		real:       real,
		storage:    storage,
		mode:       cfg.Mode,
		redirectTo: cfg.RedirectTo,
		logger:     logger,
		now:        time.Now,
	}
}

// Send routes the message based on the sandbox mode
func (s *Sender) Send(ctx context.Context, cfg transport.Config, msg *transport.Message) error {
	switch s.mode {
	case config.SandboxModeCapture:
		return s.capture(ctx, cfg, msg)
	case config.SandboxModeRedirect:
		return s.redirect(ctx, cfg, msg)
	default:
		return s.real.Send(ctx, cfg, msg)
	}
}

// capture stores the message instead of sending
func (s *Sender) capture(ctx context.Context, cfg transport.Config, msg *transport.Message) error {
	captured, err := s.record(ctx, cfg, msg, msg.To, nil, SourceCapture)
	if err != nil {
		return err
	}

	s.logger.Info("sandbox: message captured",
		"id", captured.ID,
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

// redirect delivers to the configured addresses and keeps an audit copy
func (s *Sender) redirect(ctx context.Context, cfg transport.Config, msg *transport.Message) error {
	redirected := *msg
	redirected.To = s.redirectTo

	if _, err := s.record(ctx, cfg, &redirected, s.redirectTo, msg.To, SourceRedirect); err != nil {
		s.logger.Warn("sandbox: failed to save redirected message", "error", err)
	}

	s.logger.Info("sandbox: redirecting message",
		"original_to", msg.To,
		"redirect_to", s.redirectTo,
	)
	return s.real.Send(ctx, cfg, &redirected)
}

func (s *Sender) record(ctx context.Context, cfg transport.Config, msg *transport.Message, to, originalTo []string, source string) (*Message, error) {
	from := msg.From
	if from == "" {
		from = cfg.From
	}

	built := *msg
	built.From = from
	data, err := transport.Build(&built, s.now())
	if err != nil {
		return nil, &transport.SendError{Kind: transport.KindGeneric, Stage: "build", Err: err}
	}

	captured := &Message{
		ID:         uuid.NewString(),
		From:       from,
		To:         to,
		OriginalTo: originalTo,
		Subject:    msg.Subject,
		Data:       data,
		Source:     source,
		CapturedAt: s.now(),
	}
	if err := s.storage.Save(ctx, captured); err != nil {
		return nil, fmt.Errorf("sandbox: failed to save message: %w", err)
	}
	return captured, nil
}
