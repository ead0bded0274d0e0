package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxzi/campaigner/internal/headers"
	"github.com/foxzi/campaigner/internal/logging"
	"github.com/foxzi/campaigner/internal/ratelimit"
	"github.com/foxzi/campaigner/internal/recipient"
	"github.com/foxzi/campaigner/internal/render"
	"github.com/foxzi/campaigner/internal/template"
	"github.com/foxzi/campaigner/internal/transport"
)

// DefaultDelay is the pause after every send attempt
const DefaultDelay = time.Second

// TemplateSource looks templates up by name
type TemplateSource interface {
	Get(ctx context.Context, name string) (*template.Template, error)
}

// Recorder stores successful sends for analytics
type Recorder interface {
	RecordSend(ctx context.Context, recipientID, campaignID string) error
}

// Limiter enforces persisted quotas
type Limiter interface {
	Allow(ctx context.Context, req *ratelimit.Request) (*ratelimit.Result, error)
}

// Observer receives per-recipient and per-run counts
type Observer interface {
	TrackSent(campaign string)
	TrackFailed(campaign, reason string)
	TrackSkipped(campaign string)
	TrackDispatch(campaign string, started time.Time, elapsed time.Duration)
	TrackRateLimitExceeded(level string)
}

// Dispatcher sends a campaign to recipients one at a time
type Dispatcher struct {
	templates TemplateSource
	renderer  *render.Renderer
	sender    transport.Sender
	recorder  Recorder
	limiter   Limiter
	sendLog   *logging.SendLog
	observer  Observer
	headers   *headers.Processor
	delay     time.Duration
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithDelay sets the pause after each send attempt
func WithDelay(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.delay = d }
}

// WithLimiter checks quotas before each send
func WithLimiter(l Limiter) Option {
	return func(disp *Dispatcher) { disp.limiter = l }
}

// WithSendLog writes a line per recipient to the send log
func WithSendLog(l *logging.SendLog) Option {
	return func(disp *Dispatcher) { disp.sendLog = l }
}

// WithObserver reports counts to o
func WithObserver(o Observer) Option {
	return func(disp *Dispatcher) { disp.observer = o }
}

// WithHeaders applies header rules to every campaign message
func WithHeaders(p *headers.Processor) Option {
	return func(disp *Dispatcher) { disp.headers = p }
}

// New creates a dispatcher
func New(templates TemplateSource, renderer *render.Renderer, sender transport.Sender, recorder Recorder, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		templates: templates,
		renderer:  renderer,
		sender:    sender,
		recorder:  recorder,
		delay:     DefaultDelay,
		logger:    logger.With("component", "dispatcher"),
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send renders and sends the campaign to recipients in order. An empty
// templateName uses the built-in personalized email.
//
// A missing template is returned as template.ErrNotFound before anything
// is sent. Per-recipient problems become outcomes and never stop the
// batch. When ctx is cancelled the remaining recipients are reported as
// skipped and the partial report is returned with ctx.Err().
func (d *Dispatcher) Send(ctx context.Context, recipients []recipient.Recipient, templateName string, cfg transport.Config, opts Options) (*Report, error) {
	var tmpl *template.Template
	if templateName != "" {
		var err error
		tmpl, err = d.templates.Get(ctx, templateName)
		if err != nil {
			return nil, err
		}
	}

	if opts.Limit > 0 && len(recipients) > opts.Limit {
		recipients = recipients[:opts.Limit]
	}

	campaignID := ID(templateName)
	started := d.now()
	report := newReport(campaignID, opts.DryRun, started)
	logger := d.logger.With("campaign", campaignID, "run_id", report.RunID)

	logger.Info("campaign started", "recipients", len(recipients), "dry_run", opts.DryRun)

	var runErr error
	for i := range recipients {
		rcpt := recipients[i]

		if err := ctx.Err(); err != nil {
			runErr = err
			for _, rest := range recipients[i:] {
				d.skip(report, rest, "cancelled: "+err.Error())
			}
			break
		}

		email, err := d.render(tmpl, &rcpt)
		if err != nil {
			d.fail(report, rcpt, "render", fmt.Sprintf("Render Error: %v", err))
			logger.Warn("failed to render email", "email", rcpt.Email, "error", err)
			continue
		}

		rules, err := d.headers.Resolve(recipientDomain(rcpt.Email), d.renderer.Fields(&rcpt))
		if err != nil {
			d.fail(report, rcpt, "render", fmt.Sprintf("Header Error: %v", err))
			logger.Warn("failed to resolve header rules", "email", rcpt.Email, "error", err)
			continue
		}

		if opts.DryRun {
			report.add(Outcome{Recipient: rcpt, Status: StatusRendered, Email: email})
			continue
		}

		if reason, ok := d.allow(ctx, cfg.From, rcpt.Email); !ok {
			d.skip(report, rcpt, reason)
			continue
		}

		msg := &transport.Message{
			From:    cfg.From,
			To:      []string{rcpt.Email},
			Subject: email.Subject,
			Text:    email.Text,
			HTML:    email.HTML,
			Headers: rules,
		}
		if err := d.sender.Send(ctx, cfg, msg); err != nil {
			d.fail(report, rcpt, transport.KindOf(err).String(), sendErrorDetails(err))
			logger.Warn("failed to send email", "email", rcpt.Email, "error", err)
		} else {
			d.sent(ctx, report, rcpt, campaignID, logger)
		}

		// A cancelled wait is picked up at the loop head
		_ = d.sleep(ctx, d.delay)
	}

	report.Duration = d.now().Sub(started)
	if d.observer != nil && !opts.DryRun {
		d.observer.TrackDispatch(campaignID, started, report.Duration)
	}

	logger.Info("campaign finished",
		"sent", report.Sent,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"duration", report.Duration,
	)
	return report, runErr
}

func (d *Dispatcher) render(tmpl *template.Template, rcpt *recipient.Recipient) (*render.Email, error) {
	if tmpl == nil {
		return d.renderer.RenderPersonalized(rcpt)
	}
	return d.renderer.RenderTemplate(tmpl, rcpt)
}

// allow consults the limiter. Limiter storage errors do not block sending.
func (d *Dispatcher) allow(ctx context.Context, sender, email string) (string, bool) {
	if d.limiter == nil {
		return "", true
	}

	result, err := d.limiter.Allow(ctx, &ratelimit.Request{Sender: sender, Recipient: email})
	if err != nil {
		d.logger.Warn("rate limit check failed, sending anyway", "email", email, "error", err)
		return "", true
	}
	if result.Allowed {
		return "", true
	}

	if d.observer != nil {
		d.observer.TrackRateLimitExceeded(string(result.DeniedBy))
	}
	return fmt.Sprintf("rate limit exceeded: %s %s, retry after %s",
		result.DeniedBy, result.DeniedKey, result.RetryAfter.Round(time.Second)), false
}

func (d *Dispatcher) sent(ctx context.Context, report *Report, rcpt recipient.Recipient, campaignID string, logger *slog.Logger) {
	report.add(Outcome{Recipient: rcpt, Status: StatusSent})
	d.writeSendLog(rcpt.Email, logging.StatusDelivered, "")
	if d.observer != nil {
		d.observer.TrackSent(campaignID)
	}

	// The message is already out; analytics failures are only logged
	if err := d.recorder.RecordSend(ctx, recipient.LocalPart(rcpt.Email), campaignID); err != nil {
		logger.Error("failed to record send", "email", rcpt.Email, "error", err)
	}
}

func (d *Dispatcher) fail(report *Report, rcpt recipient.Recipient, kind, details string) {
	report.add(Outcome{Recipient: rcpt, Status: StatusFailed, Reason: details, Kind: kind})
	d.writeSendLog(rcpt.Email, logging.StatusFailed, details)
	if d.observer != nil {
		d.observer.TrackFailed(report.CampaignID, kind)
	}
}

func (d *Dispatcher) skip(report *Report, rcpt recipient.Recipient, reason string) {
	report.add(Outcome{Recipient: rcpt, Status: StatusSkipped, Reason: reason})
	if report.DryRun {
		return
	}
	d.writeSendLog(rcpt.Email, logging.StatusSkipped, reason)
	if d.observer != nil {
		d.observer.TrackSkipped(report.CampaignID)
	}
}

func (d *Dispatcher) writeSendLog(email, status, details string) {
	if err := d.sendLog.Record(email, status, details); err != nil {
		d.logger.Warn("failed to write send log", "error", err)
	}
}

// sendErrorDetails formats a transport failure for the send log
func sendErrorDetails(err error) string {
	var se *transport.SendError
	if errors.As(err, &se) {
		return "SMTP Error: " + err.Error()
	}
	return "Unexpected Error: " + err.Error()
}

func recipientDomain(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return strings.ToLower(email[i+1:])
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
