package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/campaigner/internal/analytics"
	"github.com/foxzi/campaigner/internal/api"
	"github.com/foxzi/campaigner/internal/campaign"
	"github.com/foxzi/campaigner/internal/config"
	"github.com/foxzi/campaigner/internal/credential"
	"github.com/foxzi/campaigner/internal/dkim"
	"github.com/foxzi/campaigner/internal/headers"
	"github.com/foxzi/campaigner/internal/logging"
	"github.com/foxzi/campaigner/internal/mailbox"
	"github.com/foxzi/campaigner/internal/metrics"
	"github.com/foxzi/campaigner/internal/ratelimit"
	"github.com/foxzi/campaigner/internal/recipient"
	"github.com/foxzi/campaigner/internal/render"
	"github.com/foxzi/campaigner/internal/sandbox"
	"github.com/foxzi/campaigner/internal/template"
	campaignerTLS "github.com/foxzi/campaigner/internal/tls"
	"github.com/foxzi/campaigner/internal/transport"
)

// MaxAuthAttempts bounds password re-prompts after the server rejects a login
const MaxAuthAttempts = 3

// App wires the stores, the sender and the dispatcher together
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Version string

	Recipients  *recipient.Store
	Templates   *template.Registry
	Analytics   *analytics.Recorder
	Limiter     *ratelimit.Limiter
	Sandbox     *sandbox.Storage
	Collector   *metrics.Collector
	SendLog     *logging.SendLog
	Credentials *credential.Source
	SMTP        *transport.SMTPSender
	Renderer    *render.Renderer
	Dispatcher  *campaign.Dispatcher

	// Sender is the SMTP sender, wrapped by the sandbox unless it is off
	Sender transport.Sender

	db        *bolt.DB
	logCloser io.Closer
}

// New opens every store and builds the application
func New(cfg *config.Config, version string) (*App, error) {
	logger, logCloser, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:      cfg,
		Logger:      logger,
		Version:     version,
		Credentials: credential.New(cfg.Credentials),
		logCloser:   logCloser,
	}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	a.Recipients, err = recipient.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipient store: %w", err)
	}

	a.db, err = openBolt(cfg.Storage.DataPath)
	if err != nil {
		return nil, err
	}

	if a.Templates, err = template.NewRegistry(a.db); err != nil {
		return nil, err
	}
	if a.Analytics, err = analytics.NewRecorder(a.db); err != nil {
		return nil, err
	}
	if a.Sandbox, err = sandbox.NewStorage(a.db); err != nil {
		return nil, err
	}

	var opts []campaign.Option
	opts = append(opts, campaign.WithDelay(cfg.Dispatch.Delay))

	if cfg.HeaderRules.HasRules() {
		opts = append(opts, campaign.WithHeaders(headers.NewProcessor(cfg.HeaderRules)))
	}

	if cfg.RateLimit.Enabled {
		if a.Limiter, err = ratelimit.NewLimiter(a.db, ratelimit.FromConfig(cfg.RateLimit)); err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		opts = append(opts, campaign.WithLimiter(a.Limiter))
		logger.Debug("rate limiting enabled")
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		a.Collector, err = metrics.NewCollector(a.db, m, a.Recipients, cfg.Storage.DataPath, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics collector: %w", err)
		}
		opts = append(opts, campaign.WithObserver(a.Collector))
	}

	if a.SendLog, err = logging.OpenSendLog(cfg.Logging.SendLogFile); err != nil {
		return nil, err
	}
	opts = append(opts, campaign.WithSendLog(a.SendLog))

	signer, err := dkim.NewSignerFromConfig(cfg.DKIM)
	if err != nil {
		return nil, err
	}
	if signer != nil {
		logger.Debug("DKIM signing enabled", "domain", signer.Domain(), "selector", signer.Selector())
	}
	a.SMTP = transport.NewSMTPSender(signer, logger.With("component", "smtp_client"))

	a.Sender = a.SMTP
	if cfg.Sandbox.Mode != config.SandboxModeOff {
		a.Sender = sandbox.NewSender(a.SMTP, a.Sandbox, cfg.Sandbox, logger.With("component", "sandbox_sender"))
		logger.Info("sandbox mode active", "mode", cfg.Sandbox.Mode, "redirect_to", cfg.Sandbox.RedirectTo)
	}

	a.Renderer = render.New(cfg.Brand)
	a.Dispatcher = campaign.New(a.Templates, a.Renderer, a.Sender, a.Analytics, logger, opts...)

	ready = true
	return a, nil
}

func openBolt(path string) (*bolt.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	return db, nil
}

// captureOnly reports whether campaign mail never leaves the machine
func (a *App) captureOnly() bool {
	return a.Config.Sandbox.Mode == config.SandboxModeCapture
}

// ConnectSMTP resolves the SMTP password and verifies the login. A
// rejected password is asked for again, up to MaxAuthAttempts times.
// In capture mode nothing is contacted.
func (a *App) ConnectSMTP(ctx context.Context) (transport.Config, error) {
	smtpCfg := a.Config.SMTP

	if a.captureOnly() {
		if smtpCfg.Sender == "" {
			return transport.Config{}, fmt.Errorf("smtp.sender is required to send mail")
		}
		return transport.FromConfig(smtpCfg, ""), nil
	}

	if err := a.Config.CheckSMTP(); err != nil {
		return transport.Config{}, err
	}

	password, err := a.Credentials.Password(credential.KindSMTP, smtpCfg.Username, smtpCfg.Password)
	if err != nil {
		return transport.Config{}, fmt.Errorf("failed to get SMTP password: %w", err)
	}

	for attempt := 1; ; attempt++ {
		cfg := transport.FromConfig(smtpCfg, password)
		err := a.SMTP.Verify(ctx, cfg)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, transport.ErrAuth) || attempt >= MaxAuthAttempts {
			return transport.Config{}, err
		}

		a.Logger.Warn("SMTP login rejected", "username", smtpCfg.Username, "attempt", attempt)
		if password, err = a.Credentials.Prompt(credential.KindSMTP, smtpCfg.Username); err != nil {
			return transport.Config{}, err
		}
	}
}

// WithMailbox runs fn with an IMAP client. When the server rejects the
// login the password is asked for again, up to MaxAuthAttempts times.
func (a *App) WithMailbox(ctx context.Context, fn func(*mailbox.Client) error) error {
	imapCfg := a.Config.IMAP
	if err := a.Config.CheckIMAP(); err != nil {
		return err
	}

	password, err := a.Credentials.Password(credential.KindIMAP, imapCfg.Username, imapCfg.Password)
	if err != nil {
		return fmt.Errorf("failed to get IMAP password: %w", err)
	}

	logger := a.Logger.With("component", "mailbox")
	for attempt := 1; ; attempt++ {
		err := fn(mailbox.NewClient(imapCfg, password, logger))
		if !errors.Is(err, mailbox.ErrAuth) || attempt >= MaxAuthAttempts {
			return err
		}

		logger.Warn("IMAP login rejected", "username", imapCfg.Username, "attempt", attempt)
		if password, err = a.Credentials.Prompt(credential.KindIMAP, imapCfg.Username); err != nil {
			return err
		}
	}
}

// RunCampaign selects recipients and dispatches the campaign. An empty
// templateName sends the built-in personalized email.
func (a *App) RunCampaign(ctx context.Context, templateName string, ids []int64, opts campaign.Options) (*campaign.Report, error) {
	recipients, err := campaign.Select(ctx, a.Recipients, ids)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no active recipients")
	}

	if templateName != "" {
		// Fail before asking for a password
		if _, err := a.Templates.Get(ctx, templateName); err != nil {
			return nil, err
		}
	}

	var cfg transport.Config
	if !opts.DryRun {
		if cfg, err = a.ConnectSMTP(ctx); err != nil {
			return nil, err
		}
	}

	report, err := a.Dispatcher.Send(ctx, recipients, templateName, cfg, opts)
	a.writeMetrics()
	return report, err
}

// SendMessage submits a single message, such as a mailbox reply
func (a *App) SendMessage(ctx context.Context, msg *transport.Message) error {
	cfg, err := a.ConnectSMTP(ctx)
	if err != nil {
		return err
	}
	if err := a.Sender.Send(ctx, cfg, msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	a.Logger.Info("message sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

// writeMetrics persists counters and refreshes the textfile after a CLI run
func (a *App) writeMetrics() {
	if a.Collector == nil {
		return
	}
	if err := a.Collector.Flush(); err != nil {
		a.Logger.Warn("failed to persist metrics", "error", err)
	}
	if path := a.Config.Metrics.TextfilePath; path != "" {
		a.Collector.Refresh(context.Background())
		if err := a.Collector.Metrics().WriteToTextfile(path); err != nil {
			a.Logger.Warn("failed to write metrics textfile", "error", err)
		}
	}
}

// Serve runs the HTTP API until a signal arrives or the server fails
func (a *App) Serve(ctx context.Context) error {
	// The password is resolved once; API requests cannot answer a prompt
	transportCfg, smtpErr := a.ConnectSMTP(ctx)
	if smtpErr != nil {
		a.Logger.Warn("campaign sends via API are unavailable", "error", smtpErr)
	}

	tlsConfig, acmeManager, err := campaignerTLS.ServerConfig(a.Config.API.TLS)
	if err != nil {
		return err
	}
	if acmeManager != nil {
		a.Logger.Info("ACME (Let's Encrypt) enabled", "domains", acmeManager.Domains())
	} else if tlsConfig != nil {
		a.Logger.Info("TLS enabled with manual certificates")
	}

	apiServer := api.NewServer(api.Options{
		Config:     a.Config,
		Recipients: a.Recipients,
		Templates:  a.Templates,
		Analytics:  a.Analytics,
		Dispatcher: a.Dispatcher,
		Renderer:   a.Renderer,
		Transport: func(ctx context.Context) (transport.Config, error) {
			if smtpErr != nil {
				return transport.Config{}, fmt.Errorf("SMTP unavailable: %w", smtpErr)
			}
			return transportCfg, nil
		},
		Limiter:   a.Limiter,
		Sandbox:   a.Sandbox,
		Collector: a.Collector,
		TLSConfig: tlsConfig,
		Version:   a.Version,
		Logger:    a.Logger.With("component", "api"),
	})

	a.Logger.Info("starting campaigner",
		"version", a.Version,
		"api_addr", a.Config.API.ListenAddr,
		"sandbox_mode", a.Config.Sandbox.Mode,
		"metrics", a.Config.Metrics.Enabled,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.Collector != nil {
		a.Collector.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case err := <-errCh:
		serveErr = fmt.Errorf("api server: %w", err)
		a.Logger.Error("server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("api server shutdown error", "error", err)
	}

	return serveErr
}

// ServeSandbox runs the local capture SMTP server until a signal arrives
func (a *App) ServeSandbox(ctx context.Context) error {
	server := sandbox.NewServer(a.Sandbox, a.Config.Sandbox, a.Logger.With("component", "sandbox_server"))

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("sandbox server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// Close persists metrics and releases every store. It is safe on a
// partially built App.
func (a *App) Close() error {
	var errs []error

	if a.Collector != nil {
		if err := a.Collector.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}
	if a.SendLog != nil {
		if err := a.SendLog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("send log: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("data file: %w", err))
		}
	}
	if a.Recipients != nil {
		if err := a.Recipients.Close(); err != nil {
			errs = append(errs, fmt.Errorf("recipient store: %w", err))
		}
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}

	return errors.Join(errs...)
}
