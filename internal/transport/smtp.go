package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/foxzi/campaigner/internal/config"
	"github.com/foxzi/campaigner/internal/dkim"
)

const defaultTimeout = 30 * time.Second

// SMTPSender submits messages to an authenticated SMTP server
type SMTPSender struct {
	signer *dkim.Signer
	logger *slog.Logger
	now    func() time.Time
}

// NewSMTPSender creates a sender. signer may be nil.
func NewSMTPSender(signer *dkim.Signer, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{
		signer: signer,
		logger: logger,
		now:    time.Now,
	}
}

// Send opens a connection, authenticates and submits msg
func (s *SMTPSender) Send(ctx context.Context, cfg Config, in *Message) error {
	msg := *in
	if msg.From == "" {
		msg.From = cfg.From
	}

	data, err := Build(&msg, s.now())
	if err != nil {
		return &SendError{Kind: KindGeneric, Stage: "build", Err: err}
	}
	data = s.sign(data)

	client, stop, err := s.connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer stop()
	defer client.Close()

	if err := client.Mail(msg.From, nil); err != nil {
		return classify(ctx, err, "MAIL FROM")
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt, nil); err != nil {
			return classify(ctx, err, "RCPT TO")
		}
	}

	wc, err := client.Data()
	if err != nil {
		return classify(ctx, err, "DATA")
	}
	if _, err := bytes.NewReader(data).WriteTo(wc); err != nil {
		wc.Close()
		return classify(ctx, err, "DATA")
	}
	if err := wc.Close(); err != nil {
		return classify(ctx, err, "DATA")
	}

	if err := client.Quit(); err != nil {
		s.logger.Debug("QUIT failed after delivery", "error", err)
	}

	s.logger.Info("message submitted",
		"server", cfg.Addr(),
		"from", msg.From,
		"to", msg.To,
		"size", len(data),
	)
	return nil
}

// Verify connects and authenticates without sending anything
func (s *SMTPSender) Verify(ctx context.Context, cfg Config) error {
	client, stop, err := s.connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer stop()
	defer client.Close()

	if err := client.Quit(); err != nil {
		return classify(ctx, err, "QUIT")
	}
	return nil
}

func (s *SMTPSender) sign(data []byte) []byte {
	if s.signer == nil {
		return data
	}
	signed, err := s.signer.Sign(data)
	if err != nil {
		s.logger.Warn("DKIM signing failed, sending unsigned",
			"domain", s.signer.Domain(),
			"error", err,
		)
		return data
	}
	return signed
}

// connect dials, greets, upgrades to TLS when configured and authenticates.
// The returned stop func releases the context watcher.
func (s *SMTPSender) connect(ctx context.Context, cfg Config) (*smtp.Client, func() bool, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	tlsConfig := &tls.Config{
		ServerName:         cfg.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	netDialer := &net.Dialer{Timeout: timeout}

	var conn net.Conn
	var err error
	if cfg.TLSMode == config.TLSModeImplicit {
		dialer := &tls.Dialer{NetDialer: netDialer, Config: tlsConfig}
		conn, err = dialer.DialContext(ctx, "tcp", cfg.Addr())
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", cfg.Addr())
	}
	if err != nil {
		return nil, nil, &SendError{Kind: KindConnection, Stage: "connect", Err: err}
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })

	var client *smtp.Client
	if cfg.TLSMode == config.TLSModeStartTLS {
		// The greeting and upgrade run before CommandTimeout can be set,
		// and go-smtp sends its own EHLO name here, so helo_name is not used.
		conn.SetDeadline(time.Now().Add(timeout))
		client, err = smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			stop()
			conn.Close()
			se := classifyConnect(ctx, err, "STARTTLS")
			se.Kind = KindConnection
			return nil, nil, se
		}
		conn.SetDeadline(time.Time{})
	} else {
		client = smtp.NewClient(conn)
	}
	client.CommandTimeout = timeout
	client.SubmissionTimeout = timeout

	fail := func(err error) (*smtp.Client, func() bool, error) {
		stop()
		client.Close()
		return nil, nil, err
	}

	if cfg.TLSMode != config.TLSModeStartTLS {
		helo := cfg.HeloName
		if helo == "" {
			helo = "localhost"
		}
		if err := client.Hello(helo); err != nil {
			return fail(classifyConnect(ctx, err, "EHLO"))
		}
	}

	if cfg.Username != "" {
		if err := authenticate(client, cfg); err != nil {
			return fail(classifyAuth(ctx, err))
		}
	}

	s.logger.Debug("connected to SMTP server", "server", cfg.Addr(), "tls_mode", cfg.TLSMode)
	return client, stop, nil
}

func authenticate(client *smtp.Client, cfg Config) error {
	var auth sasl.Client
	switch {
	case client.SupportsAuth(sasl.Plain):
		auth = sasl.NewPlainClient("", cfg.Username, cfg.Password)
	case client.SupportsAuth(sasl.Login):
		auth = sasl.NewLoginClient(cfg.Username, cfg.Password)
	default:
		return errors.New("server offers neither PLAIN nor LOGIN authentication")
	}
	return client.Auth(auth)
}

// classify maps an SMTP reply or I/O error to a SendError
func classify(ctx context.Context, err error, stage string) *SendError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &SendError{Kind: KindConnection, Stage: stage, Err: ctxErr}
	}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		kind := KindRejected
		if isAuthCode(smtpErr.Code) {
			kind = KindAuth
		}
		return &SendError{Kind: kind, Stage: stage, Code: smtpErr.Code, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return &SendError{Kind: KindConnection, Stage: stage, Err: err}
	}

	return &SendError{Kind: KindGeneric, Stage: stage, Err: err}
}

// classifyConnect treats every non-reply failure before AUTH as a connection problem
func classifyConnect(ctx context.Context, err error, stage string) *SendError {
	se := classify(ctx, err, stage)
	if se.Kind == KindGeneric {
		se.Kind = KindConnection
	}
	return se
}

// classifyAuth reports every rejected AUTH exchange as KindAuth
func classifyAuth(ctx context.Context, err error) *SendError {
	se := classify(ctx, err, "AUTH")
	if se.Kind == KindRejected || se.Kind == KindGeneric {
		se.Kind = KindAuth
	}
	return se
}

// isAuthCode matches replies that mean the credentials were refused or required
func isAuthCode(code int) bool {
	switch code {
	case 530, 534, 535, 538:
		return true
	}
	return false
}
