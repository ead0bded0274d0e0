package sandbox

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/foxzi/campaigner/internal/config"
	"github.com/foxzi/campaigner/internal/ipfilter"
)

// Backend implements smtp.Backend for the capture server
type Backend struct {
	storage  *Storage
	username string
	password string
	reject   map[string]bool
	filter   *ipfilter.Filter
	logger   *slog.Logger
	now      func() time.Time
}

// NewBackend creates a capture backend
func NewBackend(storage *Storage, cfg config.SandboxConfig, logger *slog.Logger) *Backend {
	reject := make(map[string]bool, len(cfg.Reject))
	for _, addr := range cfg.Reject {
		reject[strings.ToLower(addr)] = true
	}
	return &Backend{
		storage:  storage,
		username: cfg.Username,
		password: cfg.Password,
		reject:   reject,
		filter:   ipfilter.New(cfg.AllowedIPs, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// NewSession is called when a new SMTP connection is established
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	if !b.filter.AllowedAddr(c.Conn().RemoteAddr()) {
		b.logger.Warn("connection denied by IP filter", "remote_addr", c.Conn().RemoteAddr().String())
		return nil, &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      "Access denied",
		}
	}
	return NewSession(b, c), nil
}

func (b *Backend) authRequired() bool {
	return b.username != ""
}

// Server is a local SMTP server that stores every accepted message
// instead of relaying it
type Server struct {
	server *smtp.Server
	addr   string
	logger *slog.Logger
}

// NewServer creates a capture server from the sandbox section
func NewServer(storage *Storage, cfg config.SandboxConfig, logger *slog.Logger) *Server {
	srv := smtp.NewServer(NewBackend(storage, cfg, logger))
	srv.Domain = cfg.Domain
	srv.MaxMessageBytes = cfg.MaxMessageBytes
	srv.MaxRecipients = 100
	srv.ReadTimeout = time.Minute
	srv.WriteTimeout = time.Minute
	// Local rehearsal server, no TLS
	srv.AllowInsecureAuth = true

	return &Server{
		server: srv,
		addr:   cfg.ListenAddr,
		logger: logger,
	}
}

// ListenAndServe starts the capture server on the configured address
func (s *Server) ListenAndServe() error {
	s.server.Addr = s.addr
	s.logger.Info("starting sandbox SMTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Serve accepts connections on l
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("starting sandbox SMTP server", "addr", l.Addr().String())
	return s.server.Serve(l)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down sandbox SMTP server")
	return s.server.Shutdown(ctx)
}

// Close immediately closes the server
func (s *Server) Close() error {
	return s.server.Close()
}
