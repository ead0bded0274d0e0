package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/foxzi/campaigner/internal/analytics"
	"github.com/foxzi/campaigner/internal/campaign"
	"github.com/foxzi/campaigner/internal/config"
	"github.com/foxzi/campaigner/internal/ipfilter"
	"github.com/foxzi/campaigner/internal/metrics"
	"github.com/foxzi/campaigner/internal/ratelimit"
	"github.com/foxzi/campaigner/internal/recipient"
	"github.com/foxzi/campaigner/internal/render"
	"github.com/foxzi/campaigner/internal/sandbox"
	"github.com/foxzi/campaigner/internal/template"
	"github.com/foxzi/campaigner/internal/transport"
)

// TransportFunc resolves the SMTP settings used for an API-triggered send
type TransportFunc func(ctx context.Context) (transport.Config, error)

// Options holds the server dependencies. Limiter, Sandbox and Collector
// may be nil.
type Options struct {
	Config     *config.Config
	Recipients *recipient.Store
	Templates  *template.Registry
	Analytics  *analytics.Recorder
	Dispatcher *campaign.Dispatcher
	Renderer   *render.Renderer
	Transport  TransportFunc
	Limiter    *ratelimit.Limiter
	Sandbox    *sandbox.Storage
	Collector  *metrics.Collector
	TLSConfig  *tls.Config // serve HTTPS when set
	Version    string
	Logger     *slog.Logger
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     *config.Config
	recipients *recipient.Store
	templates  *template.Registry
	analytics  *analytics.Recorder
	dispatcher *campaign.Dispatcher
	renderer   *render.Renderer
	transport  TransportFunc
	limiter    *ratelimit.Limiter
	sandbox    *sandbox.Storage
	collector  *metrics.Collector
	filter     *ipfilter.Filter
	tlsConfig  *tls.Config
	version    string
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		config:     opts.Config,
		recipients: opts.Recipients,
		templates:  opts.Templates,
		analytics:  opts.Analytics,
		dispatcher: opts.Dispatcher,
		renderer:   opts.Renderer,
		transport:  opts.Transport,
		limiter:    opts.Limiter,
		sandbox:    opts.Sandbox,
		collector:  opts.Collector,
		tlsConfig:  opts.TLSConfig,
		version:    opts.Version,
		logger:     opts.Logger,
		startTime:  time.Now(),
	}
	s.filter = ipfilter.New(opts.Config.API.AllowedIPs, opts.Logger, ipfilter.TrustProxy(opts.Config.API.TrustProxy))

	s.setupRoutes()
	return s
}

// Handler returns the root handler, used by tests and embedding servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	if s.config.API.TrustProxy {
		s.router.Use(middleware.RealIP)
	}
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.filter.HTTPMiddleware)
	s.router.Use(metrics.HTTPMiddleware(s.collector))

	// Preflight requests carry no API key, so CORS runs before auth
	if len(s.config.API.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.API.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	if s.config.Metrics.Enabled && s.collector != nil {
		s.router.Handle(s.config.Metrics.Path, s.collector.Metrics().Handler())
	}

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/recipients", func(r chi.Router) {
			r.Get("/", s.handleRecipientsList)
			r.Post("/", s.handleRecipientsCreate)
			r.Post("/import", s.handleRecipientsImport)
			r.Post("/backup", s.handleRecipientsBackup)
			r.Get("/{id}", s.handleRecipientsGet)
			r.Patch("/{id}", s.handleRecipientsUpdate)
			r.Post("/{id}/deactivate", s.handleRecipientsDeactivate)
			r.Post("/{id}/restore", s.handleRecipientsRestore)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleTemplatesList)
			r.Post("/", s.handleTemplatesCreate)
			r.Get("/{name}", s.handleTemplatesGet)
			r.Put("/{name}", s.handleTemplatesUpdate)
			r.Delete("/{name}", s.handleTemplatesDelete)
			r.Post("/{name}/preview", s.handleTemplatesPreview)
		})

		r.Post("/campaigns/send", s.handleCampaignSend)

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/", s.handleAnalyticsList)
			r.Get("/export", s.handleAnalyticsExport)
			r.Get("/{campaign}", s.handleAnalyticsGet)
		})

		r.Route("/sandbox", func(r chi.Router) {
			r.Get("/messages", s.handleSandboxList)
			r.Get("/messages/{id}", s.handleSandboxGet)
			r.Get("/messages/{id}/raw", s.handleSandboxRaw)
			r.Delete("/messages", s.handleSandboxClear)
			r.Delete("/messages/{id}", s.handleSandboxDelete)
			r.Get("/stats", s.handleSandboxStats)
		})

		r.Get("/ratelimits", s.handleRateLimitsList)
		r.Get("/ratelimits/{level}/{key}", s.handleRateLimitStats)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.API.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.API.ReadTimeout,
		WriteTimeout: s.config.API.WriteTimeout,
		IdleTimeout:  s.config.API.IdleTimeout,
		TLSConfig:    s.tlsConfig,
	}

	s.logger.Info("starting HTTP API server",
		"addr", s.config.API.ListenAddr,
		"ip_filter", s.filter.Enabled(),
		"tls", s.tlsConfig != nil,
	)
	if s.tlsConfig != nil {
		// Certificates come from TLSConfig
		return s.httpServer.ListenAndServeTLS("", "")
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	Recipients int    `json:"active_recipients"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	}

	n, err := s.recipients.Count(r.Context(), true)
	if err != nil {
		s.logger.Error("health check failed", "error", err)
		resp.Status = "degraded"
		s.sendJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Recipients = n

	s.sendJSON(w, http.StatusOK, resp)
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// decodeJSON decodes the request body into v, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

const maxBodyBytes = 10 << 20
