package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for campaigner
type Metrics struct {
	// Dispatch counters, labelled by campaign id
	RecipientsSentTotal     *prometheus.CounterVec
	RecipientsFailedTotal   *prometheus.CounterVec
	RecipientsSkippedTotal  *prometheus.CounterVec
	DispatchDurationSeconds *prometheus.HistogramVec
	LastDispatchTimestamp   *prometheus.GaugeVec

	// Rate limiting
	RateLimitExceededTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// Store gauges
	RecipientsActive prometheus.Gauge
	StorageUsedBytes prometheus.Gauge
	UptimeSeconds    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RecipientsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_recipients_sent_total",
				Help: "Total number of recipients a campaign message was submitted to",
			},
			[]string{"campaign"},
		),
		RecipientsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_recipients_failed_total",
				Help: "Total number of recipients whose send failed",
			},
			[]string{"campaign", "reason"},
		),
		RecipientsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_recipients_skipped_total",
				Help: "Total number of recipients left unsent by a cancelled or throttled run",
			},
			[]string{"campaign"},
		),
		DispatchDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campaigner_dispatch_duration_seconds",
				Help:    "Wall time of a campaign run in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"campaign"},
		),
		LastDispatchTimestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "campaigner_last_dispatch_timestamp_seconds",
				Help: "Unix time of the last finished campaign run",
			},
			[]string{"campaign"},
		),

		RateLimitExceededTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_ratelimit_exceeded_total",
				Help: "Total number of sends refused by a quota",
			},
			[]string{"level"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campaigner_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		RecipientsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "campaigner_recipients_active",
				Help: "Number of active recipients in the store",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "campaigner_storage_used_bytes",
				Help: "Size of the bbolt data file in bytes",
			},
		),
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "campaigner_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.RecipientsSentTotal,
		m.RecipientsFailedTotal,
		m.RecipientsSkippedTotal,
		m.DispatchDurationSeconds,
		m.LastDispatchTimestamp,
		m.RateLimitExceededTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.RecipientsActive,
		m.StorageUsedBytes,
		m.UptimeSeconds,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// WriteToTextfile writes the registry for the node_exporter textfile
// collector. Short CLI runs use this instead of being scraped.
func (m *Metrics) WriteToTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create textfile directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncRateLimitExceeded increments rate limit exceeded counter
func IncRateLimitExceeded(level string) {
	m := Global()
	if m != nil {
		m.RateLimitExceededTotal.WithLabelValues(level).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
