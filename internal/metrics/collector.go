package metrics

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// RecipientCounter reports the recipient store size for the active gauge
type RecipientCounter interface {
	Count(ctx context.Context, activeOnly bool) (int, error)
}

var bucketMetrics = []byte("metrics")

// ShadowCounters stores counter values so they survive between CLI runs
type ShadowCounters struct {
	RecipientsSent    map[string]float64 `json:"recipients_sent"`
	RecipientsFailed  map[string]float64 `json:"recipients_failed"`
	RecipientsSkipped map[string]float64 `json:"recipients_skipped"`
	LastDispatch      map[string]float64 `json:"last_dispatch"`
	RateLimitExceeded map[string]float64 `json:"ratelimit_exceeded"`
	APIRequests       map[string]float64 `json:"api_requests"`
	APIErrors         map[string]float64 `json:"api_errors"`
}

// Collector persists counters in bbolt and refreshes the store gauges
type Collector struct {
	db            *bolt.DB
	metrics       *Metrics
	recipients    RecipientCounter
	storagePath   string
	flushInterval time.Duration
	startTime     time.Time

	shadow ShadowCounters
	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a collector and restores persisted counters into m
func NewCollector(db *bolt.DB, m *Metrics, recipients RecipientCounter, storagePath string, flushInterval time.Duration) (*Collector, error) {
	if flushInterval == 0 {
		flushInterval = 10 * time.Second
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMetrics)
		return err
	})
	if err != nil {
		return nil, err
	}

	c := &Collector{
		db:            db,
		metrics:       m,
		recipients:    recipients,
		storagePath:   storagePath,
		flushInterval: flushInterval,
		startTime:     time.Now(),
		shadow: ShadowCounters{
			RecipientsSent:    make(map[string]float64),
			RecipientsFailed:  make(map[string]float64),
			RecipientsSkipped: make(map[string]float64),
			LastDispatch:      make(map[string]float64),
			RateLimitExceeded: make(map[string]float64),
			APIRequests:       make(map[string]float64),
			APIErrors:         make(map[string]float64),
		},
		stopCh: make(chan struct{}),
	}

	if err := c.loadCounters(); err != nil {
		return nil, err
	}

	return c, nil
}

// Metrics returns the registry-backed metrics the collector feeds
func (c *Collector) Metrics() *Metrics {
	return c.metrics
}

// Start begins periodic persistence and gauge refresh for long-running
// processes
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop stops the background loop and persists final values
func (c *Collector) Stop() error {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	c.wg.Wait()
	return c.Flush()
}

func (c *Collector) loadCounters() error {
	return c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMetrics)
		if bucket == nil {
			return nil
		}

		data := bucket.Get([]byte("counters"))
		if data == nil {
			return nil
		}

		var shadow ShadowCounters
		if err := json.Unmarshal(data, &shadow); err != nil {
			return nil // Skip invalid data
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		for k, v := range shadow.RecipientsSent {
			c.shadow.RecipientsSent[k] = v
			c.metrics.RecipientsSentTotal.WithLabelValues(k).Add(v)
		}
		for k, v := range shadow.RecipientsFailed {
			campaign, reason := splitLabelKey(k)
			c.shadow.RecipientsFailed[k] = v
			c.metrics.RecipientsFailedTotal.WithLabelValues(campaign, reason).Add(v)
		}
		for k, v := range shadow.RecipientsSkipped {
			c.shadow.RecipientsSkipped[k] = v
			c.metrics.RecipientsSkippedTotal.WithLabelValues(k).Add(v)
		}
		for k, v := range shadow.LastDispatch {
			c.shadow.LastDispatch[k] = v
			c.metrics.LastDispatchTimestamp.WithLabelValues(k).Set(v)
		}
		for k, v := range shadow.RateLimitExceeded {
			c.shadow.RateLimitExceeded[k] = v
			c.metrics.RateLimitExceededTotal.WithLabelValues(k).Add(v)
		}
		for k, v := range shadow.APIRequests {
			method, path, status := splitTripleLabelKey(k)
			c.shadow.APIRequests[k] = v
			c.metrics.APIRequestsTotal.WithLabelValues(method, path, status).Add(v)
		}
		for k, v := range shadow.APIErrors {
			c.shadow.APIErrors[k] = v
			c.metrics.APIErrorsTotal.WithLabelValues(k).Add(v)
		}

		return nil
	})
}

// Flush saves counter values to bbolt
func (c *Collector) Flush() error {
	c.mu.Lock()
	data, err := json.Marshal(c.shadow)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMetrics)
		if bucket == nil {
			return nil
		}
		return bucket.Put([]byte("counters"), data)
	})
}

func (c *Collector) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	c.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Flush()
			c.Refresh(ctx)
		}
	}
}

// Refresh updates the uptime, storage and recipient gauges
func (c *Collector) Refresh(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	if c.recipients != nil {
		if n, err := c.recipients.Count(ctx, true); err == nil {
			c.metrics.RecipientsActive.Set(float64(n))
		}
	}
}

// TrackSent counts a recipient the campaign message was submitted to
func (c *Collector) TrackSent(campaign string) {
	c.mu.Lock()
	c.shadow.RecipientsSent[campaign]++
	c.mu.Unlock()
	c.metrics.RecipientsSentTotal.WithLabelValues(campaign).Inc()
}

// TrackFailed counts a failed recipient; reason is the error kind
func (c *Collector) TrackFailed(campaign, reason string) {
	key := makeLabelKey(campaign, reason)
	c.mu.Lock()
	c.shadow.RecipientsFailed[key]++
	c.mu.Unlock()
	c.metrics.RecipientsFailedTotal.WithLabelValues(campaign, reason).Inc()
}

// TrackSkipped counts a recipient that was never attempted
func (c *Collector) TrackSkipped(campaign string) {
	c.mu.Lock()
	c.shadow.RecipientsSkipped[campaign]++
	c.mu.Unlock()
	c.metrics.RecipientsSkippedTotal.WithLabelValues(campaign).Inc()
}

// TrackDispatch records a finished run
func (c *Collector) TrackDispatch(campaign string, started time.Time, elapsed time.Duration) {
	finished := float64(started.Add(elapsed).Unix())
	c.mu.Lock()
	c.shadow.LastDispatch[campaign] = finished
	c.mu.Unlock()
	c.metrics.DispatchDurationSeconds.WithLabelValues(campaign).Observe(elapsed.Seconds())
	c.metrics.LastDispatchTimestamp.WithLabelValues(campaign).Set(finished)
}

// TrackRateLimitExceeded counts a quota refusal
func (c *Collector) TrackRateLimitExceeded(level string) {
	c.mu.Lock()
	c.shadow.RateLimitExceeded[level]++
	c.mu.Unlock()
	c.metrics.RateLimitExceededTotal.WithLabelValues(level).Inc()
}

// TrackAPIRequest tracks an API request and updates shadow counter
func (c *Collector) TrackAPIRequest(method, path, status string) {
	key := makeTripleLabelKey(method, path, status)
	c.mu.Lock()
	c.shadow.APIRequests[key]++
	c.mu.Unlock()
	c.metrics.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// TrackAPIError tracks an API error and updates shadow counter
func (c *Collector) TrackAPIError(errorType string) {
	c.mu.Lock()
	c.shadow.APIErrors[errorType]++
	c.mu.Unlock()
	c.metrics.APIErrorsTotal.WithLabelValues(errorType).Inc()
}

// Label keys join values with '|'; campaign ids and paths never contain it
func makeLabelKey(a, b string) string {
	return a + "|" + b
}

func splitLabelKey(key string) (string, string) {
	if i := strings.LastIndexByte(key, '|'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

func makeTripleLabelKey(a, b, c string) string {
	return a + "|" + b + "|" + c
}

func splitTripleLabelKey(key string) (string, string, string) {
	parts := strings.SplitN(key, "|", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return parts[0], parts[1], parts[2]
}
