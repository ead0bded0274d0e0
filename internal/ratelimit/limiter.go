package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/campaigner/internal/config"
)

var bucketRateLimits = []byte("rate_limits")

// Level represents the level of rate limiting
type Level string

const (
	LevelGlobal    Level = "global"
	LevelSender    Level = "sender"
	LevelRecipient Level = "recipient_domain"
)

// Config contains rate limit configuration
type Config struct {
	// Global limits
	Global *LimitConfig

	// Default limits for sender addresses
	DefaultSender *LimitConfig

	// Default limits for recipient domains without specific config
	DefaultRecipientDomain *LimitConfig

	// Per-recipient-domain limits
	RecipientDomains map[string]*LimitConfig
}

// LimitConfig contains rate limit values
type LimitConfig struct {
	MessagesPerHour int `json:"messages_per_hour"`
	MessagesPerDay  int `json:"messages_per_day"`
}

// FromConfig converts the rate_limit config section
func FromConfig(cfg config.RateLimitConfig) *Config {
	convert := func(v *config.LimitValues) *LimitConfig {
		if v == nil {
			return nil
		}
		return &LimitConfig{MessagesPerHour: v.MessagesPerHour, MessagesPerDay: v.MessagesPerDay}
	}

	c := &Config{
		Global:                 convert(cfg.Global),
		DefaultSender:          convert(cfg.DefaultSender),
		DefaultRecipientDomain: convert(cfg.DefaultRecipientDomain),
	}
	if len(cfg.RecipientDomains) > 0 {
		c.RecipientDomains = make(map[string]*LimitConfig, len(cfg.RecipientDomains))
		for domain, v := range cfg.RecipientDomains {
			c.RecipientDomains[strings.ToLower(domain)] = convert(v)
		}
	}
	return c
}

// Counter tracks rate limit counters
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// Limiter enforces hourly and daily quotas. Counters are stored in bbolt
// on every Allow, so quotas survive between CLI runs.
type Limiter struct {
	db     *bolt.DB
	config *Config
	now    func() time.Time
}

// NewLimiter creates a new rate limiter
func NewLimiter(db *bolt.DB, cfg *Config) (*Limiter, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRateLimits)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limits bucket: %w", err)
	}

	return &Limiter{
		db:     db,
		config: cfg,
		now:    time.Now,
	}, nil
}

// Request contains information about the rate limit request
type Request struct {
	Sender    string // Sender email
	Recipient string // Recipient email or domain
}

// Result contains the rate limit check result
type Result struct {
	Allowed    bool
	DeniedBy   Level
	DeniedKey  string
	RetryAfter time.Duration
}

// Stats contains rate limit statistics
type Stats struct {
	Level       Level     `json:"level"`
	Key         string    `json:"key"`
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// Allow checks every applicable limit and, when all pass, increments
// their counters in the same transaction
func (l *Limiter) Allow(ctx context.Context, req *Request) (*Result, error) {
	result := &Result{Allowed: true}
	now := l.now()
	checks := l.getChecks(req)
	if len(checks) == 0 {
		return result, nil
	}

	err := l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)

		counters := make([]*Counter, len(checks))
		for i, check := range checks {
			counter := loadCounter(bucket, check.key, now)
			resetExpiredCounters(counter, now)
			counters[i] = counter

			if denied := evaluate(check, counter, now); denied != nil {
				*result = *denied
				return nil
			}
		}

		for i, check := range checks {
			counters[i].HourlyCount++
			counters[i].DailyCount++
			if err := putCounter(bucket, check.key, counters[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update rate limit counters: %w", err)
	}

	return result, nil
}

// Check checks if the action would be allowed without incrementing counters
func (l *Limiter) Check(ctx context.Context, req *Request) (*Result, error) {
	result := &Result{Allowed: true}
	now := l.now()
	checks := l.getChecks(req)

	err := l.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		for _, check := range checks {
			counter := loadCounter(bucket, check.key, now)
			resetExpiredCounters(counter, now)
			if denied := evaluate(check, counter, now); denied != nil {
				*result = *denied
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read rate limit counters: %w", err)
	}

	return result, nil
}

// GetStats returns current rate limit statistics
func (l *Limiter) GetStats(ctx context.Context, level Level, key string) (*Stats, error) {
	stats := &Stats{Level: level, Key: key}
	now := l.now()

	err := l.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRateLimits).Get([]byte(makeKey(level, key)))
		if data == nil {
			return nil
		}
		var counter Counter
		if err := json.Unmarshal(data, &counter); err != nil {
			return err
		}
		resetExpiredCounters(&counter, now)
		stats.HourlyCount = counter.HourlyCount
		stats.DailyCount = counter.DailyCount
		stats.HourStart = counter.HourStart
		stats.DayStart = counter.DayStart
		return nil
	})

	return stats, err
}

// ListStats returns statistics for every stored counter
func (l *Limiter) ListStats(ctx context.Context) ([]*Stats, error) {
	var all []*Stats
	now := l.now()

	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRateLimits).ForEach(func(k, v []byte) error {
			var counter Counter
			if err := json.Unmarshal(v, &counter); err != nil {
				return nil // Skip invalid entries
			}
			resetExpiredCounters(&counter, now)

			level, key, _ := strings.Cut(string(k), ":")
			all = append(all, &Stats{
				Level:       Level(level),
				Key:         key,
				HourlyCount: counter.HourlyCount,
				DailyCount:  counter.DailyCount,
				HourStart:   counter.HourStart,
				DayStart:    counter.DayStart,
			})
			return nil
		})
	})

	return all, err
}

type limitCheck struct {
	level Level
	key   string
	limit *LimitConfig
}

func (l *Limiter) getChecks(req *Request) []limitCheck {
	var checks []limitCheck

	// Global limit
	if l.config.Global != nil {
		checks = append(checks, limitCheck{
			level: LevelGlobal,
			key:   makeKey(LevelGlobal, "global"),
			limit: l.config.Global,
		})
	}

	// Sender limit
	if req.Sender != "" && l.config.DefaultSender != nil {
		sender := strings.ToLower(req.Sender)
		checks = append(checks, limitCheck{
			level: LevelSender,
			key:   makeKey(LevelSender, sender),
			limit: l.config.DefaultSender,
		})
	}

	// Recipient domain limit
	if domain := recipientDomain(req.Recipient); domain != "" {
		limit := l.config.RecipientDomains[domain]
		if limit == nil {
			limit = l.config.DefaultRecipientDomain
		}
		if limit != nil {
			checks = append(checks, limitCheck{
				level: LevelRecipient,
				key:   makeKey(LevelRecipient, domain),
				limit: limit,
			})
		}
	}

	return checks
}

func evaluate(check limitCheck, counter *Counter, now time.Time) *Result {
	// Check hourly limit
	if check.limit.MessagesPerHour > 0 && counter.HourlyCount >= check.limit.MessagesPerHour {
		return &Result{
			DeniedBy:   check.level,
			DeniedKey:  check.key,
			RetryAfter: counter.HourStart.Add(time.Hour).Sub(now),
		}
	}

	// Check daily limit
	if check.limit.MessagesPerDay > 0 && counter.DailyCount >= check.limit.MessagesPerDay {
		return &Result{
			DeniedBy:   check.level,
			DeniedKey:  check.key,
			RetryAfter: counter.DayStart.Add(24 * time.Hour).Sub(now),
		}
	}

	return nil
}

func loadCounter(bucket *bolt.Bucket, key string, now time.Time) *Counter {
	counter := &Counter{HourStart: now, DayStart: now}
	if data := bucket.Get([]byte(key)); data != nil {
		if err := json.Unmarshal(data, counter); err != nil {
			return &Counter{HourStart: now, DayStart: now}
		}
	}
	return counter
}

func putCounter(bucket *bolt.Bucket, key string, counter *Counter) error {
	data, err := json.Marshal(counter)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(key), data)
}

func resetExpiredCounters(counter *Counter, now time.Time) {
	if now.Sub(counter.HourStart) >= time.Hour {
		counter.HourlyCount = 0
		counter.HourStart = now
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		counter.DailyCount = 0
		counter.DayStart = now
	}
}

func recipientDomain(recipient string) string {
	if i := strings.LastIndexByte(recipient, '@'); i >= 0 {
		recipient = recipient[i+1:]
	}
	return strings.ToLower(strings.TrimSpace(recipient))
}

func makeKey(level Level, key string) string {
	return string(level) + ":" + key
}
