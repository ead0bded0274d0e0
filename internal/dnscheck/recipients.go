package dnscheck

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// DomainStatus reports whether a recipient domain accepts mail
type DomainStatus struct {
	Domain      string   `json:"domain"`
	Recipients  []string `json:"recipients"`
	MX          []string `json:"mx,omitempty"`
	Deliverable bool     `json:"deliverable"`
	Error       string   `json:"error,omitempty"`
}

type mxEntry struct {
	hosts     []string
	err       error
	expiresAt time.Time
}

// MXCache remembers MX answers per domain so a recipient list with many
// addresses at one provider costs a single lookup
type MXCache struct {
	checker *Checker
	ttl     time.Duration
	mu      sync.RWMutex
	cache   map[string]mxEntry
}

// NewMXCache creates a cache in front of checker
func NewMXCache(checker *Checker, ttl time.Duration) *MXCache {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &MXCache{
		checker: checker,
		ttl:     ttl,
		cache:   make(map[string]mxEntry),
	}
}

// Lookup returns MX hosts for domain sorted by priority. A domain with no
// MX records falls back to its own name, which is how MTAs treat it.
func (c *MXCache) Lookup(ctx context.Context, domain string) ([]string, error) {
	domain = strings.ToLower(domain)

	c.mu.RLock()
	entry, ok := c.cache[domain]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.hosts, entry.err
	}

	hosts, err := c.lookup(ctx, domain)
	if ctx.Err() != nil {
		return hosts, err
	}

	c.mu.Lock()
	c.cache[domain] = mxEntry{hosts: hosts, err: err, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return hosts, err
}

func (c *MXCache) lookup(ctx context.Context, domain string) ([]string, error) {
	records, err := c.checker.resolver.LookupMX(ctx, domain)
	if err != nil {
		if isNotFound(err) {
			return []string{domain}, nil
		}
		return nil, err
	}
	if len(records) == 0 {
		return []string{domain}, nil
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Pref < records[j].Pref })
	hosts := make([]string, 0, len(records))
	for _, mx := range records {
		hosts = append(hosts, strings.TrimSuffix(mx.Host, "."))
	}
	// A single "." host is a null MX (RFC 7505): the domain accepts no mail.
	if len(hosts) == 1 && hosts[0] == "" {
		return nil, nil
	}
	return hosts, nil
}

// CheckRecipients groups emails by domain and looks up each domain once.
// Results are sorted with undeliverable domains first.
func (c *MXCache) CheckRecipients(ctx context.Context, emails []string) []DomainStatus {
	byDomain := make(map[string][]string)
	var order []string
	for _, email := range emails {
		domain := ExtractDomain(email)
		if _, ok := byDomain[domain]; !ok {
			order = append(order, domain)
		}
		byDomain[domain] = append(byDomain[domain], email)
	}

	statuses := make([]DomainStatus, 0, len(order))
	for _, domain := range order {
		status := DomainStatus{Domain: domain, Recipients: byDomain[domain]}
		switch {
		case ValidateDomain(domain) != nil:
			status.Error = "invalid domain"
		default:
			hosts, err := c.Lookup(ctx, domain)
			switch {
			case err != nil:
				status.Error = err.Error()
			case len(hosts) == 0:
				status.Error = "domain publishes a null MX and accepts no mail"
			default:
				status.MX = hosts
				status.Deliverable = true
			}
		}
		statuses = append(statuses, status)
	}

	sort.SliceStable(statuses, func(i, j int) bool {
		return !statuses[i].Deliverable && statuses[j].Deliverable
	})
	return statuses
}

// ExtractDomain extracts the domain part from an email address
func ExtractDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}
