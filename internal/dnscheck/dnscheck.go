// Package dnscheck inspects the DNS records that decide whether campaign
// mail is delivered: the sender domain's MX, SPF, DKIM and DMARC records,
// and the MX records of recipient domains.
package dnscheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strings"
)

// Domain validation errors
var (
	ErrInvalidDomain   = errors.New("invalid domain name")
	ErrInvalidSelector = errors.New("invalid DKIM selector")
)

// Check statuses
const (
	StatusOK       = "ok"
	StatusWarning  = "warning"
	StatusError    = "error"
	StatusNotFound = "not_found"
)

// domainRegex validates domain name format (RFC 1035)
var domainRegex = regexp.MustCompile(`^(?i)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

var selectorRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// ValidateDomain checks if domain name is valid
func ValidateDomain(domain string) error {
	if domain == "" || len(domain) > 253 || !domainRegex.MatchString(domain) {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	return nil
}

// ValidateSelector checks if DKIM selector is valid. Empty means no DKIM check.
func ValidateSelector(selector string) error {
	if selector == "" {
		return nil
	}
	if len(selector) > 63 || !selectorRegex.MatchString(selector) {
		return fmt.Errorf("%w: %q", ErrInvalidSelector, selector)
	}
	return nil
}

// Resolver is the subset of *net.Resolver the checks need
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// CheckResult represents a single DNS check result
type CheckResult struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message,omitempty"`
}

// DomainCheckResult contains all DNS check results for the sender domain
type DomainCheckResult struct {
	Domain  string        `json:"domain"`
	Results []CheckResult `json:"results"`
	Summary Summary       `json:"summary"`
}

// Summary contains check statistics
type Summary struct {
	OK       int `json:"ok"`
	Warnings int `json:"warnings"`
	Errors   int `json:"errors"`
	NotFound int `json:"not_found"`
}

// SenderOptions describes what the sender domain is expected to publish
type SenderOptions struct {
	Selector string // DKIM selector, skipped when empty
	// DKIMRecord is the TXT value derived from the configured key. When set
	// the published key must match it.
	DKIMRecord string
}

// Checker runs DNS checks through a resolver
type Checker struct {
	resolver Resolver
}

// New creates a checker. A nil resolver uses net.DefaultResolver.
func New(resolver Resolver) *Checker {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Checker{resolver: resolver}
}

// CheckSender checks the records of the domain campaign mail is sent from
func (c *Checker) CheckSender(ctx context.Context, domain string, opts SenderOptions) (*DomainCheckResult, error) {
	domain = strings.ToLower(domain)
	if err := ValidateDomain(domain); err != nil {
		return nil, err
	}
	if opts.Selector != "" {
		if err := ValidateSelector(opts.Selector); err != nil {
			return nil, err
		}
	}

	result := &DomainCheckResult{Domain: domain}
	result.Results = append(result.Results, c.CheckMX(ctx, domain), c.CheckSPF(ctx, domain))
	if opts.Selector != "" {
		result.Results = append(result.Results, c.CheckDKIM(ctx, domain, opts.Selector, opts.DKIMRecord))
	}
	result.Results = append(result.Results, c.CheckDMARC(ctx, domain))

	for _, r := range result.Results {
		switch r.Status {
		case StatusOK:
			result.Summary.OK++
		case StatusWarning:
			result.Summary.Warnings++
		case StatusError:
			result.Summary.Errors++
		case StatusNotFound:
			result.Summary.NotFound++
		}
	}

	return result, nil
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

// lookupTXT joins each TXT record's strings; not found is reported as no records
func (c *Checker) lookupTXT(ctx context.Context, name string) ([]string, error) {
	records, err := c.resolver.LookupTXT(ctx, name)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	return records, nil
}

// CheckMX checks that replies and bounces to the sender domain can be delivered
func (c *Checker) CheckMX(ctx context.Context, domain string) CheckResult {
	result := CheckResult{Type: "MX Records"}

	mxRecords, err := c.resolver.LookupMX(ctx, domain)
	if err != nil && !isNotFound(err) {
		result.Status = StatusError
		result.Message = fmt.Sprintf("Lookup failed: %v", err)
		return result
	}
	if len(mxRecords) == 0 {
		result.Status = StatusNotFound
		result.Message = "No MX records found, replies to campaigns will bounce"
		return result
	}

	sort.Slice(mxRecords, func(i, j int) bool { return mxRecords[i].Pref < mxRecords[j].Pref })
	values := make([]string, 0, len(mxRecords))
	for _, mx := range mxRecords {
		values = append(values, fmt.Sprintf("%s (priority %d)", strings.TrimSuffix(mx.Host, "."), mx.Pref))
	}
	result.Status = StatusOK
	result.Value = strings.Join(values, ", ")
	result.Message = fmt.Sprintf("%d MX record(s) found", len(mxRecords))
	return result
}

// CheckSPF checks SPF record for a domain
func (c *Checker) CheckSPF(ctx context.Context, domain string) CheckResult {
	result := CheckResult{Type: "SPF Record"}

	records, err := c.lookupTXT(ctx, domain)
	if err != nil {
		result.Status = StatusError
		result.Message = fmt.Sprintf("Lookup failed: %v", err)
		return result
	}

	var spf []string
	for _, txt := range records {
		if strings.HasPrefix(txt, "v=spf1") {
			spf = append(spf, txt)
		}
	}

	switch {
	case len(spf) == 0:
		result.Status = StatusNotFound
		result.Message = "No SPF record found (recommended to add)"
	case len(spf) > 1:
		result.Status = StatusError
		result.Value = strings.Join(spf, " | ")
		result.Message = "Multiple SPF records; receivers treat this as a permanent error"
	default:
		result.Status = StatusOK
		result.Value = spf[0]
		switch {
		case strings.Contains(spf[0], "+all"):
			result.Status = StatusWarning
			result.Message = "SPF uses +all (allows any sender) - consider using ~all or -all"
		case strings.Contains(spf[0], "-all"):
			result.Message = "SPF configured with strict policy (-all)"
		case strings.Contains(spf[0], "~all"):
			result.Message = "SPF configured with soft fail (~all)"
		}
	}
	return result
}

// CheckDKIM checks the DKIM record for selector. When expected is set the
// published public key must match it.
func (c *Checker) CheckDKIM(ctx context.Context, domain, selector, expected string) CheckResult {
	result := CheckResult{Type: fmt.Sprintf("DKIM Record (%s._domainkey)", selector)}

	records, err := c.lookupTXT(ctx, selector+"._domainkey."+domain)
	if err != nil {
		result.Status = StatusError
		result.Message = fmt.Sprintf("Lookup failed: %v", err)
		return result
	}
	if len(records) == 0 {
		result.Status = StatusNotFound
		result.Message = fmt.Sprintf("No DKIM record found for selector '%s'", selector)
		return result
	}

	fullRecord := strings.Join(records, "")
	result.Value = truncateString(fullRecord, 100)

	if !strings.Contains(fullRecord, "v=DKIM1") {
		result.Status = StatusWarning
		result.Message = "TXT record found but doesn't appear to be a valid DKIM record"
		return result
	}

	published := tagValue(fullRecord, "p")
	switch {
	case published == "":
		result.Status = StatusWarning
		result.Message = "DKIM record missing public key (p=)"
	case expected != "" && published != tagValue(expected, "p"):
		result.Status = StatusError
		result.Message = "Published DKIM key does not match the configured private key"
	default:
		result.Status = StatusOK
		result.Message = "DKIM record published"
		if expected != "" {
			result.Message = "DKIM record matches the configured key"
		}
	}
	return result
}

// CheckDMARC checks DMARC record for a domain
func (c *Checker) CheckDMARC(ctx context.Context, domain string) CheckResult {
	result := CheckResult{Type: "DMARC Record"}

	records, err := c.lookupTXT(ctx, "_dmarc."+domain)
	if err != nil {
		result.Status = StatusError
		result.Message = fmt.Sprintf("Lookup failed: %v", err)
		return result
	}
	if len(records) == 0 {
		result.Status = StatusNotFound
		result.Message = "No DMARC record found (recommended for bulk senders)"
		return result
	}

	fullRecord := strings.Join(records, "")
	result.Value = fullRecord

	if !strings.HasPrefix(fullRecord, "v=DMARC1") {
		result.Status = StatusWarning
		result.Message = "TXT record found but doesn't appear to be a valid DMARC record"
		return result
	}

	result.Status = StatusOK
	switch tagValue(fullRecord, "p") {
	case "reject":
		result.Message = "DMARC configured with reject policy (strict)"
	case "quarantine":
		result.Message = "DMARC configured with quarantine policy"
	case "none":
		result.Status = StatusWarning
		result.Message = "DMARC configured with none policy (monitoring only)"
	default:
		result.Status = StatusWarning
		result.Message = "DMARC record has no valid policy (p=)"
	}
	return result
}

// tagValue returns the value of tag in a "k=v; k=v" record
func tagValue(record, tag string) string {
	for _, part := range strings.Split(record, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.TrimSpace(k) == tag {
			return strings.Join(strings.Fields(v), "")
		}
	}
	return ""
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
