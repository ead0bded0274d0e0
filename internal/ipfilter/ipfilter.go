// Package ipfilter restricts the API and the sandbox SMTP server to
// configured client networks
package ipfilter

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Filter checks client addresses against an allow-list of prefixes.
// An empty list allows everyone.
type Filter struct {
	prefixes   []netip.Prefix
	trustProxy bool
	logger     *slog.Logger
}

// Option configures a Filter
type Option func(*Filter)

// TrustProxy makes the HTTP middleware take the client address from
// X-Forwarded-For / X-Real-IP. Only enable behind a reverse proxy.
func TrustProxy(trust bool) Option {
	return func(f *Filter) { f.trustProxy = trust }
}

// ParsePrefixes parses IPs and CIDRs. A bare address becomes a /32 or /128.
func ParsePrefixes(entries []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid IP %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// New creates a filter. Entries are expected to have been validated with
// ParsePrefixes; invalid ones are logged and skipped.
func New(allowed []string, logger *slog.Logger, opts ...Option) *Filter {
	f := &Filter{logger: logger}
	for _, opt := range opts {
		opt(f)
	}

	for _, entry := range allowed {
		prefixes, err := ParsePrefixes([]string{entry})
		if err != nil {
			logger.Warn("ignoring allowed_ips entry", "error", err)
			continue
		}
		f.prefixes = append(f.prefixes, prefixes...)
	}

	return f
}

// Enabled returns true if IP filtering is active
func (f *Filter) Enabled() bool {
	return len(f.prefixes) > 0
}

// Count returns the number of allowed networks
func (f *Filter) Count() int {
	return len(f.prefixes)
}

// Allowed reports whether addr may connect
func (f *Filter) Allowed(addr netip.Addr) bool {
	if len(f.prefixes) == 0 {
		return true
	}
	addr = addr.Unmap()
	for _, p := range f.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// AllowedAddr checks a net.Addr, as handed out by listeners
func (f *Filter) AllowedAddr(addr net.Addr) bool {
	if !f.Enabled() {
		return true
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return false
	}
	return f.Allowed(ap.Addr())
}

// ClientAddr extracts the client address from an HTTP request. Forwarding
// headers are only consulted when trustProxy is set.
func ClientAddr(r *http.Request, trustProxy bool) (netip.Addr, bool) {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
				return addr, true
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
				return addr, true
			}
		}
	}

	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr(), true
	}
	addr, err := netip.ParseAddr(r.RemoteAddr)
	return addr, err == nil
}

// HTTPMiddleware rejects requests from addresses outside the allow-list
func (f *Filter) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		addr, ok := ClientAddr(r, f.trustProxy)
		if !ok {
			f.logger.Warn("could not parse client IP", "remote_addr", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if !f.Allowed(addr) {
			f.logger.Warn("access denied by IP filter", "ip", addr.String(), "path", r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
