package ipfilter

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParsePrefixes(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		want    []string
		wantErr bool
	}{
		{"empty", nil, nil, false},
		{"single IPv4", []string{"192.168.1.1"}, []string{"192.168.1.1/32"}, false},
		{"CIDR is masked", []string{"10.1.2.3/8"}, []string{"10.0.0.0/8"}, false},
		{"IPv6", []string{"::1", "2001:db8::/32"}, []string{"::1/128", "2001:db8::/32"}, false},
		{"whitespace and blanks", []string{"  192.168.1.1  ", "", " 10.0.0.0/8 "}, []string{"192.168.1.1/32", "10.0.0.0/8"}, false},
		{"invalid IP", []string{"invalid"}, nil, true},
		{"invalid CIDR", []string{"10.0.0.0/33"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrefixes(tt.entries)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePrefixes() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParsePrefixes() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i].String() != tt.want[i] {
					t.Errorf("prefix %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNew_SkipsInvalid(t *testing.T) {
	f := New([]string{"192.168.1.1", "invalid", "10.0.0.0/8"}, newTestLogger())
	if f.Count() != 2 {
		t.Errorf("Count() = %d, want 2", f.Count())
	}
	if !f.Enabled() {
		t.Error("Enabled() = false")
	}
	if New(nil, newTestLogger()).Enabled() {
		t.Error("empty filter reports enabled")
	}
}

func TestFilter_Allowed(t *testing.T) {
	f := New([]string{"192.168.0.0/16", "10.0.0.1", "2001:db8::/32"}, newTestLogger())

	tests := []struct {
		ip   string
		want bool
	}{
		{"192.168.1.100", true},
		{"192.169.0.1", false},
		{"10.0.0.1", true},
		{"10.0.0.2", false},
		{"::ffff:10.0.0.1", true},
		{"2001:db8::1", true},
		{"2001:db9::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := f.Allowed(netip.MustParseAddr(tt.ip)); got != tt.want {
				t.Errorf("Allowed(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestFilter_AllowedAddr(t *testing.T) {
	f := New([]string{"127.0.0.1"}, newTestLogger())

	if !f.AllowedAddr(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2525}) {
		t.Error("loopback should be allowed")
	}
	if f.AllowedAddr(&net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 2525}) {
		t.Error("10.0.0.1 should be denied")
	}
	if !New(nil, newTestLogger()).AllowedAddr(&net.TCPAddr{IP: net.ParseIP("10.0.0.1")}) {
		t.Error("empty filter should allow everything")
	}
}

func TestClientAddr(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		xff        string
		xri        string
		remoteAddr string
		want       string
	}{
		{"X-Forwarded-For chain", true, "203.0.113.50, 70.41.3.18", "", "127.0.0.1:12345", "203.0.113.50"},
		{"X-Real-IP", true, "", "198.51.100.25", "127.0.0.1:12345", "198.51.100.25"},
		{"X-Forwarded-For takes priority", true, "203.0.113.50", "198.51.100.25", "127.0.0.1:12345", "203.0.113.50"},
		{"headers ignored without proxy trust", false, "203.0.113.50", "198.51.100.25", "127.0.0.1:12345", "127.0.0.1"},
		{"RemoteAddr without port", false, "", "", "192.168.1.100", "192.168.1.100"},
		{"IPv6 RemoteAddr", false, "", "", "[::1]:8080", "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			addr, ok := ClientAddr(req, tt.trustProxy)
			if !ok {
				t.Fatal("ClientAddr() failed")
			}
			if addr.String() != tt.want {
				t.Errorf("ClientAddr() = %s, want %s", addr, tt.want)
			}
		})
	}
}

func TestFilter_HTTPMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		allowedIPs []string
		trustProxy bool
		remoteAddr string
		xff        string
		wantStatus int
	}{
		{"empty filter allows all", nil, false, "1.2.3.4:1", "", http.StatusOK},
		{"allowed IP", []string{"192.168.0.0/16"}, false, "192.168.1.100:1", "", http.StatusOK},
		{"denied IP", []string{"192.168.0.0/16"}, false, "10.0.0.1:1", "", http.StatusForbidden},
		{"spoofed header ignored", []string{"192.168.0.0/16"}, false, "10.0.0.1:1", "192.168.1.1", http.StatusForbidden},
		{"proxy header trusted", []string{"192.168.0.0/16"}, true, "10.0.0.1:1", "192.168.1.1", http.StatusOK},
		{"unparseable address", []string{"192.168.0.0/16"}, false, "garbage", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.allowedIPs, newTestLogger(), TrustProxy(tt.trustProxy))

			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			rr := httptest.NewRecorder()
			f.HTTPMiddleware(handler).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}
