package metrics

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.Registry() == nil {
		t.Fatal("Registry() returned nil")
	}

	m.RecipientsSentTotal.WithLabelValues("default").Inc()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "campaigner_recipients_sent_total" {
			found = true
		}
	}
	if !found {
		t.Error("campaigner_recipients_sent_total not registered")
	}
}

func TestGlobalMetrics(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	if Global() != m {
		t.Error("Global() did not return the instance set")
	}

	IncRateLimitExceeded("global")
	IncAPIErrors("not_found")

	if got := testutil.ToFloat64(m.RateLimitExceededTotal.WithLabelValues("global")); got != 1 {
		t.Errorf("ratelimit exceeded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.APIErrorsTotal.WithLabelValues("not_found")); got != 1 {
		t.Errorf("api errors = %v, want 1", got)
	}
}

func TestGlobalNilSafe(t *testing.T) {
	SetGlobal(nil)
	IncRateLimitExceeded("global")
	IncAPIErrors("server_error")
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecipientsFailedTotal.WithLabelValues("template_welcome", "auth").Add(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	want := `campaigner_recipients_failed_total{campaign="template_welcome",reason="auth"} 2`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("body missing %q", want)
	}
}

func TestWriteToTextfile(t *testing.T) {
	m := New()
	m.RecipientsSentTotal.WithLabelValues("default").Add(3)

	path := filepath.Join(t.TempDir(), "textfile", "campaigner.prom")
	if err := m.WriteToTextfile(path); err != nil {
		t.Fatalf("WriteToTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `campaigner_recipients_sent_total{campaign="default"} 3`) {
		t.Errorf("textfile content:\n%s", data)
	}
}
