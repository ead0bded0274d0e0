package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/foxzi/campaigner/internal/recipient"
)

func TestRecipientsCreate(t *testing.T) {
	env := setupTestServer(t, nil)

	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{"valid", RecipientRequest{Name: "Alice", Email: "alice@example.com", Company: strPtr("Acme")}, http.StatusCreated},
		{"duplicate", RecipientRequest{Name: "Alice Again", Email: "alice@example.com"}, http.StatusConflict},
		{"missing name", RecipientRequest{Email: "bob@example.com"}, http.StatusBadRequest},
		{"bad email", RecipientRequest{Name: "Bob", Email: "not-an-email"}, http.StatusBadRequest},
		{"unknown field", `{"name":"Bob","email":"bob@example.com","vip":true}`, http.StatusBadRequest},
		{"invalid json", "{", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/v1/recipients", tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("Status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestRecipientsGetAndList(t *testing.T) {
	env := setupTestServer(t, nil)
	aliceID := env.addRecipient(t, "Alice", "alice@example.com")
	bobID := env.addRecipient(t, "Bob", "bob@example.com")

	w := env.do(t, "GET", "/api/v1/recipients/"+itoa(aliceID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	got := decode[recipient.Recipient](t, w)
	if got.Email != "alice@example.com" || !got.IsActive {
		t.Errorf("recipient = %+v", got)
	}

	if w := env.do(t, "POST", "/api/v1/recipients/"+itoa(bobID)+"/deactivate", nil); w.Code != http.StatusNoContent {
		t.Fatalf("deactivate status = %d", w.Code)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?active=true", 1},
		{"?search=bob", 1},
		{"?limit=1", 1},
		{"?offset=1", 1},
	}
	for _, tt := range tests {
		t.Run("list"+tt.query, func(t *testing.T) {
			w := env.do(t, "GET", "/api/v1/recipients"+tt.query, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
			}
			resp := decode[RecipientListResponse](t, w)
			if resp.Total != tt.want {
				t.Errorf("Total = %d, want %d", resp.Total, tt.want)
			}
		})
	}
}

func TestRecipientsNotFound(t *testing.T) {
	env := setupTestServer(t, nil)

	tests := []struct {
		method, path string
		body         any
		wantCode     int
	}{
		{"GET", "/api/v1/recipients/42", nil, http.StatusNotFound},
		{"GET", "/api/v1/recipients/abc", nil, http.StatusBadRequest},
		{"PATCH", "/api/v1/recipients/42", recipient.Update{Name: strPtr("X")}, http.StatusNotFound},
		{"POST", "/api/v1/recipients/42/deactivate", nil, http.StatusNotFound},
		{"POST", "/api/v1/recipients/42/restore", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestRecipientsUpdate(t *testing.T) {
	env := setupTestServer(t, nil)
	aliceID := env.addRecipient(t, "Alice", "alice@example.com")
	env.addRecipient(t, "Bob", "bob@example.com")

	w := env.do(t, "PATCH", "/api/v1/recipients/"+itoa(aliceID), recipient.Update{Company: strPtr("Globex")})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}
	got := decode[recipient.Recipient](t, w)
	if got.Company == nil || *got.Company != "Globex" {
		t.Errorf("Company = %v, want Globex", got.Company)
	}

	w = env.do(t, "PATCH", "/api/v1/recipients/"+itoa(aliceID), recipient.Update{Email: strPtr("bob@example.com")})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate email status = %d, want %d", w.Code, http.StatusConflict)
	}

	w = env.do(t, "PATCH", "/api/v1/recipients/"+itoa(aliceID), recipient.Update{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty update status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestRecipientsImport(t *testing.T) {
	env := setupTestServer(t, nil)
	env.addRecipient(t, "Alice", "alice@example.com")

	csv := "name,email,company\n" +
		"Alice,alice@example.com,Acme\n" +
		"Bob,bob@example.com,\n" +
		",broken@example.com,\n"

	w := env.do(t, "POST", "/api/v1/recipients/import", csv)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d (body %s)", w.Code, http.StatusOK, w.Body.String())
	}
	result := decode[recipient.ImportResult](t, w)
	if result.Imported != 1 || result.Duplicates != 1 {
		t.Errorf("result = %+v, want 1 imported and 1 duplicate", result)
	}
}

func TestRecipientsBackup(t *testing.T) {
	env := setupTestServer(t, nil)
	env.addRecipient(t, "Alice", "alice@example.com")

	w := env.do(t, "POST", "/api/v1/recipients/backup", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d (body %s)", w.Code, http.StatusCreated, w.Body.String())
	}
	resp := decode[map[string]string](t, w)
	if !strings.Contains(resp["path"], "email_recipients_") {
		t.Errorf("path = %q", resp["path"])
	}
}
