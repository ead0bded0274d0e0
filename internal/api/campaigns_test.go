package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/foxzi/campaigner/internal/analytics"
	"github.com/foxzi/campaigner/internal/campaign"
	"github.com/foxzi/campaigner/internal/config"
	"github.com/foxzi/campaigner/internal/sandbox"
	"github.com/foxzi/campaigner/internal/template"
	"github.com/foxzi/campaigner/internal/transport"
)

func TestCampaignSend_Template(t *testing.T) {
	env := setupTestServer(t, nil)
	ctx := context.Background()

	if err := env.templates.Create(ctx, &template.Template{Name: "promo", Subject: "Welcome {name}", Text: "Hi {first_name}"}); err != nil {
		t.Fatal(err)
	}
	env.addRecipient(t, "Alice Smith", "alice@example.com")
	env.addRecipient(t, "Bob", "bob@example.com")

	w := env.do(t, "POST", "/api/v1/campaigns/send", CampaignRequest{Template: "promo"})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d (body %s)", w.Code, w.Body.String())
	}
	resp := decode[CampaignResponse](t, w)
	if resp.CampaignID != "template_promo" {
		t.Errorf("CampaignID = %q", resp.CampaignID)
	}
	if resp.Sent != 2 || resp.Attempted != 2 {
		t.Errorf("Sent = %d, Attempted = %d, want 2/2", resp.Sent, resp.Attempted)
	}
	if resp.Summary != "sent to 2/2 recipients" {
		t.Errorf("Summary = %q", resp.Summary)
	}

	rec, err := env.analytics.Get(ctx, "template_promo")
	if err != nil {
		t.Fatalf("analytics Get() error = %v", err)
	}
	if rec.TotalSent != 2 || len(rec.Recipients) != 2 || rec.Recipients[0].ID != "alice" {
		t.Errorf("analytics record = %+v", rec)
	}

	captured, err := env.sandbox.List(ctx, sandbox.ListFilter{Recipient: "alice@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if len(captured) != 1 || captured[0].Subject != "Welcome Alice Smith" {
		t.Errorf("captured = %+v", captured)
	}
}

func TestCampaignSend_PersonalizedSelectedIDs(t *testing.T) {
	env := setupTestServer(t, nil)
	env.addRecipient(t, "Alice Smith", "alice@example.com")
	bobID := env.addRecipient(t, "Bob", "bob@example.com")

	w := env.do(t, "POST", "/api/v1/campaigns/send", CampaignRequest{RecipientIDs: []int64{bobID}})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d (body %s)", w.Code, w.Body.String())
	}
	resp := decode[CampaignResponse](t, w)
	if resp.CampaignID != analytics.DefaultCampaign {
		t.Errorf("CampaignID = %q, want %q", resp.CampaignID, analytics.DefaultCampaign)
	}
	if len(resp.Outcomes) != 1 || resp.Outcomes[0].Recipient.Email != "bob@example.com" {
		t.Errorf("Outcomes = %+v", resp.Outcomes)
	}
}

func TestCampaignSend_DryRun(t *testing.T) {
	transportCalled := false
	env := setupTestServer(t, nil)
	env.server.transport = func(ctx context.Context) (transport.Config, error) {
		transportCalled = true
		return transport.Config{}, errors.New("no SMTP in dry run")
	}
	env.addRecipient(t, "Alice Smith", "alice@example.com")
	env.addRecipient(t, "Bob", "bob@example.com")

	w := env.do(t, "POST", "/api/v1/campaigns/send", CampaignRequest{DryRun: true, Limit: 1})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d (body %s)", w.Code, w.Body.String())
	}
	resp := decode[CampaignResponse](t, w)
	if resp.Rendered != 1 || resp.Sent != 0 {
		t.Errorf("Rendered = %d, Sent = %d", resp.Rendered, resp.Sent)
	}
	if resp.Outcomes[0].Status != campaign.StatusRendered || resp.Outcomes[0].Email == nil {
		t.Errorf("outcome = %+v", resp.Outcomes[0])
	}
	if transportCalled {
		t.Error("dry run resolved SMTP settings")
	}

	if _, err := env.analytics.Get(context.Background(), analytics.DefaultCampaign); !errors.Is(err, analytics.ErrNotFound) {
		t.Errorf("dry run recorded analytics: %v", err)
	}
}

func TestCampaignSend_Errors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, env *testEnv) CampaignRequest
		wantCode int
	}{
		{
			name: "no recipients",
			setup: func(t *testing.T, env *testEnv) CampaignRequest {
				return CampaignRequest{}
			},
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name: "unknown template",
			setup: func(t *testing.T, env *testEnv) CampaignRequest {
				env.addRecipient(t, "Alice", "alice@example.com")
				return CampaignRequest{Template: "missing"}
			},
			wantCode: http.StatusNotFound,
		},
		{
			name: "unknown recipient id",
			setup: func(t *testing.T, env *testEnv) CampaignRequest {
				return CampaignRequest{RecipientIDs: []int64{99}}
			},
			wantCode: http.StatusNotFound,
		},
		{
			name: "inactive recipient id",
			setup: func(t *testing.T, env *testEnv) CampaignRequest {
				id := env.addRecipient(t, "Alice", "alice@example.com")
				if err := env.recipients.Deactivate(context.Background(), id); err != nil {
					t.Fatal(err)
				}
				return CampaignRequest{RecipientIDs: []int64{id}}
			},
			wantCode: http.StatusConflict,
		},
		{
			name: "negative limit",
			setup: func(t *testing.T, env *testEnv) CampaignRequest {
				return CampaignRequest{Limit: -1}
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "smtp settings unavailable",
			setup: func(t *testing.T, env *testEnv) CampaignRequest {
				env.addRecipient(t, "Alice", "alice@example.com")
				env.server.transport = func(ctx context.Context) (transport.Config, error) {
					return transport.Config{}, errors.New("no password available")
				}
				return CampaignRequest{}
			},
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t, func(cfg *config.Config) {})
			req := tt.setup(t, env)

			w := env.do(t, "POST", "/api/v1/campaigns/send", req)
			if w.Code != tt.wantCode {
				t.Errorf("Status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}
