package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/foxzi/campaigner/internal/render"
	"github.com/foxzi/campaigner/internal/template"
)

func TestTemplatesCRUD(t *testing.T) {
	env := setupTestServer(t, nil)

	w := env.do(t, "POST", "/api/v1/templates", TemplateRequest{
		Name:    "promo",
		Subject: "Welcome {name}",
		Text:    "Hello {name} from {company}",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", w.Code, w.Body.String())
	}
	created := decode[TemplateResponse](t, w)
	if len(created.Fields) != 2 || created.Fields[0] != "name" || created.Fields[1] != "company" {
		t.Errorf("Fields = %v, want [name company]", created.Fields)
	}

	w = env.do(t, "POST", "/api/v1/templates", TemplateRequest{Name: "promo", Subject: "x", Text: "y"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want %d", w.Code, http.StatusConflict)
	}

	w = env.do(t, "PUT", "/api/v1/templates/promo", TemplateRequest{Subject: "Hi {name}", HTML: "<p>Hi</p>"})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d (body %s)", w.Code, w.Body.String())
	}

	tmpl, err := env.templates.Get(context.Background(), "promo")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tmpl.Subject != "Hi {name}" || tmpl.Text != "" {
		t.Errorf("stored template = %+v", tmpl)
	}

	w = env.do(t, "PUT", "/api/v1/templates/promo", TemplateRequest{Name: "other", Subject: "x", Text: "y"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("rename status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = env.do(t, "GET", "/api/v1/templates", nil)
	list := decode[map[string][]string](t, w)
	want := []string{"anniversary", "followup", "promo", "welcome"}
	if strings.Join(list["templates"], ",") != strings.Join(want, ",") {
		t.Errorf("templates = %v, want %v", list["templates"], want)
	}

	if w := env.do(t, "DELETE", "/api/v1/templates/promo", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/templates/promo", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w := env.do(t, "DELETE", "/api/v1/templates/promo", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestTemplatesCreateInvalid(t *testing.T) {
	env := setupTestServer(t, nil)

	tests := []struct {
		name string
		req  TemplateRequest
	}{
		{"no name", TemplateRequest{Subject: "s", Text: "t"}},
		{"no subject", TemplateRequest{Name: "n", Text: "t"}},
		{"no body", TemplateRequest{Name: "n", Subject: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/v1/templates", tt.req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestTemplatesPreview(t *testing.T) {
	env := setupTestServer(t, nil)
	ctx := context.Background()

	if err := env.templates.Create(ctx, &template.Template{Name: "promo", Subject: "Welcome {name}", Text: "Hi {name}"}); err != nil {
		t.Fatal(err)
	}
	if err := env.templates.Create(ctx, &template.Template{Name: "coupon", Subject: "Code", Text: "Use {coupon_code}"}); err != nil {
		t.Fatal(err)
	}

	if w := env.do(t, "POST", "/api/v1/templates/promo/preview", nil); w.Code != http.StatusNotFound {
		t.Errorf("preview without recipients status = %d, want %d", w.Code, http.StatusNotFound)
	}

	env.addRecipient(t, "Alice Smith", "alice@example.com")
	bobID := env.addRecipient(t, "Bob", "bob@example.com")

	w := env.do(t, "POST", "/api/v1/templates/promo/preview", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d (body %s)", w.Code, w.Body.String())
	}
	email := decode[render.Email](t, w)
	if email.Subject != "Welcome Alice Smith" {
		t.Errorf("Subject = %q", email.Subject)
	}

	w = env.do(t, "POST", "/api/v1/templates/promo/preview", PreviewRequest{RecipientID: bobID})
	email = decode[render.Email](t, w)
	if email.Text != "Hi Bob" {
		t.Errorf("Text = %q, want %q", email.Text, "Hi Bob")
	}

	w = env.do(t, "POST", "/api/v1/templates/coupon/preview", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing field status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	if !strings.Contains(w.Body.String(), "coupon_code") {
		t.Errorf("error does not name the field: %s", w.Body.String())
	}
}
