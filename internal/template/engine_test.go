package template

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestSubstitute(t *testing.T) {
	fields := map[string]string{
		"name":               "Alice Smith",
		"email":              "alice@example.com",
		"company":            "",
		"last_purchase_date": "2023-01-15",
	}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{
			name:  "single placeholder",
			input: "Hello {name}",
			want:  "Hello Alice Smith",
		},
		{
			name:  "several placeholders",
			input: "{name} <{email}> bought on {last_purchase_date}",
			want:  "Alice Smith <alice@example.com> bought on 2023-01-15",
		},
		{
			name:  "empty value",
			input: "Company: [{company}]",
			want:  "Company: []",
		},
		{
			name:  "escaped braces",
			input: "body {{ margin: 0; }} {name}",
			want:  "body { margin: 0; } Alice Smith",
		},
		{
			name:  "escaped placeholder",
			input: "literal {{name}}",
			want:  "literal {name}",
		},
		{
			name:  "css rule passes through",
			input: ".header { color: #256F9C; }",
			want:  ".header { color: #256F9C; }",
		},
		{
			name:  "lone braces",
			input: "{ } {} {1x} {",
			want:  "{ } {} {1x} {",
		},
		{
			name:    "missing field",
			input:   "Hi {name}, your code is {coupon}",
			wantErr: "coupon",
		},
		{
			name:  "no placeholders",
			input: "Plain text",
			want:  "Plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Substitute(tt.input, fields)
			if tt.wantErr != "" {
				var mfe *MissingFieldError
				if !errors.As(err, &mfe) {
					t.Fatalf("Substitute() error = %v, want MissingFieldError", err)
				}
				if mfe.Field != tt.wantErr {
					t.Errorf("MissingFieldError.Field = %q, want %q", mfe.Field, tt.wantErr)
				}
				if !errors.Is(err, ErrMissingField) {
					t.Error("errors.Is(err, ErrMissingField) = false")
				}
				return
			}
			if err != nil {
				t.Fatalf("Substitute() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Substitute() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{name}, {{skip}} {email} {name} {1bad} { spaced }")
	want := []string{"name", "email"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Placeholders() = %v, want %v", got, want)
	}

	if got := Placeholders("no fields"); len(got) != 0 {
		t.Errorf("Placeholders() = %v, want empty", got)
	}
}

func TestTemplate_Fields(t *testing.T) {
	tmpl := &Template{
		Subject: "{name}, your purchase",
		Text:    "on {last_purchase_date}",
		HTML:    "<p>{name} at {company}</p>",
	}
	want := []string{"name", "last_purchase_date", "company"}
	if got := tmpl.Fields(); !reflect.DeepEqual(got, want) {
		t.Errorf("Fields() = %v, want %v", got, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		tmpl    *Template
		wantErr bool
	}{
		{
			name:    "valid template",
			tmpl:    &Template{Name: "promo", Subject: "Hi {name}", Text: "Hello"},
			wantErr: false,
		},
		{
			name:    "html only",
			tmpl:    &Template{Name: "promo", Subject: "Hi", HTML: "<p>Hello</p>"},
			wantErr: false,
		},
		{
			name:    "missing name",
			tmpl:    &Template{Subject: "Hi", Text: "Hello"},
			wantErr: true,
		},
		{
			name:    "missing subject",
			tmpl:    &Template{Name: "promo", Text: "Hello"},
			wantErr: true,
		},
		{
			name:    "missing body",
			tmpl:    &Template{Name: "promo", Subject: "Hi"},
			wantErr: true,
		},
		{
			name:    "nil template",
			tmpl:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.tmpl)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestDefaultsRenderWithRecipientFields(t *testing.T) {
	fields := map[string]string{
		"name":               "Bob",
		"email":              "bob@example.com",
		"company":            "Acme",
		"last_purchase_date": "2024-02-01",
	}

	for _, tmpl := range Defaults() {
		t.Run(tmpl.Name, func(t *testing.T) {
			if err := Validate(tmpl); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			for _, part := range []string{tmpl.Subject, tmpl.Text, tmpl.HTML} {
				out, err := Substitute(part, fields)
				if err != nil {
					t.Fatalf("Substitute() error = %v", err)
				}
				if strings.Contains(out, "{name}") || strings.Contains(out, "{last_purchase_date}") {
					t.Errorf("placeholder left in output: %q", out)
				}
			}
		})
	}
}
