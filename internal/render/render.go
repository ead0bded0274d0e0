package render

import (
	"bytes"
	"embed"
	"fmt"
	htmlTemplate "html/template"
	"strconv"
	"strings"
	textTemplate "text/template"
	"time"

	"github.com/foxzi/campaigner/internal/config"
	"github.com/foxzi/campaigner/internal/recipient"
	"github.com/foxzi/campaigner/internal/template"
)

//go:embed layouts/*
var layoutsFS embed.FS

var (
	personalizedHTML = htmlTemplate.Must(htmlTemplate.ParseFS(layoutsFS, "layouts/personalized.html"))
	personalizedText = textTemplate.Must(textTemplate.ParseFS(layoutsFS, "layouts/personalized.txt"))
)

// Brand holds the fixed blocks of the built-in personalized email
type Brand = config.BrandConfig

// RecencyWindow is how far back a purchase still counts as recent
const RecencyWindow = 30 * 24 * time.Hour

// Email is a rendered message
type Email struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Renderer turns templates and recipients into emails. It holds no state
// besides the clock and brand settings.
type Renderer struct {
	Now   func() time.Time
	Brand Brand
}

// New creates a renderer using the wall clock
func New(brand Brand) *Renderer {
	return &Renderer{Now: time.Now, Brand: brand}
}

func (r *Renderer) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Fields returns the substitution fields of a recipient. last_purchase is
// "recently" for a purchase inside RecencyWindow and "earlier" otherwise.
func (r *Renderer) Fields(rcpt *recipient.Recipient) map[string]string {
	lastPurchase := "earlier"
	if ParsePurchaseDate(rcpt.LastPurchaseDate, r.now()).Recent {
		lastPurchase = "recently"
	}

	fields := map[string]string{
		"name":               rcpt.Name,
		"email":              rcpt.Email,
		"company":            "",
		"last_purchase_date": "",
		"last_purchase":      lastPurchase,
		"id":                 strconv.FormatInt(rcpt.ID, 10),
		"first_name":         FirstName(rcpt.Name),
	}
	if rcpt.Company != nil {
		fields["company"] = *rcpt.Company
	}
	if rcpt.LastPurchaseDate != nil {
		fields["last_purchase_date"] = *rcpt.LastPurchaseDate
	}
	return fields
}

// RenderTemplate substitutes recipient fields into subject, text and HTML.
// An unknown placeholder yields a *template.MissingFieldError.
func (r *Renderer) RenderTemplate(tmpl *template.Template, rcpt *recipient.Recipient) (*Email, error) {
	fields := r.Fields(rcpt)

	subject, err := template.Substitute(tmpl.Subject, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	text, err := template.Substitute(tmpl.Text, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to render text: %w", err)
	}
	html, err := template.Substitute(tmpl.HTML, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to render html: %w", err)
	}

	return &Email{Subject: subject, Text: text, HTML: html}, nil
}

// PurchaseInfo describes a recipient's last purchase date
type PurchaseInfo struct {
	Display string
	Recent  bool
	Parsed  bool
}

// ParsePurchaseDate parses a YYYY-MM-DD date. A missing date displays as
// "unknown date" and an unparseable one is shown verbatim; neither is
// recent.
func ParsePurchaseDate(raw *string, now time.Time) PurchaseInfo {
	if raw == nil {
		return PurchaseInfo{Display: "unknown date"}
	}

	date, err := time.ParseInLocation("2006-1-2", *raw, now.Location())
	if err != nil {
		return PurchaseInfo{Display: *raw}
	}

	return PurchaseInfo{
		Display: date.Format("January 02, 2006"),
		Recent:  date.After(now.Add(-RecencyWindow)),
		Parsed:  true,
	}
}

// FirstName returns the first whitespace-separated token of name, or
// "there" when name is blank
func FirstName(name string) string {
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return "there"
}

type discount struct {
	Headline string
	Code     string
}

type personalizedData struct {
	Name       string
	Purchase   PurchaseInfo
	Discount   *discount
	Paragraphs []string
	ProductURL string
	Brand      Brand
}

// RenderPersonalized builds the built-in email used when no template is
// chosen. Recipients without a recent purchase get a discount banner.
func (r *Renderer) RenderPersonalized(rcpt *recipient.Recipient) (*Email, error) {
	purchase := ParsePurchaseDate(rcpt.LastPurchaseDate, r.now())

	data := personalizedData{
		Name:     rcpt.Name,
		Purchase: purchase,
		Paragraphs: []string{
			"Hi " + rcpt.Name + ",",
			"We noticed you recently purchased: " + purchase.Display,
			"Here's what's new for you:",
			"1. Exclusive member discounts",
			"2. New products that complement your purchase",
			"We appreciate your business!",
		},
		ProductURL: r.Brand.ProductLink + "?utm_source=email&utm_campaign=followup",
		Brand:      r.Brand,
	}
	if !purchase.Recent {
		data.Discount = &discount{
			Headline: "Exclusive 20% OFF for " + FirstName(rcpt.Name) + "!",
			Code:     r.Brand.DiscountCode,
		}
	}

	var html, text bytes.Buffer
	if err := personalizedHTML.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render html: %w", err)
	}
	if err := personalizedText.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render text: %w", err)
	}

	return &Email{
		Subject: "Your Personalized Update - " + rcpt.Name,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
