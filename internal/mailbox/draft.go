package mailbox

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/foxzi/campaigner/internal/transport"
)

// DefaultReplyHTML opens the HTML reply when the user gives none
const DefaultReplyHTML = "<p>Please see my reply below:</p>"

// Draft is an outgoing reply or forward
type Draft struct {
	To         []string
	Subject    string
	Text       string
	HTML       string
	InReplyTo  string
	References []string
}

// Message converts the draft for the transport sender
func (d *Draft) Message() *transport.Message {
	return &transport.Message{
		To:         d.To,
		Subject:    d.Subject,
		Text:       d.Text,
		HTML:       d.HTML,
		InReplyTo:  d.InReplyTo,
		References: d.References,
	}
}

var replyQuote = template.Must(template.New("reply").Parse(
	`<html><body>{{.Reply}}<blockquote style="border-left: 2px solid #256F9C; padding-left: 10px; color: #555;">` +
		`<small><strong>Original Message</strong><br>From: {{.From}}<br>Date: {{.Date}}<br>Subject: {{.Subject}}</small>` +
		`<p>{{.Body}}</p></blockquote></body></html>`))

var forwardHTML = template.Must(template.New("forward").Parse(
	`<html><body><div style="border-left: 3px solid #ccc; padding-left: 10px;">` +
		`{{if .Note}}<p>{{.Note}}</p>{{end}}` +
		`<p><strong>Forwarded message</strong></p>` +
		`<p><strong>From:</strong> {{.From}}</p>` +
		`<p><strong>Date:</strong> {{.Date}}</p>` +
		`<p><strong>Subject:</strong> {{.Subject}}</p>` +
		`<div style="margin-top: 15px;">{{.Body}}</div>` +
		`</div></body></html>`))

type quoteData struct {
	Reply   template.HTML
	Note    string
	From    string
	Date    string
	Subject string
	Body    template.HTML
}

// Reply drafts an answer to msg. replyHTML is trusted markup written by the
// user; an empty value becomes DefaultReplyHTML.
func Reply(msg *Message, replyText, replyHTML string) (*Draft, error) {
	if replyHTML == "" {
		replyHTML = DefaultReplyHTML
	}

	var text strings.Builder
	text.WriteString(replyText)
	text.WriteString("\n\n----- Original Message -----\n")
	text.WriteString("From: " + msg.From + "\n")
	text.WriteString("Date: " + msg.DateString() + "\n")
	text.WriteString("Subject: " + msg.Subject + "\n\n")
	for _, line := range strings.Split(msg.Body(), "\n") {
		text.WriteString("> " + line + "\n")
	}

	var html bytes.Buffer
	err := replyQuote.Execute(&html, quoteData{
		Reply:   template.HTML(replyHTML),
		From:    msg.From,
		Date:    msg.DateString(),
		Subject: msg.Subject,
		Body:    withBreaks(msg.Body()),
	})
	if err != nil {
		return nil, err
	}

	d := &Draft{
		To:        []string{msg.Sender()},
		Subject:   prefixSubject("Re: ", msg.Subject),
		Text:      text.String(),
		HTML:      html.String(),
		InReplyTo: msg.MessageID,
	}
	if msg.MessageID != "" {
		d.References = []string{msg.MessageID}
	}
	return d, nil
}

// Forward drafts a copy of msg addressed to to, with an optional note on top
func Forward(msg *Message, to, note string) (*Draft, error) {
	var text strings.Builder
	if note != "" {
		text.WriteString(note + "\n\n")
	}
	text.WriteString("---------- Forwarded message ----------\n")
	text.WriteString("From: " + orDefault(msg.From, "Unknown") + "\n")
	text.WriteString("Date: " + msg.DateString() + "\n")
	text.WriteString("Subject: " + orDefault(msg.Subject, "No Subject") + "\n\n")
	text.WriteString(msg.Body())

	var html bytes.Buffer
	err := forwardHTML.Execute(&html, quoteData{
		Note:    note,
		From:    orDefault(msg.From, "Unknown"),
		Date:    msg.DateString(),
		Subject: orDefault(msg.Subject, "No Subject"),
		Body:    withBreaks(msg.Body()),
	})
	if err != nil {
		return nil, err
	}

	return &Draft{
		To:      []string{to},
		Subject: prefixSubject("Fwd: ", msg.Subject),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

// prefixSubject adds prefix unless the subject already carries it
func prefixSubject(prefix, subject string) string {
	if len(subject) >= len(prefix) && strings.EqualFold(subject[:len(prefix)], prefix) {
		return subject
	}
	return prefix + subject
}

// withBreaks escapes s and turns newlines into <br>
func withBreaks(s string) template.HTML {
	escaped := template.HTMLEscapeString(s)
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
