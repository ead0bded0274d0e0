package mailbox

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Message is a received email
type Message struct {
	UID         uint32       `json:"uid"`
	MessageID   string       `json:"message_id"`
	From        string       `json:"from"` // Display name when present, else the address
	FromAddr    string       `json:"from_addr"`
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	Date        time.Time    `json:"date"`
	Flags       []string     `json:"flags,omitempty"`
	Text        string       `json:"text,omitempty"`
	HTML        string       `json:"html,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment describes a non-inline part
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Body returns the plain text body, falling back to the HTML body
func (m *Message) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.HTML
}

// Sender returns the address replies go to
func (m *Message) Sender() string {
	if m.FromAddr != "" {
		return m.FromAddr
	}
	return m.From
}

// DateString formats the date for display and quoting
func (m *Message) DateString() string {
	if m.Date.IsZero() {
		return "Unknown"
	}
	return m.Date.Format(time.RFC1123Z)
}

// parseBody extracts the text and HTML bodies and attachment metadata.
// A message go-message cannot parse is returned whole as text.
func parseBody(raw []byte) (text, html string, attachments []Attachment) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), "", nil
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain") && text == "":
				text = string(body)
			case strings.HasPrefix(contentType, "text/html") && html == "":
				html = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			size, _ := io.Copy(io.Discard, part.Body)
			attachments = append(attachments, Attachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        size,
			})
		}
	}

	return text, html, attachments
}

// Parse builds a Message from raw RFC 5322 data, such as a message held
// by the sandbox. Header fields that fail to parse are left empty.
func Parse(raw []byte) Message {
	var msg Message

	if mr, err := mail.CreateReader(bytes.NewReader(raw)); err == nil {
		h := mr.Header
		msg.Subject, _ = h.Subject()
		msg.MessageID, _ = h.MessageID()
		msg.Date, _ = h.Date()
		if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
			msg.FromAddr = from[0].Address
			msg.From = from[0].Name
			if msg.From == "" {
				msg.From = msg.FromAddr
			}
		}
		if to, err := h.AddressList("To"); err == nil {
			for _, addr := range to {
				msg.To = append(msg.To, addr.Address)
			}
		}
		mr.Close()
	}

	msg.Text, msg.HTML, msg.Attachments = parseBody(raw)
	return msg
}
