package transport

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/foxzi/campaigner/internal/headers"
)

// Build encodes msg as an RFC 5322 message. With both bodies set the result
// is multipart/alternative, otherwise a single text part.
func Build(msg *Message, now time.Time) ([]byte, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("message has no recipients")
	}
	if msg.Text == "" && msg.HTML == "" {
		return nil, fmt.Errorf("message has no body")
	}

	var h mail.Header
	h.Set("MIME-Version", "1.0")
	h.SetDate(now)
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: msg.FromName, Address: msg.From}})

	to := make([]*mail.Address, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", to)
	h.SetMessageID(uuid.NewString() + "@" + domainOf(msg.From))

	if msg.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{msg.InReplyTo})
	}
	if len(msg.References) > 0 {
		h.SetMsgIDList("References", msg.References)
	}
	headers.Apply(&h, msg.Headers)

	var buf bytes.Buffer
	if msg.Text != "" && msg.HTML != "" {
		if err := writeAlternative(&buf, h, msg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	body, contentType := msg.Text, "text/plain"
	if body == "" {
		body, contentType = msg.HTML, "text/html"
	}
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})

	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if err := writePart(w, body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeAlternative(buf *bytes.Buffer, h mail.Header, msg *Message) error {
	iw, err := mail.CreateInlineWriter(buf, h)
	if err != nil {
		return fmt.Errorf("failed to create message writer: %w", err)
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", msg.Text},
		{"text/html", msg.HTML},
	}
	for _, p := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		w, err := iw.CreatePart(ph)
		if err != nil {
			return fmt.Errorf("failed to create %s part: %w", p.contentType, err)
		}
		if err := writePart(w, p.body); err != nil {
			return err
		}
	}

	if err := iw.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return nil
}

func writePart(w io.WriteCloser, body string) error {
	if _, err := io.WriteString(w, body); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message body: %w", err)
	}
	return nil
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
