package transport

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/foxzi/campaigner/internal/headers"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var buildTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func readParts(t *testing.T, data []byte) (*mail.Reader, map[string]string) {
	t.Helper()

	mr, err := mail.CreateReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("CreateReader() error = %v", err)
	}

	parts := make(map[string]string)
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart() error = %v", err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, _ := io.ReadAll(p.Body)
		parts[ct] = string(body)
	}
	return mr, parts
}

func TestBuild_Alternative(t *testing.T) {
	msg := &Message{
		From:     "news@plyflame.com",
		FromName: "PlyFlame",
		To:       []string{"alice@example.com"},
		Subject:  "Your Personalized Update - Zoë",
		Text:     "Hi Zoë,",
		HTML:     "<p>Hi Zoë,</p>",
	}

	data, err := Build(msg, buildTime)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	mr, parts := readParts(t, data)
	if parts["text/plain"] != "Hi Zoë," {
		t.Errorf("text part = %q", parts["text/plain"])
	}
	if parts["text/html"] != "<p>Hi Zoë,</p>" {
		t.Errorf("html part = %q", parts["text/html"])
	}

	subject, err := mr.Header.Subject()
	if err != nil || subject != msg.Subject {
		t.Errorf("Subject = %q, %v", subject, err)
	}
	from, err := mr.Header.AddressList("From")
	if err != nil || len(from) != 1 || from[0].Address != "news@plyflame.com" || from[0].Name != "PlyFlame" {
		t.Errorf("From = %v, %v", from, err)
	}
	date, err := mr.Header.Date()
	if err != nil || !date.Equal(buildTime) {
		t.Errorf("Date = %v, %v", date, err)
	}
	id, err := mr.Header.MessageID()
	if err != nil || !strings.HasSuffix(id, "@plyflame.com") {
		t.Errorf("Message-ID = %q, %v", id, err)
	}
	if mr.Header.Get("MIME-Version") != "1.0" {
		t.Error("missing MIME-Version")
	}
}

func TestBuild_SinglePart(t *testing.T) {
	tests := []struct {
		name    string
		msg     *Message
		wantCT  string
		wantStr string
	}{
		{"text only", &Message{From: "a@plyflame.com", To: []string{"b@example.com"}, Text: "plain body"}, "text/plain", "plain body"},
		{"html only", &Message{From: "a@plyflame.com", To: []string{"b@example.com"}, HTML: "<b>bold</b>"}, "text/html", "<b>bold</b>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Build(tt.msg, buildTime)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			mr, err := mail.CreateReader(bytes.NewReader(data))
			if err != nil {
				t.Fatal(err)
			}
			ct, params, _ := mr.Header.ContentType()
			if ct != tt.wantCT || params["charset"] != "utf-8" {
				t.Errorf("Content-Type = %s %v", ct, params)
			}
			p, err := mr.NextPart()
			if err != nil {
				t.Fatal(err)
			}
			body, _ := io.ReadAll(p.Body)
			if string(body) != tt.wantStr {
				t.Errorf("body = %q", body)
			}
		})
	}
}

func TestBuild_ReplyHeaders(t *testing.T) {
	data, err := Build(&Message{
		From:       "news@plyflame.com",
		To:         []string{"alice@example.com"},
		Subject:    "Re: Question",
		Text:       "answer",
		InReplyTo:  "orig-1@example.com",
		References: []string{"root@example.com", "orig-1@example.com"},
	}, buildTime)
	if err != nil {
		t.Fatal(err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	inReplyTo, _ := mr.Header.MsgIDList("In-Reply-To")
	if len(inReplyTo) != 1 || inReplyTo[0] != "orig-1@example.com" {
		t.Errorf("In-Reply-To = %v", inReplyTo)
	}
	refs, _ := mr.Header.MsgIDList("References")
	if len(refs) != 2 {
		t.Errorf("References = %v", refs)
	}
}

func TestBuild_HeaderRules(t *testing.T) {
	data, err := Build(&Message{
		From:    "news@plyflame.com",
		To:      []string{"alice@example.com"},
		Subject: "Spring sale",
		Text:    "hello",
		Headers: []headers.Rule{
			{Action: headers.ActionAdd, Header: "List-Unsubscribe", Value: "<mailto:unsubscribe@plyflame.com>"},
			{Action: headers.ActionReplace, Header: "Precedence", Value: "bulk"},
		},
	}, buildTime)
	if err != nil {
		t.Fatal(err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if got := mr.Header.Get("List-Unsubscribe"); got != "<mailto:unsubscribe@plyflame.com>" {
		t.Errorf("List-Unsubscribe = %q", got)
	}
	if got := mr.Header.Get("Precedence"); got != "bulk" {
		t.Errorf("Precedence = %q", got)
	}
	if subject, _ := mr.Header.Subject(); subject != "Spring sale" {
		t.Errorf("Subject = %q", subject)
	}
}

func TestBuild_Invalid(t *testing.T) {
	if _, err := Build(&Message{Text: "x"}, buildTime); err == nil {
		t.Error("expected error without recipients")
	}
	if _, err := Build(&Message{To: []string{"a@example.com"}}, buildTime); err == nil {
		t.Error("expected error without body")
	}
}
