package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/foxzi/campaigner/internal/config"
)

func TestFromConfig(t *testing.T) {
	cfg := config.SMTPConfig{
		Host:    "smtp.example.com",
		Port:    465,
		Sender:  "news@plyflame.com",
		TLSMode: config.TLSModeImplicit,
		Timeout: 10 * time.Second,
	}

	got := FromConfig(cfg, "secret")
	if got.Username != "news@plyflame.com" {
		t.Errorf("Username = %q, want sender", got.Username)
	}
	if got.Password != "secret" || got.From != "news@plyflame.com" {
		t.Errorf("FromConfig() = %+v", got)
	}
	if got.Addr() != "smtp.example.com:465" {
		t.Errorf("Addr() = %q", got.Addr())
	}

	cfg.Username = "login-name"
	if got := FromConfig(cfg, ""); got.Username != "login-name" {
		t.Errorf("Username = %q, want explicit username", got.Username)
	}
}

func TestSendError(t *testing.T) {
	base := errors.New("535 5.7.8 Authentication failed")

	tests := []struct {
		name          string
		err           *SendError
		wantAuth      bool
		wantTemporary bool
	}{
		{"auth", &SendError{Kind: KindAuth, Stage: "AUTH", Code: 535, Err: base}, true, false},
		{"rejected", &SendError{Kind: KindRejected, Stage: "RCPT TO", Code: 550, Err: base}, false, false},
		{"greylisted", &SendError{Kind: KindRejected, Stage: "RCPT TO", Code: 451, Err: base}, false, true},
		{"connection", &SendError{Kind: KindConnection, Stage: "connect", Err: base}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("recipient 3: %w", tt.err)
			if got := errors.Is(wrapped, ErrAuth); got != tt.wantAuth {
				t.Errorf("errors.Is(ErrAuth) = %v, want %v", got, tt.wantAuth)
			}
			if got := tt.err.Temporary(); got != tt.wantTemporary {
				t.Errorf("Temporary() = %v, want %v", got, tt.wantTemporary)
			}
			if !errors.Is(wrapped, base) {
				t.Error("SendError does not unwrap to the cause")
			}
			if KindOf(wrapped) != tt.err.Kind {
				t.Errorf("KindOf() = %v, want %v", KindOf(wrapped), tt.err.Kind)
			}
		})
	}

	if KindOf(errors.New("boom")) != KindGeneric {
		t.Error("plain error should be generic")
	}
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindGeneric:    "generic",
		KindAuth:       "auth",
		KindConnection: "connection",
		KindRejected:   "rejected",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		err      error
		stage    string
		wantKind Kind
		wantCode int
	}{
		{"mailbox unavailable", &smtp.SMTPError{Code: 550, Message: "no such user"}, "RCPT TO", KindRejected, 550},
		{"auth required", &smtp.SMTPError{Code: 530, Message: "auth required"}, "MAIL FROM", KindAuth, 530},
		{"temporary", &smtp.SMTPError{Code: 421, Message: "try later"}, "DATA", KindRejected, 421},
		{"eof", io.EOF, "DATA", KindConnection, 0},
		{"net error", &net.OpError{Op: "read", Err: errors.New("reset")}, "DATA", KindConnection, 0},
		{"other", errors.New("boom"), "DATA", KindGeneric, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := classify(ctx, tt.err, tt.stage)
			if se.Kind != tt.wantKind || se.Code != tt.wantCode || se.Stage != tt.stage {
				t.Errorf("classify() = %+v, want kind %v code %d", se, tt.wantKind, tt.wantCode)
			}
		})
	}
}

func TestClassifyAuth(t *testing.T) {
	se := classifyAuth(context.Background(), &smtp.SMTPError{Code: 454, Message: "temporary auth failure"})
	if se.Kind != KindAuth {
		t.Errorf("Kind = %v, want auth", se.Kind)
	}
	se = classifyAuth(context.Background(), io.EOF)
	if se.Kind != KindConnection {
		t.Errorf("Kind = %v, want connection for a dropped link", se.Kind)
	}
}

func TestClassifyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	se := classify(ctx, io.EOF, "DATA")
	if !errors.Is(se, context.Canceled) {
		t.Errorf("classify() = %v, want context.Canceled", se)
	}
}

func TestSMTPSender_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().(*net.TCPAddr)
	l.Close()

	cfg := Config{Host: "127.0.0.1", Port: addr.Port, From: "news@plyflame.com", TLSMode: config.TLSModeNone, Timeout: time.Second}
	err = NewSMTPSender(nil, testLogger()).Send(context.Background(), cfg, &Message{
		To:   []string{"alice@example.com"},
		Text: "hi",
	})
	if KindOf(err) != KindConnection {
		t.Errorf("Send() error = %v, want connection error", err)
	}
}

func TestSMTPSender_BuildErrorBeforeDial(t *testing.T) {
	cfg := Config{Host: "203.0.113.1", Port: 25, TLSMode: config.TLSModeNone, Timeout: time.Second}
	err := NewSMTPSender(nil, testLogger()).Send(context.Background(), cfg, &Message{Text: "no recipients"})

	var se *SendError
	if !errors.As(err, &se) || se.Stage != "build" {
		t.Errorf("Send() error = %v, want build failure", err)
	}
}
