package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/foxzi/campaigner/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.name); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.LoggingConfig{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown", "recipient", "bob@example.com")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(out, `"recipient":"bob@example.com"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestSetup_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	logger, closer, err := Setup(config.LoggingConfig{Level: "info", Format: "text", File: path})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	logger.Info("campaign started", "campaign_id", "default")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "campaign started") {
		t.Errorf("log file = %q", data)
	}
}

func TestSendLog_Record(t *testing.T) {
	var buf bytes.Buffer
	l := NewSendLog(&buf)
	l.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }

	if err := l.Record("bob@example.com", StatusDelivered, ""); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := l.Record("eve@example.com", StatusFailed, "SMTP Error:\n550 mailbox unavailable"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	want := "2024-03-01 10:00:00 - INFO - Sent to bob@example.com | Status: Delivered | \n" +
		"2024-03-01 10:00:00 - ERROR - Sent to eve@example.com | Status: Failed | SMTP Error: 550 mailbox unavailable\n"
	if buf.String() != want {
		t.Errorf("Record() wrote %q, want %q", buf.String(), want)
	}
}

func TestSendLog_Nil(t *testing.T) {
	var l *SendLog
	if err := l.Record("a@b.c", StatusDelivered, ""); err != nil {
		t.Errorf("nil Record() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "email_system.log")

	var lines []string
	for i := 1; i <= 15; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := Tail(path, 10)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("Tail() returned %d lines, want 10", len(got))
	}
	if got[0] != "line 6" || got[9] != "line 15" {
		t.Errorf("Tail() = %v", got)
	}

	got, err = Tail(path, 100)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(got) != 15 {
		t.Errorf("Tail() returned %d lines, want 15", len(got))
	}
}

func TestTail_Missing(t *testing.T) {
	got, err := Tail(filepath.Join(t.TempDir(), "missing.log"), 10)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Tail() = %v, want empty", got)
	}
}

func TestOpenSendLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "email_logs", "email_system.log")
	l, err := OpenSendLog(path)
	if err != nil {
		t.Fatalf("OpenSendLog() error = %v", err)
	}
	if err := l.Record("bob@example.com", StatusDelivered, ""); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err := Tail(path, 10)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(got) != 1 || !strings.Contains(got[0], "Sent to bob@example.com | Status: Delivered") {
		t.Errorf("Tail() = %v", got)
	}
}
