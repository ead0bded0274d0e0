package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/foxzi/campaigner/internal/headers"
)

func TestLoad(t *testing.T) {
	// Create temp config file
	content := `
smtp:
  host: "smtp.qiye.aliyun.com"
  port: 465
  sender: "sales@plyflame.com"
  timeout: 20s

imap:
  host: "imap.qiye.aliyun.com"

storage:
  database_path: "/tmp/recipients.db"
  data_path: "/tmp/campaigner.db"

dispatch:
  delay: 2s
  test_batch_size: 3

rate_limit:
  enabled: true
  global:
    messages_per_hour: 100
    messages_per_day: 1000
  recipient_domains:
    gmail.com:
      messages_per_hour: 10

logging:
  level: "debug"
  format: "json"

header_rules:
  global:
    - action: remove
      headers: ["X-Mailer"]
    - action: add
      header: List-Unsubscribe
      value: "<mailto:unsubscribe@plyflame.com?subject={id}>"
  domains:
    gmail.com:
      - action: replace
        header: Precedence
        value: bulk
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SMTP.Host != "smtp.qiye.aliyun.com" {
		t.Errorf("SMTP.Host = %v, want smtp.qiye.aliyun.com", cfg.SMTP.Host)
	}
	if cfg.SMTP.TLSMode != TLSModeImplicit {
		t.Errorf("SMTP.TLSMode = %v, want implicit", cfg.SMTP.TLSMode)
	}
	if cfg.SMTP.Username != "sales@plyflame.com" {
		t.Errorf("SMTP.Username = %v, want sender address", cfg.SMTP.Username)
	}
	if cfg.SMTP.Timeout != 20*time.Second {
		t.Errorf("SMTP.Timeout = %v, want 20s", cfg.SMTP.Timeout)
	}
	if cfg.IMAP.Username != "sales@plyflame.com" {
		t.Errorf("IMAP.Username = %v, want sender address", cfg.IMAP.Username)
	}
	if cfg.IMAP.Port != 993 {
		t.Errorf("IMAP.Port = %v, want 993", cfg.IMAP.Port)
	}
	if cfg.Dispatch.Delay != 2*time.Second {
		t.Errorf("Dispatch.Delay = %v, want 2s", cfg.Dispatch.Delay)
	}
	if cfg.Dispatch.TestBatchSize != 3 {
		t.Errorf("Dispatch.TestBatchSize = %v, want 3", cfg.Dispatch.TestBatchSize)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.Global.MessagesPerHour != 100 {
		t.Errorf("RateLimit = %+v, want enabled with global 100/h", cfg.RateLimit)
	}
	if cfg.RateLimit.RecipientDomains["gmail.com"].MessagesPerHour != 10 {
		t.Error("RateLimit.RecipientDomains[gmail.com] not loaded")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
	if rules := cfg.HeaderRules.GetRulesForDomain("gmail.com"); len(rules) != 3 || rules[2].Value != "bulk" {
		t.Errorf("HeaderRules for gmail.com = %+v", rules)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `
smtp:
  host: "smtp.example.com"
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SMTP.Port != 465 {
		t.Errorf("SMTP.Port = %v, want 465", cfg.SMTP.Port)
	}
	if cfg.Dispatch.Delay != time.Second {
		t.Errorf("Dispatch.Delay = %v, want 1s", cfg.Dispatch.Delay)
	}
	if cfg.Dispatch.TestBatchSize != 5 {
		t.Errorf("Dispatch.TestBatchSize = %v, want 5", cfg.Dispatch.TestBatchSize)
	}
	if cfg.Storage.DatabasePath != "email_recipients.db" {
		t.Errorf("Storage.DatabasePath = %v, want email_recipients.db", cfg.Storage.DatabasePath)
	}
	if cfg.Storage.BackupDir != "backups" {
		t.Errorf("Storage.BackupDir = %v, want backups", cfg.Storage.BackupDir)
	}
	if cfg.IMAP.Mailbox != "INBOX" {
		t.Errorf("IMAP.Mailbox = %v, want INBOX", cfg.IMAP.Mailbox)
	}
	if cfg.Brand.DiscountCode != "THANKYOU20" {
		t.Errorf("Brand.DiscountCode = %v, want THANKYOU20", cfg.Brand.DiscountCode)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %v, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %v, want text", cfg.Logging.Format)
	}
	if cfg.Credentials.Store != "keyring" {
		t.Errorf("Credentials.Store = %v, want keyring", cfg.Credentials.Store)
	}
	if cfg.Sandbox.Mode != SandboxModeOff {
		t.Errorf("Sandbox.Mode = %v, want off", cfg.Sandbox.Mode)
	}
	if cfg.Sandbox.ListenAddr != "127.0.0.1:2525" {
		t.Errorf("Sandbox.ListenAddr = %v, want 127.0.0.1:2525", cfg.Sandbox.ListenAddr)
	}
}

func TestSMTPPortDefaults(t *testing.T) {
	tests := []struct {
		name     string
		smtp     SMTPConfig
		wantPort int
		wantMode string
	}{
		{"empty", SMTPConfig{}, 465, TLSModeImplicit},
		{"starttls mode", SMTPConfig{TLSMode: TLSModeStartTLS}, 587, TLSModeStartTLS},
		{"submission port", SMTPConfig{Port: 587}, 587, TLSModeStartTLS},
		{"plain relay", SMTPConfig{TLSMode: TLSModeNone}, 25, TLSModeNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{SMTP: tt.smtp}
			cfg.setDefaults()
			if cfg.SMTP.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", cfg.SMTP.Port, tt.wantPort)
			}
			if cfg.SMTP.TLSMode != tt.wantMode {
				t.Errorf("TLSMode = %s, want %s", cfg.SMTP.TLSMode, tt.wantMode)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		return *cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid tls mode",
			mutate:  func(c *Config) { c.SMTP.TLSMode = "ssl" },
			wantErr: true,
		},
		{
			name:    "invalid sender",
			mutate:  func(c *Config) { c.SMTP.Sender = "not an address" },
			wantErr: true,
		},
		{
			name:    "negative delay",
			mutate:  func(c *Config) { c.Dispatch.Delay = -time.Second },
			wantErr: true,
		},
		{
			name:    "invalid api allowed ip",
			mutate:  func(c *Config) { c.API.AllowedIPs = []string{"10.0.0.0/99"} },
			wantErr: true,
		},
		{
			name:    "valid sandbox allowed ips",
			mutate:  func(c *Config) { c.Sandbox.AllowedIPs = []string{"127.0.0.1", "10.0.0.0/8"} },
			wantErr: false,
		},
		{
			name:    "invalid sandbox allowed ip",
			mutate:  func(c *Config) { c.Sandbox.AllowedIPs = []string{"localhost"} },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid credential store",
			mutate:  func(c *Config) { c.Credentials.Store = "vault" },
			wantErr: true,
		},
		{
			name:    "dkim without selector",
			mutate:  func(c *Config) { c.DKIM = DKIMConfig{Enabled: true, KeyFile: "k.pem", Domain: "example.com"} },
			wantErr: true,
		},
		{
			name:    "invalid sandbox mode",
			mutate:  func(c *Config) { c.Sandbox.Mode = "shadow" },
			wantErr: true,
		},
		{
			name:    "redirect without addresses",
			mutate:  func(c *Config) { c.Sandbox.Mode = SandboxModeRedirect },
			wantErr: true,
		},
		{
			name: "redirect with address",
			mutate: func(c *Config) {
				c.Sandbox.Mode = SandboxModeRedirect
				c.Sandbox.RedirectTo = []string{"qa@plyflame.com"}
			},
			wantErr: false,
		},
		{
			name:    "tls cert without key",
			mutate:  func(c *Config) { c.API.TLS.CertFile = "api.crt" },
			wantErr: true,
		},
		{
			name: "tls files and acme",
			mutate: func(c *Config) {
				c.API.TLS = TLSConfig{CertFile: "api.crt", KeyFile: "api.key", ACME: ACMEConfig{Enabled: true, Domains: []string{"api.plyflame.com"}}}
			},
			wantErr: true,
		},
		{
			name:    "acme without domains",
			mutate:  func(c *Config) { c.API.TLS.ACME.Enabled = true },
			wantErr: true,
		},
		{
			name: "acme with domain",
			mutate: func(c *Config) {
				c.API.TLS.ACME = ACMEConfig{Enabled: true, Email: "admin@plyflame.com", Domains: []string{"api.plyflame.com"}, CacheDir: "certs"}
			},
			wantErr: false,
		},
		{
			name: "valid header rules",
			mutate: func(c *Config) {
				c.HeaderRules = &headers.Config{Global: []headers.Rule{
					{Action: headers.ActionAdd, Header: "List-Unsubscribe", Value: "<mailto:unsubscribe@plyflame.com>"},
				}}
			},
			wantErr: false,
		},
		{
			name: "header rule on protected header",
			mutate: func(c *Config) {
				c.HeaderRules = &headers.Config{Global: []headers.Rule{
					{Action: headers.ActionRemove, Headers: []string{"Message-ID"}},
				}}
			},
			wantErr: true,
		},
		{
			name: "negative rate limit",
			mutate: func(c *Config) {
				c.RateLimit.RecipientDomains = map[string]*LimitValues{"gmail.com": {MessagesPerHour: -1}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckSMTP(t *testing.T) {
	cfg := Default()
	if err := cfg.CheckSMTP(); err == nil {
		t.Error("CheckSMTP() expected error without host")
	}

	cfg.SMTP.Host = "smtp.example.com"
	if err := cfg.CheckSMTP(); err == nil {
		t.Error("CheckSMTP() expected error without sender")
	}

	cfg.SMTP.Sender = "news@example.com"
	if err := cfg.CheckSMTP(); err != nil {
		t.Errorf("CheckSMTP() error = %v", err)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() expected error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	content := `invalid: yaml: content: [`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(cfgPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}
