package config

import (
	"fmt"
	"net/mail"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/foxzi/campaigner/internal/headers"
	"github.com/foxzi/campaigner/internal/ipfilter"
)

// Config is the main configuration structure
type Config struct {
	SMTP        SMTPConfig        `yaml:"smtp"`
	IMAP        IMAPConfig        `yaml:"imap"`
	Storage     StorageConfig     `yaml:"storage"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	DKIM        DKIMConfig        `yaml:"dkim"`
	Brand       BrandConfig       `yaml:"brand"`
	API         APIConfig         `yaml:"api"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Sandbox     SandboxConfig     `yaml:"sandbox"`
	HeaderRules *headers.Config   `yaml:"header_rules"` // Header manipulation rules
}

// SMTP TLS modes
const (
	TLSModeImplicit = "implicit" // SMTPS, usually port 465
	TLSModeStartTLS = "starttls" // submission, usually port 587
	TLSModeNone     = "none"     // plain text, local relays and test servers only
)

// SMTPConfig contains mail submission settings
type SMTPConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	Sender             string        `yaml:"sender"`   // From address
	Username           string        `yaml:"username"` // Defaults to sender
	Password           string        `yaml:"password"` // Prefer keyring or CAMPAIGNER_SMTP_PASSWORD
	TLSMode            string        `yaml:"tls_mode"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	HeloName           string        `yaml:"helo_name"` // EHLO name for plain and implicit TLS connections
	Timeout            time.Duration `yaml:"timeout"`
}

// IMAPConfig contains mailbox retrieval settings
type IMAPConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	StartTLS   bool   `yaml:"starttls"` // false = implicit TLS
	Mailbox    string `yaml:"mailbox"`
	FetchLimit int    `yaml:"fetch_limit"`
}

// StorageConfig contains local storage settings
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"` // SQLite recipients table
	DataPath     string `yaml:"data_path"`     // bbolt file: templates, analytics, quotas
	BackupDir    string `yaml:"backup_dir"`
}

// DispatchConfig contains campaign dispatch settings
type DispatchConfig struct {
	Delay         time.Duration `yaml:"delay"`           // Pause after every send attempt
	TestBatchSize int           `yaml:"test_batch_size"` // Recipients used by test batches
}

// RateLimitConfig contains persisted sending quotas
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// Global limits (all campaigns)
	Global *LimitValues `yaml:"global,omitempty"`

	// Default limits per sender address
	DefaultSender *LimitValues `yaml:"default_sender,omitempty"`

	// Default limits for recipient domains (e.g., gmail.com, mail.ru)
	DefaultRecipientDomain *LimitValues `yaml:"default_recipient_domain,omitempty"`

	// Per-recipient-domain limits (overrides DefaultRecipientDomain)
	RecipientDomains map[string]*LimitValues `yaml:"recipient_domains,omitempty"`
}

// LimitValues contains rate limit values
type LimitValues struct {
	MessagesPerHour int `yaml:"messages_per_hour"`
	MessagesPerDay  int `yaml:"messages_per_day"`
}

// DKIMConfig contains DKIM signing settings for outgoing campaign mail
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
	Domain   string `yaml:"domain"`
}

// BrandConfig holds the fixed blocks of the built-in personalized email
type BrandConfig struct {
	Name               string `yaml:"name"`
	SiteURL            string `yaml:"site_url"`
	LogoURL            string `yaml:"logo_url"`
	ProductLink        string `yaml:"product_link"`
	ProductImageURL    string `yaml:"product_image_url"`
	ProductAlt         string `yaml:"product_alt"`
	ProductDescription string `yaml:"product_description"`
	CTAURL             string `yaml:"cta_url"`
	CTALabel           string `yaml:"cta_label"`
	ContactURL         string `yaml:"contact_url"`
	AccountURL         string `yaml:"account_url"`
	DiscountCode       string `yaml:"discount_code"`
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	APIKeyHash   string        `yaml:"api_key_hash"` // bcrypt hash, see `campaigner api hash-key`
	AllowedIPs   []string      `yaml:"allowed_ips"`  // IP addresses/CIDRs allowed to access API (empty = allow all)
	TrustProxy   bool          `yaml:"trust_proxy"`  // Take the client IP from X-Forwarded-For
	CORSOrigins  []string      `yaml:"cors_origins"` // Browser origins allowed to call the API (empty = no CORS headers)
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	TLS          TLSConfig     `yaml:"tls"`
}

// TLSConfig contains TLS certificate settings of the API listener
type TLSConfig struct {
	CertFile string     `yaml:"cert_file"`
	KeyFile  string     `yaml:"key_file"`
	ACME     ACMEConfig `yaml:"acme"`
}

// Enabled reports whether the API is served over HTTPS
func (t TLSConfig) Enabled() bool {
	return t.ACME.Enabled || t.CertFile != ""
}

// ACMEConfig contains Let's Encrypt ACME settings. Certificates are obtained
// with the TLS-ALPN-01 challenge on the API port itself.
type ACMEConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Email    string   `yaml:"email"`
	Domains  []string `yaml:"domains"`
	CacheDir string   `yaml:"cache_dir"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`          // Served next to the API, default /metrics
	TextfilePath string `yaml:"textfile_path"` // Written after each CLI campaign run when set
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `yaml:"level"`         // debug, info, warn, error
	Format      string `yaml:"format"`        // json, text
	File        string `yaml:"file"`          // Optional copy of the application log
	SendLogFile string `yaml:"send_log_file"` // Per-recipient send log
}

// CredentialsConfig controls where passwords are looked up
type CredentialsConfig struct {
	Store   string `yaml:"store"` // keyring, none
	Service string `yaml:"service"`
	FileDir string `yaml:"file_dir"` // Used by the encrypted file keyring backend
}

// Sandbox modes
const (
	SandboxModeOff      = "off"      // deliver normally
	SandboxModeCapture  = "capture"  // store instead of sending
	SandboxModeRedirect = "redirect" // deliver to redirect_to only, keep a copy
)

// SandboxConfig contains the local capture settings used for campaign rehearsals
type SandboxConfig struct {
	Mode            string   `yaml:"mode"`
	RedirectTo      []string `yaml:"redirect_to"`
	ListenAddr      string   `yaml:"listen_addr"` // `campaigner sandbox serve`
	Domain          string   `yaml:"domain"`
	Username        string   `yaml:"username"` // AUTH required when set
	Password        string   `yaml:"password"`
	MaxMessageBytes int64    `yaml:"max_message_bytes"`
	Reject          []string `yaml:"reject"` // recipients answered with 550
	AllowedIPs      []string `yaml:"allowed_ips"`
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.SMTP.TLSMode == "" {
		if c.SMTP.Port == 0 || c.SMTP.Port == 465 {
			c.SMTP.TLSMode = TLSModeImplicit
		} else {
			c.SMTP.TLSMode = TLSModeStartTLS
		}
	}
	if c.SMTP.Port == 0 {
		switch c.SMTP.TLSMode {
		case TLSModeImplicit:
			c.SMTP.Port = 465
		case TLSModeStartTLS:
			c.SMTP.Port = 587
		default:
			c.SMTP.Port = 25
		}
	}
	if c.SMTP.Username == "" {
		c.SMTP.Username = c.SMTP.Sender
	}
	if c.SMTP.Timeout == 0 {
		c.SMTP.Timeout = 30 * time.Second
	}

	if c.IMAP.Port == 0 {
		if c.IMAP.StartTLS {
			c.IMAP.Port = 143
		} else {
			c.IMAP.Port = 993
		}
	}
	if c.IMAP.Username == "" {
		c.IMAP.Username = c.SMTP.Sender
	}
	if c.IMAP.Mailbox == "" {
		c.IMAP.Mailbox = "INBOX"
	}
	if c.IMAP.FetchLimit == 0 {
		c.IMAP.FetchLimit = 100
	}

	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "email_recipients.db"
	}
	if c.Storage.DataPath == "" {
		c.Storage.DataPath = "campaigner.db"
	}
	if c.Storage.BackupDir == "" {
		c.Storage.BackupDir = "backups"
	}

	if c.Dispatch.Delay == 0 {
		c.Dispatch.Delay = time.Second
	}
	if c.Dispatch.TestBatchSize == 0 {
		c.Dispatch.TestBatchSize = 5
	}

	c.Brand.setDefaults()

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		// Campaign sends are synchronous and paced by dispatch.delay
		c.API.WriteTimeout = 30 * time.Minute
	}
	if c.API.TLS.ACME.CacheDir == "" {
		c.API.TLS.ACME.CacheDir = "certs"
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.SendLogFile == "" {
		c.Logging.SendLogFile = "email_logs/email_system.log"
	}

	if c.Credentials.Store == "" {
		c.Credentials.Store = "keyring"
	}
	if c.Credentials.Service == "" {
		c.Credentials.Service = "campaigner"
	}
	if c.Credentials.FileDir == "" {
		c.Credentials.FileDir = "~/.config/campaigner/credentials"
	}

	if c.Sandbox.Mode == "" {
		c.Sandbox.Mode = SandboxModeOff
	}
	if c.Sandbox.ListenAddr == "" {
		c.Sandbox.ListenAddr = "127.0.0.1:2525"
	}
	if c.Sandbox.Domain == "" {
		c.Sandbox.Domain = "localhost"
	}
	if c.Sandbox.MaxMessageBytes == 0 {
		c.Sandbox.MaxMessageBytes = 10 << 20
	}
}

func (b *BrandConfig) setDefaults() {
	if b.Name == "" {
		b.Name = "PlyFlame Technologies"
	}
	if b.SiteURL == "" {
		b.SiteURL = "https://www.plyflame.com"
	}
	if b.LogoURL == "" {
		b.LogoURL = "https://manage16093941722118.yz168.cc/comdata/72944/202506/202506291442032fc58a.png"
	}
	if b.ProductLink == "" {
		b.ProductLink = "https://www.plyflame.com/Content/834530.html"
	}
	if b.ProductImageURL == "" {
		b.ProductImageURL = "https://manage16093941722118.yz168.cc/comdata/72944/product/20210221092522E120012622E9FBDC_s.jpg"
	}
	if b.ProductAlt == "" {
		b.ProductAlt = "Our Newest Products"
	}
	if b.ProductDescription == "" {
		b.ProductDescription = "Check out our latest offerings"
	}
	if b.CTAURL == "" {
		b.CTAURL = "https://www.plyflame.com/ProductDetail/4730963.html"
	}
	if b.CTALabel == "" {
		b.CTALabel = "View Your Exclusive Offers"
	}
	if b.ContactURL == "" {
		b.ContactURL = "https://www.plyflame.com/contact"
	}
	if b.AccountURL == "" {
		b.AccountURL = "https://www.plyflame.com/index.php?c=front/UserRegister"
	}
	if b.DiscountCode == "" {
		b.DiscountCode = "THANKYOU20"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validTLSModes := map[string]bool{TLSModeImplicit: true, TLSModeStartTLS: true, TLSModeNone: true}
	if !validTLSModes[c.SMTP.TLSMode] {
		return fmt.Errorf("invalid smtp.tls_mode: %s (must be implicit, starttls, or none)", c.SMTP.TLSMode)
	}
	if c.SMTP.Port < 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("invalid smtp.port: %d", c.SMTP.Port)
	}
	if c.SMTP.Sender != "" {
		if _, err := mail.ParseAddress(c.SMTP.Sender); err != nil {
			return fmt.Errorf("invalid smtp.sender: %w", err)
		}
	}
	if c.IMAP.Port < 0 || c.IMAP.Port > 65535 {
		return fmt.Errorf("invalid imap.port: %d", c.IMAP.Port)
	}

	if c.Dispatch.Delay < 0 {
		return fmt.Errorf("dispatch.delay must not be negative")
	}
	if c.Dispatch.TestBatchSize < 0 {
		return fmt.Errorf("dispatch.test_batch_size must not be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	validStores := map[string]bool{"keyring": true, "none": true}
	if !validStores[c.Credentials.Store] {
		return fmt.Errorf("invalid credentials.store: %s (must be keyring or none)", c.Credentials.Store)
	}

	if err := c.validateTLS(); err != nil {
		return err
	}

	if _, err := ipfilter.ParsePrefixes(c.API.AllowedIPs); err != nil {
		return fmt.Errorf("invalid api.allowed_ips: %w", err)
	}
	if _, err := ipfilter.ParsePrefixes(c.Sandbox.AllowedIPs); err != nil {
		return fmt.Errorf("invalid sandbox.allowed_ips: %w", err)
	}

	if err := c.validateDKIM(); err != nil {
		return err
	}

	if err := c.validateSandbox(); err != nil {
		return err
	}

	if err := c.HeaderRules.Validate(); err != nil {
		return fmt.Errorf("invalid header_rules: %w", err)
	}

	return c.validateRateLimit()
}

// validateTLS validates API TLS configuration
func (c *Config) validateTLS() error {
	t := c.API.TLS
	if (t.CertFile == "") != (t.KeyFile == "") {
		return fmt.Errorf("api.tls.cert_file and api.tls.key_file must be set together")
	}
	if !t.ACME.Enabled {
		return nil
	}
	if t.CertFile != "" {
		return fmt.Errorf("api.tls: use either certificate files or acme, not both")
	}
	if len(t.ACME.Domains) == 0 {
		return fmt.Errorf("api.tls.acme.domains is required when ACME is enabled")
	}
	return nil
}

// validateDKIM validates DKIM configuration
func (c *Config) validateDKIM() error {
	if !c.DKIM.Enabled {
		return nil
	}

	if c.DKIM.Selector == "" {
		return fmt.Errorf("dkim.selector is required when DKIM is enabled")
	}
	if c.DKIM.KeyFile == "" {
		return fmt.Errorf("dkim.key_file is required when DKIM is enabled")
	}
	if c.DKIM.Domain == "" {
		return fmt.Errorf("dkim.domain is required when DKIM is enabled")
	}

	return nil
}

func (c *Config) validateSandbox() error {
	switch c.Sandbox.Mode {
	case SandboxModeOff, SandboxModeCapture:
	case SandboxModeRedirect:
		if len(c.Sandbox.RedirectTo) == 0 {
			return fmt.Errorf("sandbox.redirect_to is required in redirect mode")
		}
	default:
		return fmt.Errorf("invalid sandbox.mode: %s (must be off, capture, or redirect)", c.Sandbox.Mode)
	}

	for _, addr := range c.Sandbox.RedirectTo {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("invalid sandbox.redirect_to address %q: %w", addr, err)
		}
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	check := func(name string, v *LimitValues) error {
		if v == nil {
			return nil
		}
		if v.MessagesPerHour < 0 || v.MessagesPerDay < 0 {
			return fmt.Errorf("rate_limit.%s values must not be negative", name)
		}
		return nil
	}

	if err := check("global", c.RateLimit.Global); err != nil {
		return err
	}
	if err := check("default_sender", c.RateLimit.DefaultSender); err != nil {
		return err
	}
	if err := check("default_recipient_domain", c.RateLimit.DefaultRecipientDomain); err != nil {
		return err
	}
	for domain, v := range c.RateLimit.RecipientDomains {
		if domain == "" {
			return fmt.Errorf("empty domain name in rate_limit.recipient_domains")
		}
		if err := check("recipient_domains."+domain, v); err != nil {
			return err
		}
	}
	return nil
}

// CheckSMTP reports whether enough SMTP settings are present to send mail
func (c *Config) CheckSMTP() error {
	if c.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required to send mail")
	}
	if c.SMTP.Sender == "" {
		return fmt.Errorf("smtp.sender is required to send mail")
	}
	return nil
}

// CheckIMAP reports whether enough IMAP settings are present to read mail
func (c *Config) CheckIMAP() error {
	if c.IMAP.Host == "" {
		return fmt.Errorf("imap.host is required to read mail")
	}
	if c.IMAP.Username == "" {
		return fmt.Errorf("imap.username is required to read mail")
	}
	return nil
}
