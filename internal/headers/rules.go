package headers

import (
	"fmt"
	"strings"
)

// Action defines the type of header manipulation
type Action string

const (
	ActionRemove  Action = "remove"
	ActionReplace Action = "replace"
	ActionAdd     Action = "add"
)

// Rule defines a header manipulation rule. Values may use the same {field}
// placeholders as templates, e.g. "<mailto:unsubscribe@example.com?subject={id}>".
type Rule struct {
	Action  Action   `yaml:"action" json:"action"`
	Headers []string `yaml:"headers,omitempty" json:"headers,omitempty"` // For remove action
	Header  string   `yaml:"header,omitempty" json:"header,omitempty"`   // For replace/add
	Value   string   `yaml:"value,omitempty" json:"value,omitempty"`     // For replace/add
}

// Config contains header rules configuration
type Config struct {
	// Global rules applied to all messages
	Global []Rule `yaml:"global,omitempty" json:"global,omitempty"`

	// Per recipient domain rules, applied after the global ones
	Domains map[string][]Rule `yaml:"domains,omitempty" json:"domains,omitempty"`
}

// protected headers are produced by the message builder or the signer and
// cannot be changed by rules
var protected = map[string]bool{
	"from":                      true,
	"to":                        true,
	"cc":                        true,
	"bcc":                       true,
	"subject":                   true,
	"date":                      true,
	"message-id":                true,
	"mime-version":              true,
	"content-type":              true,
	"content-transfer-encoding": true,
	"dkim-signature":            true,
}

// GetRulesForDomain returns rules for a recipient domain (global + domain-specific)
func (c *Config) GetRulesForDomain(domain string) []Rule {
	if c == nil {
		return nil
	}

	var rules []Rule
	rules = append(rules, c.Global...)
	if domainRules, ok := c.Domains[strings.ToLower(domain)]; ok {
		rules = append(rules, domainRules...)
	}
	return rules
}

// HasRules returns true if any rules are configured
func (c *Config) HasRules() bool {
	if c == nil {
		return false
	}
	if len(c.Global) > 0 {
		return true
	}
	for _, rules := range c.Domains {
		if len(rules) > 0 {
			return true
		}
	}
	return false
}

// Validate checks every rule
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	for i, rule := range c.Global {
		if err := rule.validate(); err != nil {
			return fmt.Errorf("global[%d]: %w", i, err)
		}
	}
	for domain, rules := range c.Domains {
		if domain != strings.ToLower(domain) {
			return fmt.Errorf("domains: %q must be lowercase", domain)
		}
		for i, rule := range rules {
			if err := rule.validate(); err != nil {
				return fmt.Errorf("domains[%s][%d]: %w", domain, i, err)
			}
		}
	}
	return nil
}

func (r Rule) validate() error {
	switch r.Action {
	case ActionRemove:
		if len(r.Headers) == 0 {
			return fmt.Errorf("remove needs headers")
		}
		for _, name := range r.Headers {
			if err := checkName(name); err != nil {
				return err
			}
		}
	case ActionReplace, ActionAdd:
		if err := checkName(r.Header); err != nil {
			return err
		}
		if strings.ContainsAny(r.Value, "\r\n") {
			return fmt.Errorf("value of %s contains a line break", r.Header)
		}
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
	return nil
}

// checkName accepts RFC 5322 field names that rules may touch
func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("header name is required")
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; c <= ' ' || c >= 127 || c == ':' {
			return fmt.Errorf("invalid header name %q", name)
		}
	}
	if protected[strings.ToLower(name)] {
		return fmt.Errorf("header %s cannot be changed by rules", name)
	}
	return nil
}
