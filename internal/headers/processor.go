// Package headers applies configured header rules to outgoing campaign mail.
package headers

import (
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/foxzi/campaigner/internal/template"
)

// Processor resolves header rules for a recipient
type Processor struct {
	config *Config
}

// NewProcessor creates a new header processor
func NewProcessor(cfg *Config) *Processor {
	return &Processor{config: cfg}
}

// Resolve returns the rules for a recipient domain with placeholders in
// values filled from fields. A value that expands to a line break is
// rejected so recipient data cannot inject headers.
func (p *Processor) Resolve(domain string, fields map[string]string) ([]Rule, error) {
	if p == nil || !p.config.HasRules() {
		return nil, nil
	}

	rules := p.config.GetRulesForDomain(domain)
	resolved := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.Action != ActionRemove {
			value, err := template.Substitute(rule.Value, fields)
			if err != nil {
				return nil, fmt.Errorf("header %s: %w", rule.Header, err)
			}
			if strings.ContainsAny(value, "\r\n") {
				return nil, fmt.Errorf("header %s: value contains a line break", rule.Header)
			}
			rule.Value = value
		}
		resolved = append(resolved, rule)
	}
	return resolved, nil
}

// Apply applies rules to h in order
func Apply(h *mail.Header, rules []Rule) {
	for _, rule := range rules {
		switch rule.Action {
		case ActionRemove:
			for _, name := range rule.Headers {
				h.Del(name)
			}
		case ActionReplace:
			// Set drops every existing occurrence, adding the header if absent
			h.Set(rule.Header, rule.Value)
		case ActionAdd:
			h.Add(rule.Header, rule.Value)
		}
	}
}
