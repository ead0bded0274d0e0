package template

import (
	"fmt"
	"strings"
)

// Substitute replaces {field} placeholders in s with values from fields.
//
// A placeholder is an identifier ([A-Za-z_][A-Za-z0-9_]*) wrapped in single
// braces. "{{" and "}}" produce literal braces. Any other brace text, such as
// CSS rule bodies, is copied unchanged.
func Substitute(s string, fields map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			name, n := scanPlaceholder(s[i:])
			if n == 0 {
				b.WriteByte(c)
				i++
				continue
			}
			v, ok := fields[name]
			if !ok {
				return "", &MissingFieldError{Field: name}
			}
			b.WriteString(v)
			i += n
		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String(), nil
}

// Placeholders returns the distinct field names referenced by s, in order of
// first appearance
func Placeholders(s string) []string {
	var names []string
	seen := make(map[string]bool)

	for i := 0; i < len(s); {
		if i+1 < len(s) && (s[i] == '{' && s[i+1] == '{' || s[i] == '}' && s[i+1] == '}') {
			i += 2
			continue
		}
		if s[i] == '{' {
			if name, n := scanPlaceholder(s[i:]); n > 0 {
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
				i += n
				continue
			}
		}
		i++
	}

	return names
}

// Fields returns the placeholders used across subject, text and HTML
func (t *Template) Fields() []string {
	var names []string
	seen := make(map[string]bool)
	for _, part := range []string{t.Subject, t.Text, t.HTML} {
		for _, name := range Placeholders(part) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// Validate checks that a template can be stored
func Validate(t *Template) error {
	if t == nil {
		return fmt.Errorf("%w: nil template", ErrInvalid)
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.TrimSpace(t.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalid)
	}
	if t.Text == "" && t.HTML == "" {
		return fmt.Errorf("%w: text or html body is required", ErrInvalid)
	}
	return nil
}

// scanPlaceholder reports the identifier and total length of a {name}
// placeholder at the start of s, or n == 0 when s does not start with one
func scanPlaceholder(s string) (name string, n int) {
	if len(s) < 3 || s[0] != '{' {
		return "", 0
	}
	j := 1
	for j < len(s) && isIdentByte(s[j], j == 1) {
		j++
	}
	if j == 1 || j >= len(s) || s[j] != '}' {
		return "", 0
	}
	return s[1:j], j + 1
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}
