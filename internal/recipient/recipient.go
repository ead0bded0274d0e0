package recipient

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

var (
	// ErrNotFound is returned when no recipient has the requested id or email
	ErrNotFound = errors.New("recipient not found")

	// ErrDuplicate is returned by Add when the email is already stored
	ErrDuplicate = errors.New("recipient email already exists")

	// ErrDuplicateOnUpdate is returned by Update when the new email belongs
	// to another recipient
	ErrDuplicateOnUpdate = errors.New("email already exists for another recipient")

	// ErrInvalid is returned when a record fails validation
	ErrInvalid = errors.New("invalid recipient")
)

// Recipient is one row of the recipients table
type Recipient struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	Company          *string `json:"company,omitempty"`
	LastPurchaseDate *string `json:"last_purchase_date,omitempty"`
	IsActive         bool    `json:"is_active"`
}

// Update holds the fields to change. Nil fields are left as they are.
type Update struct {
	Name             *string `json:"name,omitempty"`
	Email            *string `json:"email,omitempty"`
	Company          *string `json:"company,omitempty"`
	LastPurchaseDate *string `json:"last_purchase_date,omitempty"`
}

// IsEmpty reports whether the update changes nothing
func (u Update) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.Company == nil && u.LastPurchaseDate == nil
}

// Filter narrows List results
type Filter struct {
	ActiveOnly bool
	Search     string // substring of name, email or company
	Limit      int
	Offset     int
}

// LocalPart returns the text before the first '@', or the whole address
// when there is none
func LocalPart(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

// normalize trims the record and checks required fields. Empty optional
// fields become nil.
func (r *Recipient) normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Company = optional(r.Company)
	r.LastPurchaseDate = optional(r.LastPurchaseDate)

	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	return validateEmail(r.Email)
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalid)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: malformed email %q", ErrInvalid, email)
	}
	return nil
}

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
