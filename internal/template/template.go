package template

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no template is stored under a name
	ErrNotFound = errors.New("template not found")

	// ErrAlreadyExists is returned by Create when the name is taken
	ErrAlreadyExists = errors.New("template already exists")

	// ErrMissingField is matched by every *MissingFieldError
	ErrMissingField = errors.New("missing field")

	// ErrInvalid is returned by Validate
	ErrInvalid = errors.New("invalid template")
)

// Template represents an email template
type Template struct {
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Text      string    `json:"text,omitempty"`
	HTML      string    `json:"html,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MissingFieldError reports a placeholder with no value in the field set
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Field)
}

// Is makes errors.Is(err, ErrMissingField) match
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}
