package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"github.com/foxzi/campaigner/internal/config"
)

// Kind names the account a password belongs to
type Kind string

const (
	KindSMTP Kind = "smtp"
	KindIMAP Kind = "imap"
)

// EnvVar returns the environment variable that overrides the password
func (k Kind) EnvVar() string {
	return "CAMPAIGNER_" + strings.ToUpper(string(k)) + "_PASSWORD"
}

// ErrNoPassword is returned when no source could supply a password
var ErrNoPassword = errors.New("no password available")

// Source looks passwords up in the environment, then the OS keyring, then
// asks on the terminal
type Source struct {
	store   string
	service string
	fileDir string

	openOnce sync.Once
	ring     keyring.Keyring
	ringErr  error

	getenv func(string) string
	prompt func(label string) (string, error)
}

// New creates a credential source from the credentials section
func New(cfg config.CredentialsConfig) *Source {
	return &Source{
		store:   cfg.Store,
		service: cfg.Service,
		fileDir: cfg.FileDir,
		getenv:  os.Getenv,
		prompt:  promptTerminal,
	}
}

// NewWithKeyring uses ring instead of opening the OS keyring
func NewWithKeyring(ring keyring.Keyring, prompt func(label string) (string, error)) *Source {
	s := &Source{
		store:  "keyring",
		ring:   ring,
		getenv: os.Getenv,
		prompt: prompt,
	}
	s.openOnce.Do(func() {})
	return s
}

func (s *Source) openRing() (keyring.Keyring, error) {
	s.openOnce.Do(func() {
		s.ring, s.ringErr = keyring.Open(keyring.Config{
			ServiceName: s.service,
			AllowedBackends: []keyring.BackendType{
				keyring.KeychainBackend,
				keyring.SecretServiceBackend,
				keyring.WinCredBackend,
				keyring.PassBackend,
				keyring.FileBackend,
			},
			FileDir:                  s.fileDir,
			FilePasswordFunc:         keyring.FixedStringPrompt(s.service + "-file-key"),
			KeychainTrustApplication: true,
		})
		if s.ringErr != nil {
			s.ringErr = fmt.Errorf("opening keyring: %w", s.ringErr)
		}
	})
	return s.ring, s.ringErr
}

func itemKey(kind Kind, account string) string {
	return string(kind) + ":" + account
}

// Password returns the password for account. A non-empty configured
// password wins over every other source.
func (s *Source) Password(kind Kind, account, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if v := s.getenv(kind.EnvVar()); v != "" {
		return v, nil
	}

	if s.store == "keyring" {
		if ring, err := s.openRing(); err == nil {
			item, err := ring.Get(itemKey(kind, account))
			if err == nil && len(item.Data) > 0 {
				return string(item.Data), nil
			}
		}
	}

	return s.Prompt(kind, account)
}

// Prompt asks for the password on the terminal. Used again after the
// server rejected the previous one.
func (s *Source) Prompt(kind Kind, account string) (string, error) {
	if s.prompt == nil {
		return "", ErrNoPassword
	}
	password, err := s.prompt(fmt.Sprintf("%s password for %s: ", strings.ToUpper(string(kind)), account))
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", ErrNoPassword
	}
	return password, nil
}

// Set stores the password in the keyring
func (s *Source) Set(kind Kind, account, password string) error {
	ring, err := s.openRing()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   itemKey(kind, account),
		Data:  []byte(password),
		Label: s.service + " " + string(kind),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", itemKey(kind, account), err)
	}
	return nil
}

// Delete removes the password from the keyring
func (s *Source) Delete(kind Kind, account string) error {
	ring, err := s.openRing()
	if err != nil {
		return err
	}

	if err := ring.Remove(itemKey(kind, account)); err != nil {
		return fmt.Errorf("deleting credential %q: %w", itemKey(kind, account), err)
	}
	return nil
}

func promptTerminal(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%w: stdin is not a terminal", ErrNoPassword)
	}

	fmt.Fprint(os.Stderr, label)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
