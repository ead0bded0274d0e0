package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/foxzi/campaigner/internal/config"
	"github.com/foxzi/campaigner/internal/headers"
)

// ErrAuth matches any SendError caused by rejected credentials
var ErrAuth = errors.New("authentication failed")

// Sender delivers one message. Implementations must not keep credentials
// between calls; everything needed for a delivery travels in cfg.
type Sender interface {
	Send(ctx context.Context, cfg Config, msg *Message) error
}

// Config holds the connection settings of a single delivery attempt
type Config struct {
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	TLSMode            string
	InsecureSkipVerify bool
	HeloName           string
	Timeout            time.Duration
}

// FromConfig builds a Config from the smtp section and a password
// obtained from the credential source
func FromConfig(cfg config.SMTPConfig, password string) Config {
	username := cfg.Username
	if username == "" {
		username = cfg.Sender
	}
	return Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		Username:           username,
		Password:           password,
		From:               cfg.Sender,
		TLSMode:            cfg.TLSMode,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		HeloName:           cfg.HeloName,
		Timeout:            cfg.Timeout,
	}
}

// Addr returns host:port
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Message is an outgoing email before MIME encoding
type Message struct {
	From       string // Defaults to Config.From
	FromName   string
	To         []string
	Subject    string
	Text       string
	HTML       string
	InReplyTo  string
	References []string
	Headers    []headers.Rule // applied after the standard headers are set
}

// Kind classifies a delivery failure
type Kind int

const (
	KindGeneric Kind = iota
	KindAuth
	KindConnection
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindConnection:
		return "connection"
	case KindRejected:
		return "rejected"
	default:
		return "generic"
	}
}

// SendError describes a failed delivery
type SendError struct {
	Kind  Kind
	Stage string // SMTP stage that failed, e.g. "AUTH" or "RCPT TO"
	Code  int    // SMTP reply code when the server answered
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Is reports ErrAuth for authentication failures
func (e *SendError) Is(target error) bool {
	return target == ErrAuth && e.Kind == KindAuth
}

// Temporary reports whether the server answered with a 4xx reply
func (e *SendError) Temporary() bool {
	return e.Code >= 400 && e.Code < 500
}

// KindOf returns the kind of err, KindGeneric for errors that are not a SendError
func KindOf(err error) Kind {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindGeneric
}
