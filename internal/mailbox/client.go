package mailbox

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/foxzi/campaigner/internal/config"
)

// DefaultFetchLimit bounds Fetch when no limit is given
const DefaultFetchLimit = 100

// ErrAuth is returned when the server rejects the login
var ErrAuth = errors.New("imap authentication failed")

// ErrNotFound is returned by Delete for an unknown UID
var ErrNotFound = errors.New("message not found")

// Client reads and deletes mail over IMAP. Every call opens its own
// connection and logs out when done.
type Client struct {
	host     string
	port     int
	username string
	password string
	startTLS bool
	mailbox  string
	logger   *slog.Logger
}

// NewClient creates a client from the imap section and a password
// obtained from the credential source
func NewClient(cfg config.IMAPConfig, password string, logger *slog.Logger) *Client {
	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &Client{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: password,
		startTLS: cfg.StartTLS,
		mailbox:  mailbox,
		logger:   logger,
	}
}

// connect dials, logs in and selects the mailbox. The returned func logs
// out and releases the context watcher.
func (c *Client) connect(ctx context.Context) (*imapclient.Client, func(), error) {
	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))
	opts := &imapclient.Options{
		TLSConfig: &tls.Config{ServerName: c.host, MinVersion: tls.VersionTLS12},
	}

	var client *imapclient.Client
	var err error
	if c.startTLS {
		client, err = imapclient.DialStartTLS(addr, opts)
	} else {
		client, err = imapclient.DialTLS(addr, opts)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to IMAP %s: %w", addr, err)
	}

	stop := context.AfterFunc(ctx, func() { client.Close() })
	release := func() {
		stop()
		if err := client.Logout().Wait(); err != nil {
			c.logger.Debug("IMAP logout failed", "error", err)
		}
		client.Close()
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		release()
		return nil, nil, fmt.Errorf("%w for %s: %v", ErrAuth, c.username, err)
	}

	if _, err := client.Select(c.mailbox, nil).Wait(); err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to select %s: %w", c.mailbox, err)
	}

	return client, release, nil
}

// Fetch returns up to limit of the most recent messages, oldest first
func (c *Client) Fetch(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}

	client, release, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	searchData, err := client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		Flags:       true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	messages := make([]Message, 0, len(uids))
	for {
		data := fetchCmd.Next()
		if data == nil {
			break
		}
		buf, err := data.Collect()
		if err != nil {
			c.logger.Warn("skipping unreadable message", "error", err)
			continue
		}
		messages = append(messages, messageFromBuffer(buf, bodySection))
	}
	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("failed to fetch messages: %w", err)
	}

	slices.SortFunc(messages, func(a, b Message) int {
		return cmp.Compare(a.UID, b.UID)
	})

	c.logger.Debug("fetched messages", "mailbox", c.mailbox, "count", len(messages))
	return messages, nil
}

// Delete flags the message \Deleted and expunges the mailbox
func (c *Client) Delete(ctx context.Context, uid uint32) error {
	client, release, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer release()

	uidSet := imap.UIDSetNum(imap.UID(uid))

	searchData, err := client.UIDSearch(&imap.SearchCriteria{UID: []imap.UIDSet{uidSet}}, nil).Wait()
	if err != nil {
		return fmt.Errorf("failed to look up message %d: %w", uid, err)
	}
	if len(searchData.AllUIDs()) == 0 {
		return fmt.Errorf("%w: uid %d", ErrNotFound, uid)
	}

	storeCmd := client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("failed to flag message %d: %w", uid, err)
	}

	if err := client.Expunge().Close(); err != nil {
		return fmt.Errorf("failed to expunge %s: %w", c.mailbox, err)
	}

	c.logger.Info("message deleted", "mailbox", c.mailbox, "uid", uid)
	return nil
}

func messageFromBuffer(buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection) Message {
	msg := Message{UID: uint32(buf.UID)}

	if env := buf.Envelope; env != nil {
		msg.MessageID = env.MessageID
		msg.Subject = env.Subject
		msg.Date = env.Date
		if len(env.From) > 0 {
			from := env.From[0]
			msg.FromAddr = from.Addr()
			msg.From = from.Name
			if msg.From == "" {
				msg.From = msg.FromAddr
			}
		}
		for _, to := range env.To {
			msg.To = append(msg.To, to.Addr())
		}
	}

	for _, flag := range buf.Flags {
		msg.Flags = append(msg.Flags, string(flag))
	}

	if raw := buf.FindBodySection(section); raw != nil {
		msg.Text, msg.HTML, msg.Attachments = parseBody(raw)
	}
	return msg
}
