package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSandbox = []byte("sandbox")
	bucketIDs     = []byte("sandbox_ids")
)

// ErrNotFound is returned for an unknown message id
var ErrNotFound = errors.New("sandbox message not found")

// Capture sources
const (
	SourceSMTP     = "smtp"     // received by the capture server
	SourceCapture  = "capture"  // intercepted campaign send
	SourceRedirect = "redirect" // campaign send delivered to redirect addresses
)

// Message is a captured email
type Message struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         []string  `json:"to"`
	OriginalTo []string  `json:"original_to,omitempty"` // Recipients before redirect
	Subject    string    `json:"subject"`
	Data       []byte    `json:"data,omitempty"`
	Source     string    `json:"source"`
	CapturedAt time.Time `json:"captured_at"`
	ClientIP   string    `json:"client_ip,omitempty"`
	AuthUser   string    `json:"auth_user,omitempty"`
}

// Storage keeps captured messages in bbolt, ordered by capture time
type Storage struct {
	db *bolt.DB
}

// NewStorage creates the sandbox buckets
func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSandbox, bucketIDs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox bucket: %w", err)
	}

	return &Storage{db: db}, nil
}

// Save stores a message
func (s *Storage) Save(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		key := makeIndexKey(msg.CapturedAt, msg.ID)
		if err := tx.Bucket(bucketSandbox).Put(key, data); err != nil {
			return err
		}
		return tx.Bucket(bucketIDs).Put([]byte(msg.ID), key)
	})
}

// Get retrieves a message with its raw data
func (s *Storage) Get(ctx context.Context, id string) (*Message, error) {
	var msg *Message

	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketIDs).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		data := tx.Bucket(bucketSandbox).Get(key)
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		msg = &Message{}
		return json.Unmarshal(data, msg)
	})

	return msg, err
}

// ListFilter contains filters for listing messages
type ListFilter struct {
	From      string
	Recipient string
	Source    string
	Limit     int
	Offset    int
}

func (f ListFilter) match(msg *Message) bool {
	if f.From != "" && !strings.EqualFold(msg.From, f.From) {
		return false
	}
	if f.Source != "" && msg.Source != f.Source {
		return false
	}
	if f.Recipient != "" {
		for _, to := range slices.Concat(msg.To, msg.OriginalTo) {
			if strings.EqualFold(to, f.Recipient) {
				return true
			}
		}
		return false
	}
	return true
}

// List returns messages newest first, without raw data
func (s *Storage) List(ctx context.Context, filter ListFilter) ([]*Message, error) {
	var messages []*Message

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSandbox).Cursor()
		skipped := 0

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				continue
			}
			if !filter.match(&msg) {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}

			msg.Data = nil
			messages = append(messages, &msg)
			if filter.Limit > 0 && len(messages) >= filter.Limit {
				break
			}
		}
		return nil
	})

	return messages, err
}

// Delete removes a message by id
func (s *Storage) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ids := tx.Bucket(bucketIDs)
		key := ids.Get([]byte(id))
		if key == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := tx.Bucket(bucketSandbox).Delete(key); err != nil {
			return err
		}
		return ids.Delete([]byte(id))
	})
}

// Clear removes messages captured before now-olderThan; zero removes all
func (s *Storage) Clear(ctx context.Context, olderThan time.Duration) (int, error) {
	var count int
	cutoff := time.Now().Add(-olderThan)

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSandbox)
		ids := tx.Bucket(bucketIDs)

		type entry struct{ key, id []byte }
		var doomed []entry

		err := bucket.ForEach(func(k, v []byte) error {
			k = append([]byte(nil), k...)
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				doomed = append(doomed, entry{key: k})
				return nil
			}
			if olderThan > 0 && msg.CapturedAt.After(cutoff) {
				return nil
			}
			doomed = append(doomed, entry{key: k, id: []byte(msg.ID)})
			return nil
		})
		if err != nil {
			return err
		}

		for _, e := range doomed {
			if err := bucket.Delete(e.key); err != nil {
				return err
			}
			if e.id != nil {
				if err := ids.Delete(e.id); err != nil {
					return err
				}
			}
			count++
		}
		return nil
	})

	return count, err
}

// Stats summarizes the captured messages
type Stats struct {
	Total     int64            `json:"total"`
	BySource  map[string]int64 `json:"by_source"`
	OldestAt  time.Time        `json:"oldest_at,omitempty"`
	NewestAt  time.Time        `json:"newest_at,omitempty"`
	TotalSize int64            `json:"total_size"`
}

// Stats returns sandbox statistics
func (s *Storage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{BySource: make(map[string]int64)}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSandbox).ForEach(func(k, v []byte) error {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return nil
			}

			stats.Total++
			stats.TotalSize += int64(len(msg.Data))
			stats.BySource[msg.Source]++

			if stats.OldestAt.IsZero() || msg.CapturedAt.Before(stats.OldestAt) {
				stats.OldestAt = msg.CapturedAt
			}
			if msg.CapturedAt.After(stats.NewestAt) {
				stats.NewestAt = msg.CapturedAt
			}
			return nil
		})
	})

	return stats, err
}

// makeIndexKey sorts by capture time; UTC keeps the fixed-width layout comparable
func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format("2006-01-02T15:04:05.000000000Z") + ":" + id)
}
