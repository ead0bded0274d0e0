package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DefaultCampaign is used when a send has no campaign id
const DefaultCampaign = "default"

var bucketAnalytics = []byte("analytics")

// ErrNotFound is returned by Get for a campaign with no recorded sends
var ErrNotFound = errors.New("campaign not found")

// Record holds the counters of one campaign
type Record struct {
	CampaignID string    `json:"campaign_id"`
	TotalSent  int       `json:"total_sent"`
	LastSent   time.Time `json:"last_sent"`
	Recipients []Entry   `json:"recipients"`
}

// Entry is the first successful send to a recipient within a campaign
type Entry struct {
	ID     string    `json:"id"`
	SentAt time.Time `json:"sent_at"`
}

// Has reports whether the recipient id is already in the record
func (r *Record) Has(id string) bool {
	for _, e := range r.Recipients {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Recorder keeps campaign records in bbolt
type Recorder struct {
	db  *bolt.DB
	now func() time.Time
}

// NewRecorder creates the analytics bucket
func NewRecorder(db *bolt.DB) (*Recorder, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAnalytics)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics bucket: %w", err)
	}
	return &Recorder{db: db, now: time.Now}, nil
}

// RecordSend counts one successful send. TotalSent and LastSent change on
// every call; the recipient is appended only the first time.
func (r *Recorder) RecordSend(ctx context.Context, recipientID, campaignID string) error {
	if campaignID == "" {
		campaignID = DefaultCampaign
	}
	now := r.now()

	err := r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketAnalytics)

		rec := &Record{CampaignID: campaignID, Recipients: []Entry{}}
		if data := bucket.Get([]byte(campaignID)); data != nil {
			if err := json.Unmarshal(data, rec); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
		}

		rec.TotalSent++
		rec.LastSent = now
		if !rec.Has(recipientID) {
			rec.Recipients = append(rec.Recipients, Entry{ID: recipientID, SentAt: now})
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		return bucket.Put([]byte(campaignID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to record send: %w", err)
	}
	return nil
}

// Get returns the record of one campaign
func (r *Recorder) Get(ctx context.Context, campaignID string) (*Record, error) {
	var rec *Record

	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAnalytics).Get([]byte(campaignID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, campaignID)
		}
		rec = &Record{}
		return json.Unmarshal(data, rec)
	})

	return rec, err
}

// List returns every campaign record ordered by campaign id
func (r *Recorder) List(ctx context.Context) ([]*Record, error) {
	var records []*Record

	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAnalytics).ForEach(func(k, v []byte) error {
			rec := &Record{}
			if err := json.Unmarshal(v, rec); err != nil {
				return fmt.Errorf("failed to unmarshal record %s: %w", k, err)
			}
			records = append(records, rec)
			return nil
		})
	})

	return records, err
}

type exportRecord struct {
	TotalSent  int           `json:"total_sent"`
	LastSent   string        `json:"last_sent"`
	Recipients []exportEntry `json:"recipients"`
}

type exportEntry struct {
	ID     string `json:"id"`
	SentAt string `json:"sent_at"`
}

// Export writes all records as one JSON object keyed "campaign_<id>"
func (r *Recorder) Export(ctx context.Context, w io.Writer) error {
	records, err := r.List(ctx)
	if err != nil {
		return err
	}

	out := make(map[string]exportRecord, len(records))
	for _, rec := range records {
		entries := make([]exportEntry, 0, len(rec.Recipients))
		for _, e := range rec.Recipients {
			entries = append(entries, exportEntry{ID: e.ID, SentAt: e.SentAt.Format(time.RFC3339Nano)})
		}
		out["campaign_"+rec.CampaignID] = exportRecord{
			TotalSent:  rec.TotalSent,
			LastSent:   rec.LastSent.Format(time.RFC3339Nano),
			Recipients: entries,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to export analytics: %w", err)
	}
	return nil
}
