package template

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketTemplates = []byte("templates")

// Registry stores templates in bbolt, keyed by name
type Registry struct {
	db *bolt.DB
}

// NewRegistry creates the templates bucket. Default templates are seeded
// only when the bucket did not exist before.
func NewRegistry(db *bolt.DB) (*Registry, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTemplates) != nil {
			return nil
		}
		bucket, err := tx.CreateBucket(bucketTemplates)
		if err != nil {
			return err
		}

		now := time.Now()
		for _, tmpl := range Defaults() {
			tmpl.CreatedAt = now
			tmpl.UpdatedAt = now
			if err := putTemplate(bucket, tmpl); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create template bucket: %w", err)
	}
	return &Registry{db: db}, nil
}

// Get retrieves a template by exact name
func (r *Registry) Get(ctx context.Context, name string) (*Template, error) {
	var tmpl *Template

	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTemplates).Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}

		tmpl = &Template{}
		if err := json.Unmarshal(data, tmpl); err != nil {
			return fmt.Errorf("failed to unmarshal template %s: %w", name, err)
		}
		return nil
	})

	return tmpl, err
}

// Create stores a new template. It never overwrites an existing one.
func (r *Registry) Create(ctx context.Context, tmpl *Template) error {
	if err := Validate(tmpl); err != nil {
		return err
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTemplates)

		if existing := bucket.Get([]byte(tmpl.Name)); existing != nil {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, tmpl.Name)
		}

		tmpl.CreatedAt = time.Now()
		tmpl.UpdatedAt = tmpl.CreatedAt

		return putTemplate(bucket, tmpl)
	})
}

// Save stores a template, replacing any template with the same name.
// CreatedAt of the replaced template is kept.
func (r *Registry) Save(ctx context.Context, tmpl *Template) error {
	if err := Validate(tmpl); err != nil {
		return err
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTemplates)

		now := time.Now()
		tmpl.CreatedAt = now
		if data := bucket.Get([]byte(tmpl.Name)); data != nil {
			var existing Template
			if err := json.Unmarshal(data, &existing); err == nil && !existing.CreatedAt.IsZero() {
				tmpl.CreatedAt = existing.CreatedAt
			}
		}
		tmpl.UpdatedAt = now

		return putTemplate(bucket, tmpl)
	})
}

// Delete removes a template by name
func (r *Registry) Delete(ctx context.Context, name string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTemplates)
		if bucket.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return bucket.Delete([]byte(name))
	})
}

// List returns template names in ascending byte order
func (r *Registry) List(ctx context.Context) ([]string, error) {
	var names []string

	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTemplates).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			names = append(names, string(k))
		}
		return nil
	})

	return names, err
}

func putTemplate(bucket *bolt.Bucket, tmpl *Template) error {
	data, err := json.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}
	return bucket.Put([]byte(tmpl.Name), data)
}
