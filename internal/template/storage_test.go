package template

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func setupTestDB(t *testing.T) (*bolt.DB, func()) {
	tmpfile, err := os.CreateTemp("", "template_test_*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpfile.Close()

	db, err := bolt.Open(tmpfile.Name(), 0600, nil)
	if err != nil {
		os.Remove(tmpfile.Name())
		t.Fatalf("failed to open db: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(tmpfile.Name())
	}

	return db, cleanup
}

func TestNewRegistry_SeedsDefaults(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	registry, err := NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	names, err := registry.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"anniversary", "followup", "welcome"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("List() = %v, want %v", names, want)
	}
}

func TestNewRegistry_DoesNotReseed(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	registry, err := NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	ctx := context.Background()
	if err := registry.Delete(ctx, "welcome"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	registry, err = NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if _, err := registry.Get(ctx, "welcome"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound after reopening", err)
	}
}

func TestRegistry_Create(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	registry, err := NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	ctx := context.Background()
	tmpl := &Template{
		Name:    "promo",
		Subject: "Hello {name}",
		Text:    "Sale starts now",
	}

	if err := registry.Create(ctx, tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if tmpl.CreatedAt.IsZero() {
		t.Error("Create() did not set CreatedAt")
	}

	got, err := registry.Get(ctx, "promo")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Subject != "Hello {name}" {
		t.Errorf("Get() subject = %q, want %q", got.Subject, "Hello {name}")
	}
}

func TestRegistry_CreateDuplicateName(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	registry, err := NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	ctx := context.Background()
	err = registry.Create(ctx, &Template{Name: "welcome", Subject: "Other", Text: "x"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("Create() error = %v, want ErrAlreadyExists", err)
	}

	got, err := registry.Get(ctx, "welcome")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Subject == "Other" {
		t.Error("Create() overwrote an existing template")
	}
}

func TestRegistry_Save(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	registry, err := NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	ctx := context.Background()
	original, err := registry.Get(ctx, "welcome")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	time.Sleep(time.Millisecond)
	edited := &Template{Name: "welcome", Subject: "Welcome back, {name}", Text: "Hi"}
	if err := registry.Save(ctx, edited); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := registry.Get(ctx, "welcome")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Subject != "Welcome back, {name}" {
		t.Errorf("Save() subject = %q", got.Subject)
	}
	if !got.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("Save() CreatedAt = %v, want %v", got.CreatedAt, original.CreatedAt)
	}
	if !got.UpdatedAt.After(original.UpdatedAt) {
		t.Error("Save() did not advance UpdatedAt")
	}

	// Save creates when missing
	if err := registry.Save(ctx, &Template{Name: "new", Subject: "s", Text: "t"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := registry.Get(ctx, "new"); err != nil {
		t.Errorf("Get() error = %v", err)
	}
}

func TestRegistry_GetNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	registry, err := NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	_, err = registry.Get(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_Delete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	registry, err := NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	ctx := context.Background()
	if err := registry.Delete(ctx, "followup"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := registry.Get(ctx, "followup"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
	}
	if err := registry.Delete(ctx, "followup"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_CreateInvalid(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	registry, err := NewRegistry(db)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	err = registry.Create(context.Background(), &Template{Name: "bad"})
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("Create() error = %v, want ErrInvalid", err)
	}
}
