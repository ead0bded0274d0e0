package recipient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS recipients (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    company TEXT,
    last_purchase_date TEXT,
    is_active INTEGER DEFAULT 1
);
`

const selectColumns = `SELECT id, name, email, company, last_purchase_date, is_active FROM recipients`

// Store keeps recipients in SQLite
type Store struct {
	db *sql.DB
}

// Open opens or creates the recipients database at path
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an open database and creates the recipients table
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts a new active recipient and sets its ID
func (s *Store) Add(ctx context.Context, r *Recipient) error {
	if err := r.normalize(); err != nil {
		return err
	}

	var existing int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM recipients WHERE email = ?", r.Email).Scan(&existing)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicate, r.Email)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check email: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO recipients (name, email, company, last_purchase_date, is_active)
		VALUES (?, ?, ?, ?, 1)`,
		r.Name, r.Email, r.Company, r.LastPurchaseDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicate, r.Email)
		}
		return fmt.Errorf("failed to add recipient: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read recipient id: %w", err)
	}
	r.ID = id
	r.IsActive = true
	return nil
}

// Get returns a recipient by id, active or not
func (s *Store) Get(ctx context.Context, id int64) (*Recipient, error) {
	r, err := scanRecipient(s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}
	return r, nil
}

// GetByEmail returns a recipient by exact email
func (s *Store) GetByEmail(ctx context.Context, email string) (*Recipient, error) {
	email = strings.TrimSpace(email)
	r, err := scanRecipient(s.db.QueryRowContext(ctx, selectColumns+" WHERE email = ?", email))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}
	return r, nil
}

// List returns recipients ordered by id
func (s *Store) List(ctx context.Context, filter Filter) ([]Recipient, error) {
	query := selectColumns + " WHERE 1=1"
	args := []any{}

	if filter.ActiveOnly {
		query += " AND is_active = 1"
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query += " AND (name LIKE ? OR email LIKE ? OR company LIKE ?)"
		args = append(args, like, like, like)
	}

	query += " ORDER BY id"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()

	recipients := []Recipient{}
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}

	return recipients, nil
}

// ListActive returns every active recipient ordered by id
func (s *Store) ListActive(ctx context.Context) ([]Recipient, error) {
	return s.List(ctx, Filter{ActiveOnly: true})
}

// Count returns the number of recipients, optionally only active ones
func (s *Store) Count(ctx context.Context, activeOnly bool) (int, error) {
	query := "SELECT COUNT(*) FROM recipients"
	if activeOnly {
		query += " WHERE is_active = 1"
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count recipients: %w", err)
	}
	return n, nil
}

// Update changes the given fields of a recipient. A new email is checked
// against every other recipient before the write.
func (s *Store) Update(ctx context.Context, id int64, u Update) error {
	if u.IsEmpty() {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return nil
	}

	var sets []string
	var args []any

	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return fmt.Errorf("%w: name is required", ErrInvalid)
		}
		sets = append(sets, "name = ?")
		args = append(args, name)
	}

	if u.Email != nil {
		email := strings.TrimSpace(*u.Email)
		if err := validateEmail(email); err != nil {
			return err
		}

		var other int64
		err := s.db.QueryRowContext(ctx,
			"SELECT id FROM recipients WHERE email = ? AND id != ?", email, id,
		).Scan(&other)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicateOnUpdate, email)
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check email: %w", err)
		}

		sets = append(sets, "email = ?")
		args = append(args, email)
	}

	if u.Company != nil {
		sets = append(sets, "company = ?")
		args = append(args, optional(u.Company))
	}
	if u.LastPurchaseDate != nil {
		sets = append(sets, "last_purchase_date = ?")
		args = append(args, optional(u.LastPurchaseDate))
	}

	args = append(args, id)
	return s.exec(ctx, "UPDATE recipients SET "+strings.Join(sets, ", ")+" WHERE id = ?", id, args...)
}

// Deactivate marks a recipient inactive. No data is removed.
func (s *Store) Deactivate(ctx context.Context, id int64) error {
	return s.exec(ctx, "UPDATE recipients SET is_active = 0 WHERE id = ?", id, id)
}

// Restore marks a deactivated recipient active again
func (s *Store) Restore(ctx context.Context, id int64) error {
	return s.exec(ctx, "UPDATE recipients SET is_active = 1 WHERE id = ?", id, id)
}

func (s *Store) exec(ctx context.Context, query string, id int64, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrDuplicateOnUpdate, err)
		}
		return fmt.Errorf("failed to update recipient: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update recipient: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecipient(row rowScanner) (*Recipient, error) {
	var r Recipient
	var company, date sql.NullString
	var active sql.NullInt64

	if err := row.Scan(&r.ID, &r.Name, &r.Email, &company, &date, &active); err != nil {
		return nil, err
	}

	if company.Valid {
		r.Company = &company.String
	}
	if date.Valid {
		r.LastPurchaseDate = &date.String
	}
	// Rows written without is_active count as active
	r.IsActive = !active.Valid || active.Int64 != 0
	return &r, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
