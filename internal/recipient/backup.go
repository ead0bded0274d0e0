package recipient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const backupTimeFormat = "20060102_150405"

// Backup writes a consistent copy of the database to
// dir/email_recipients_YYYYMMDD_HHMMSS.db and returns its path
func (s *Store) Backup(ctx context.Context, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	path := filepath.Join(dir, "email_recipients_"+now.Format(backupTimeFormat)+".db")
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("backup %s already exists", path)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return "", fmt.Errorf("failed to back up database: %w", err)
	}

	return path, nil
}
