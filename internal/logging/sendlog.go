package logging

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Send log statuses
const (
	StatusDelivered = "Delivered"
	StatusFailed    = "Failed"
	StatusSkipped   = "Skipped"
)

const sendLogTimeFormat = "2006-01-02 15:04:05"

// SendLog appends one line per send attempt:
//
//	2024-03-01 10:00:00 - INFO - Sent to bob@example.com | Status: Delivered |
type SendLog struct {
	mu  sync.Mutex
	w   io.Writer
	f   *os.File
	now func() time.Time
}

// OpenSendLog opens path for appending, creating parent directories
func OpenSendLog(path string) (*SendLog, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open send log: %w", err)
	}
	return &SendLog{w: f, f: f, now: time.Now}, nil
}

// NewSendLog writes send lines to w
func NewSendLog(w io.Writer) *SendLog {
	return &SendLog{w: w, now: time.Now}
}

// Record writes a line for one recipient
func (l *SendLog) Record(email, status, details string) error {
	if l == nil {
		return nil
	}

	level := "INFO"
	if status == StatusFailed {
		level = "ERROR"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := fmt.Fprintf(l.w, "%s - %s - Sent to %s | Status: %s | %s\n",
		l.now().Format(sendLogTimeFormat), level, email, status, oneLine(details))
	return err
}

// Close closes the underlying file, if any
func (l *SendLog) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	return l.f.Close()
}

// Tail returns the last n lines of the file at path. A missing file
// yields no lines and no error.
func Tail(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	if n <= 0 {
		return nil, nil
	}

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}

	return ring, nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
