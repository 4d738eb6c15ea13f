package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileLogger appends audit records as JSON lines to a file, rotating by size.
type FileLogger struct {
	mu      sync.Mutex
	dir     string
	file    *os.File
	encoder *json.Encoder

	maxSize  int64
	maxFiles int
}

// FileLoggerConfig configures a FileLogger.
type FileLoggerConfig struct {
	// Dir is the directory holding audit.log and its rotated siblings.
	Dir string

	// MaxSize is the rotation threshold in bytes. Default 100MB.
	MaxSize int64

	// MaxFiles caps the number of rotated files kept. Default 10.
	MaxFiles int
}

// NewFileLogger creates the log directory if needed and opens the current
// audit log for appending.
func NewFileLogger(cfg FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	l := &FileLogger{
		dir:      cfg.Dir,
		maxSize:  cfg.MaxSize,
		maxFiles: cfg.MaxFiles,
	}
	if l.maxSize <= 0 {
		l.maxSize = 100 * 1024 * 1024
	}
	if l.maxFiles <= 0 {
		l.maxFiles = 10
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

// Log writes one record. Records missing a timestamp are stamped now.
func (l *FileLogger) Log(ctx context.Context, rec Record) error {
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
		if err := l.rotate(); err != nil {
			return err
		}
	}
	if err := l.encoder.Encode(rec); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// Close flushes and closes the current file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *FileLogger) open() error {
	file, err := os.OpenFile(l.current(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

func (l *FileLogger) current() string {
	return filepath.Join(l.dir, "audit.log")
}

func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	l.file = nil

	// Nanosecond granularity keeps names unique under rapid rotation.
	stamp := time.Now().UTC().Format("2006-01-02-15-04-05.000000000")
	rotated := filepath.Join(l.dir, fmt.Sprintf("audit-%s.log", stamp))
	if err := os.Rename(l.current(), rotated); err != nil {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	l.prune()
	return l.open()
}

// prune deletes the oldest rotated files beyond maxFiles. Errors are
// swallowed: failing to prune must not lose the record being written.
func (l *FileLogger) prune() {
	rotated, err := filepath.Glob(filepath.Join(l.dir, "audit-*.log"))
	if err != nil || len(rotated) <= l.maxFiles {
		return
	}
	sort.Strings(rotated)
	for _, old := range rotated[:len(rotated)-l.maxFiles] {
		os.Remove(old)
	}
}
