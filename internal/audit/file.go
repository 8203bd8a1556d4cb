package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/AndreyAkinshin/fleetbuild/internal/record"
)

// FileStore appends records to a record.log file, one line per record.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store writing to path. The file is created on the
// first Persist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the record log location.
func (s *FileStore) Path() string { return s.path }

// Persist appends records to the log. runID is not written; each line is
// self-describing by its record type.
func (s *FileStore) Persist(ctx context.Context, runID string, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create record log dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open record log: %w", err)
	}
	if err := record.Encode(f, records); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Close is a no-op; the file is closed after every Persist.
func (s *FileStore) Close() error { return nil }
