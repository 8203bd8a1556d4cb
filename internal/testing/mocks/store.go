package mocks

import (
	"context"
	"sync"

	"github.com/AndreyAkinshin/fleetbuild/internal/record"
)

// Store is an in-memory audit store.
type Store struct {
	mu      sync.Mutex
	runs    map[string][]record.Record
	persist int
	closed  int
	err     error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{runs: map[string][]record.Record{}}
}

// WithError makes Persist fail with err.
func (s *Store) WithError(err error) *Store {
	s.err = err
	return s
}

func (s *Store) Persist(ctx context.Context, runID string, records []record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist++
	if s.err != nil {
		return s.err
	}
	s.runs[runID] = append(s.runs[runID], records...)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Records returns the records persisted for runID.
func (s *Store) Records(runID string) []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]record.Record(nil), s.runs[runID]...)
}

// PersistCalls and CloseCalls count method calls.
func (s *Store) PersistCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist
}

func (s *Store) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
