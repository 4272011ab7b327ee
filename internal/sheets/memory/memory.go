package memory

import (
	"context"
	"fmt"
	"sync"

	"spendwatch/internal/core"
)

// Store is an in-memory report writer used in tests and local runs.
type Store struct {
	mu    sync.Mutex
	items []core.ExceededTransaction
	err   error
}

func New() *Store {
	return &Store{}
}

// FailWith makes subsequent Append calls return err. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Append stores the row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, et core.ExceededTransaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.items = append(s.items, et)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []core.ExceededTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ExceededTransaction(nil), s.items...)
}
