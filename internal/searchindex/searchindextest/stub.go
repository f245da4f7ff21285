// Package searchindextest provides an in-memory searchindex.Store for
// batch-writer and loader unit tests.
package searchindextest

import (
	"context"
	"sync"

	"github.com/redhatci/kaijs/internal/searchindex"
)

// Store records every bulk request it receives, in order.
type Store struct {
	mu       sync.Mutex
	Requests [][]searchindex.BulkAction

	// FailNext, if >0, makes the next N Bulk calls return Err (or a
	// default error if Err is nil) without recording the request.
	FailNext int
	Err      error
}

// New builds an empty in-memory store.
func New() *Store {
	return &Store{}
}

// Bulk records the batch, unless FailNext is armed.
func (s *Store) Bulk(ctx context.Context, actions []searchindex.BulkAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNext > 0 {
		s.FailNext--
		if s.Err != nil {
			return s.Err
		}
		return &searchindex.BulkError{Failed: []string{"forced-failure"}}
	}

	batch := append([]searchindex.BulkAction(nil), actions...)
	s.Requests = append(s.Requests, batch)
	return nil
}

// Calls returns how many Bulk requests have been recorded.
func (s *Store) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}
