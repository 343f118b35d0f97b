// Package memory is an in-process appender used in tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"spendify/internal/core"
)

// Store collects appended occurrences instead of writing a spreadsheet.
type Store struct {
	mu   sync.Mutex
	rows []core.Expense
}

func New() *Store {
	return &Store{}
}

// Append records the expense and returns a synthetic row reference in the
// same shape the Sheets appender produces.
func (s *Store) Append(_ context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, e)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Items returns a copy of everything appended so far.
func (s *Store) Items() []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Expense(nil), s.rows...)
}
