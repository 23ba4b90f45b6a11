package memory

import (
	"context"
	"fmt"
	"sync"

	"spndr/internal/sheets"
)

// Store is an in-process mirror, used in tests and when no spreadsheet is
// configured.
type Store struct {
	mu   sync.Mutex
	rows []sheets.Row
}

var (
	_ sheets.TransactionMirror = (*Store)(nil)
	_ sheets.RowLister         = (*Store)(nil)
)

func New() *Store {
	return &Store{}
}

// AppendRow stores the row and returns a synthetic row reference.
func (s *Store) AppendRow(_ context.Context, row sheets.Row) (string, error) {
	if row.Action == "" {
		return "", fmt.Errorf("append row: missing action")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// ListRows returns a copy of every row in append order.
func (s *Store) ListRows(_ context.Context) ([]sheets.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.Row(nil), s.rows...), nil
}

// Live folds the rows into the set of transaction ids still present.
func (s *Store) Live() map[string]sheets.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sheets.LiveRows(s.rows)
}
