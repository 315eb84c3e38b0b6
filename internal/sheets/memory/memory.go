package memory

import (
	"context"
	"sync"

	"flowmoney/internal/sheets"
)

// Store keeps mirrored tabs in memory.
type Store struct {
	mu   sync.Mutex
	tabs map[string][][]string
}

var _ sheets.ExportWriter = (*Store)(nil)

func New() *Store {
	return &Store{tabs: map[string][][]string{}}
}

// ReplaceRows stores a copy of header and rows under tab.
func (s *Store) ReplaceRows(_ context.Context, tab string, header []string, rows [][]string) error {
	out := make([][]string, 0, len(rows)+1)
	out = append(out, append([]string(nil), header...))
	for _, r := range rows {
		out = append(out, append([]string(nil), r...))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs[tab] = out
	return nil
}

// Tab returns the stored values of tab, header first.
func (s *Store) Tab(tab string) ([][]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.tabs[tab]
	return v, ok
}
