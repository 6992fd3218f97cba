package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	ports "chantier/internal/sheets"
)

var _ ports.ReportWriter = (*Store)(nil)

// Store keeps reports in memory, keyed by title.
type Store struct {
	mu      sync.Mutex
	reports map[string][][]string
}

func New() *Store {
	return &Store{reports: make(map[string][][]string)}
}

func (s *Store) WriteReport(_ context.Context, title string, rows [][]string) error {
	if title == "" {
		return errors.New("empty report title")
	}
	cp := make([][]string, len(rows))
	for i, r := range rows {
		cp[i] = append([]string(nil), r...)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[title] = cp
	return nil
}

// Report returns the rows last written under title.
func (s *Store) Report(title string) ([][]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.reports[title]
	return rows, ok
}

// Titles lists the stored report titles in order.
func (s *Store) Titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.reports))
	for t := range s.reports {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
