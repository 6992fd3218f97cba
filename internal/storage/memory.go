package storage

import (
	"context"
	"sort"
	"sync"

	"chantier/internal/core"

	"github.com/shopspring/decimal"
)

// MemoryRepository keeps everything in process memory. It backs the
// "memory" data backend and the tests.
type MemoryRepository struct {
	mu       sync.Mutex
	nextID   int64
	sites    map[int64]core.Site
	entries  map[int64]core.TimeEntry
	expenses map[int64]core.Expense
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sites:    make(map[int64]core.Site),
		entries:  make(map[int64]core.TimeEntry),
		expenses: make(map[int64]core.Expense),
	}
}

func (m *MemoryRepository) Close() error { return nil }

func (m *MemoryRepository) Ping(context.Context) error { return nil }

func (m *MemoryRepository) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryRepository) CreateSite(_ context.Context, sess core.Session, s core.Site) (core.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Status == "" {
		s.Status = core.StatusActive
	}
	s.ID = m.id()
	s.OwnerID = sess.OwnerID
	m.sites[s.ID] = s
	return s, nil
}

func (m *MemoryRepository) GetSite(_ context.Context, sess core.Session, id int64) (core.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok || s.OwnerID != sess.OwnerID {
		return core.Site{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryRepository) ListSites(_ context.Context, sess core.Session) ([]core.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Site
	for _, s := range m.sites {
		if s.OwnerID == sess.OwnerID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) UpdateSiteRate(_ context.Context, sess core.Session, id int64, rate decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok || s.OwnerID != sess.OwnerID {
		return ErrNotFound
	}
	s.CurrentRate = rate
	m.sites[id] = s
	return nil
}

func (m *MemoryRepository) DeleteSite(_ context.Context, sess core.Session, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok || s.OwnerID != sess.OwnerID {
		return ErrNotFound
	}
	delete(m.sites, id)
	for eid, e := range m.entries {
		if e.SiteID == id {
			delete(m.entries, eid)
		}
	}
	for xid, x := range m.expenses {
		if x.SiteID == id {
			delete(m.expenses, xid)
		}
	}
	return nil
}

func (m *MemoryRepository) AddTimeEntry(_ context.Context, e core.TimeEntry) (core.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.id()
	m.entries[e.ID] = e
	return e, nil
}

func (m *MemoryRepository) ListTimeEntries(_ context.Context, siteID int64, date *core.Date) ([]core.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.TimeEntry
	for _, e := range m.entries {
		if e.SiteID != siteID || (date != nil && !e.Date.SameDay(*date)) {
			continue
		}
		out = append(out, e)
	}
	if date != nil {
		sort.Slice(out, func(i, j int) bool {
			if out[i].ArrivedAt.Minutes() != out[j].ArrivedAt.Minutes() {
				return out[i].ArrivedAt.Minutes() < out[j].ArrivedAt.Minutes()
			}
			return out[i].ID < out[j].ID
		})
	} else {
		sort.Slice(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if !a.Date.SameDay(b.Date) {
				return a.Date.After(b.Date.Time)
			}
			if a.DepartedAt.Minutes() != b.DepartedAt.Minutes() {
				return a.DepartedAt.Minutes() > b.DepartedAt.Minutes()
			}
			return a.ID > b.ID
		})
	}
	return out, nil
}

func (m *MemoryRepository) DeleteTimeEntry(_ context.Context, siteID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.SiteID != siteID {
		return ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *MemoryRepository) AddExpense(_ context.Context, x core.Expense) (core.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	x.ID = m.id()
	m.expenses[x.ID] = x
	return x, nil
}

func (m *MemoryRepository) GetExpense(_ context.Context, siteID, id int64) (core.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, ok := m.expenses[id]
	if !ok || x.SiteID != siteID {
		return core.Expense{}, ErrNotFound
	}
	return x, nil
}

func (m *MemoryRepository) ListExpenses(_ context.Context, siteID int64, date *core.Date) ([]core.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Expense
	for _, x := range m.expenses {
		if x.SiteID != siteID || (date != nil && !x.Date.SameDay(*date)) {
			continue
		}
		out = append(out, x)
	}
	// Newest first, like the SQLite ordering on created_at
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MemoryRepository) DeleteExpense(_ context.Context, siteID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, ok := m.expenses[id]
	if !ok || x.SiteID != siteID {
		return ErrNotFound
	}
	delete(m.expenses, id)
	return nil
}

func (m *MemoryRepository) SetExpenseFile(_ context.Context, siteID, id int64, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, ok := m.expenses[id]
	if !ok || x.SiteID != siteID {
		return ErrNotFound
	}
	x.FilePath = path
	m.expenses[id] = x
	return nil
}
