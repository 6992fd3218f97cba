package storage

import (
	"context"
	"errors"

	"chantier/internal/core"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a record does not exist or is not visible to
// the session owner.
var ErrNotFound = errors.New("not found")

// Repository persists sites and their records. Site lookups are scoped by
// the session owner; child records are scoped by their site, so callers
// check site ownership first.
//
// Deleting a site removes its time entries and expenses.
type Repository interface {
	CreateSite(ctx context.Context, sess core.Session, s core.Site) (core.Site, error)
	GetSite(ctx context.Context, sess core.Session, id int64) (core.Site, error)
	ListSites(ctx context.Context, sess core.Session) ([]core.Site, error)
	UpdateSiteRate(ctx context.Context, sess core.Session, id int64, rate decimal.Decimal) error
	DeleteSite(ctx context.Context, sess core.Session, id int64) error

	AddTimeEntry(ctx context.Context, e core.TimeEntry) (core.TimeEntry, error)
	// ListTimeEntries returns a site's entries, restricted to one day when
	// date is not nil.
	ListTimeEntries(ctx context.Context, siteID int64, date *core.Date) ([]core.TimeEntry, error)
	DeleteTimeEntry(ctx context.Context, siteID, id int64) error

	AddExpense(ctx context.Context, x core.Expense) (core.Expense, error)
	GetExpense(ctx context.Context, siteID, id int64) (core.Expense, error)
	ListExpenses(ctx context.Context, siteID int64, date *core.Date) ([]core.Expense, error)
	DeleteExpense(ctx context.Context, siteID, id int64) error
	SetExpenseFile(ctx context.Context, siteID, id int64, path string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Repository = (*SQLiteRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
