package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"chantier/internal/core"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the pool opens so every connection sees the schema
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateSite(ctx context.Context, sess core.Session, s core.Site) (core.Site, error) {
	if s.Status == "" {
		s.Status = core.StatusActive
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sites (owner_id, name, address, description, status, start_date, current_rate)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.OwnerID, s.Name, s.Address, s.Description, string(s.Status),
		nullString(s.StartDate.String()), s.CurrentRate.String())
	if err != nil {
		return core.Site{}, fmt.Errorf("insert site: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Site{}, fmt.Errorf("site id: %w", err)
	}
	s.ID = id
	s.OwnerID = sess.OwnerID

	slog.InfoContext(ctx, "Site saved to SQLite", "id", id, "owner_id", sess.OwnerID, "name", s.Name)
	return s, nil
}

const siteColumns = `id, owner_id, name, address, description, status, start_date, current_rate`

func (r *SQLiteRepository) GetSite(ctx context.Context, sess core.Session, id int64) (core.Site, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE id = ? AND owner_id = ?`, id, sess.OwnerID)
	s, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Site{}, ErrNotFound
	}
	if err != nil {
		return core.Site{}, fmt.Errorf("get site %d: %w", id, err)
	}
	return s, nil
}

func (r *SQLiteRepository) ListSites(ctx context.Context, sess core.Session) ([]core.Site, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE owner_id = ? ORDER BY id`, sess.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []core.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

func (r *SQLiteRepository) UpdateSiteRate(ctx context.Context, sess core.Session, id int64, rate decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sites SET current_rate = ? WHERE id = ? AND owner_id = ?`, rate.String(), id, sess.OwnerID)
	if err != nil {
		return fmt.Errorf("update site rate: %w", err)
	}
	return expectAffected(res)
}

// DeleteSite removes the site with its time entries and expenses in one
// transaction.
func (r *SQLiteRepository) DeleteSite(ctx context.Context, sess core.Session, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete site: %w", err)
	}
	defer tx.Rollback()

	owned := `SELECT id FROM sites WHERE id = ? AND owner_id = ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM time_entries WHERE site_id IN (`+owned+`)`, id, sess.OwnerID); err != nil {
		return fmt.Errorf("delete site time entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE site_id IN (`+owned+`)`, id, sess.OwnerID); err != nil {
		return fmt.Errorf("delete site expenses: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sites WHERE id = ? AND owner_id = ?`, id, sess.OwnerID)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete site: %w", err)
	}

	slog.InfoContext(ctx, "Site deleted with its records", "id", id, "owner_id", sess.OwnerID)
	return nil
}

func (r *SQLiteRepository) AddTimeEntry(ctx context.Context, e core.TimeEntry) (core.TimeEntry, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO time_entries (site_id, date, arrived_at, departed_at, hourly_rate)
		 VALUES (?, ?, ?, ?, ?)`,
		e.SiteID, e.Date.String(), nullString(e.ArrivedAt.String()), nullString(e.DepartedAt.String()),
		e.HourlyRate.String())
	if err != nil {
		return core.TimeEntry{}, fmt.Errorf("insert time entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.TimeEntry{}, fmt.Errorf("time entry id: %w", err)
	}
	e.ID = id

	slog.InfoContext(ctx, "Time entry saved to SQLite",
		"id", id,
		"site_id", e.SiteID,
		"date", e.Date.String(),
		"hourly_rate", e.HourlyRate.String())
	return e, nil
}

func (r *SQLiteRepository) ListTimeEntries(ctx context.Context, siteID int64, date *core.Date) ([]core.TimeEntry, error) {
	q := `SELECT id, site_id, date, arrived_at, departed_at, hourly_rate FROM time_entries WHERE site_id = ?`
	args := []any{siteID}
	if date != nil {
		q += ` AND date = ? ORDER BY arrived_at, id`
		args = append(args, date.String())
	} else {
		q += ` ORDER BY date DESC, departed_at DESC, id DESC`
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list time entries: %w", err)
	}
	defer rows.Close()

	var entries []core.TimeEntry
	for rows.Next() {
		var (
			e                 core.TimeEntry
			day, rate         string
			arrived, departed sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.SiteID, &day, &arrived, &departed, &rate); err != nil {
			return nil, fmt.Errorf("scan time entry: %w", err)
		}
		e.Date = parseStoredDate(day)
		e.ArrivedAt = core.ParseTimeOfDay(arrived.String)
		e.DepartedAt = core.ParseTimeOfDay(departed.String)
		e.HourlyRate = core.ParseAmount(rate)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *SQLiteRepository) DeleteTimeEntry(ctx context.Context, siteID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM time_entries WHERE id = ? AND site_id = ?`, id, siteID)
	if err != nil {
		return fmt.Errorf("delete time entry: %w", err)
	}
	return expectAffected(res)
}

func (r *SQLiteRepository) AddExpense(ctx context.Context, x core.Expense) (core.Expense, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (site_id, date, description, base_amount, amount, margin, file_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		x.SiteID, x.Date.String(), x.Description,
		nullDecimal(x.BaseAmount), nullDecimal(x.Amount), nullDecimal(x.Margin), nullString(x.FilePath))
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense id: %w", err)
	}
	x.ID = id

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", id,
		"site_id", x.SiteID,
		"description", x.Description,
		"total", core.ExpenseTotal(x).StringFixed(2))
	return x, nil
}

const expenseColumns = `id, site_id, date, description, base_amount, amount, margin, file_path`

func (r *SQLiteRepository) GetExpense(ctx context.Context, siteID, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND site_id = ?`, id, siteID)
	x, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return x, nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, siteID int64, date *core.Date) ([]core.Expense, error) {
	q := `SELECT ` + expenseColumns + ` FROM expenses WHERE site_id = ?`
	args := []any{siteID}
	if date != nil {
		q += ` AND date = ?`
		args = append(args, date.String())
	}
	q += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		x, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, x)
	}
	return expenses, rows.Err()
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, siteID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND site_id = ?`, id, siteID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return expectAffected(res)
}

func (r *SQLiteRepository) SetExpenseFile(ctx context.Context, siteID, id int64, path string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET file_path = ? WHERE id = ? AND site_id = ?`, nullString(path), id, siteID)
	if err != nil {
		return fmt.Errorf("set expense file: %w", err)
	}
	return expectAffected(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSite(s scanner) (core.Site, error) {
	var (
		site      core.Site
		status    string
		startDate sql.NullString
		rate      string
	)
	if err := s.Scan(&site.ID, &site.OwnerID, &site.Name, &site.Address, &site.Description,
		&status, &startDate, &rate); err != nil {
		return core.Site{}, err
	}
	site.Status = core.SiteStatus(status)
	site.StartDate = parseStoredDate(startDate.String)
	site.CurrentRate = core.ParseAmount(rate)
	return site, nil
}

func scanExpense(s scanner) (core.Expense, error) {
	var (
		x                    core.Expense
		day                  string
		base, amount, margin sql.NullString
		filePath             sql.NullString
	)
	if err := s.Scan(&x.ID, &x.SiteID, &day, &x.Description, &base, &amount, &margin, &filePath); err != nil {
		return core.Expense{}, err
	}
	x.Date = parseStoredDate(day)
	x.BaseAmount = core.ParseOptionalAmount(base.String)
	x.Amount = core.ParseOptionalAmount(amount.String)
	x.Margin = core.ParseOptionalAmount(margin.String)
	x.FilePath = filePath.String
	return x, nil
}

// parseStoredDate yields the zero date for malformed column values.
func parseStoredDate(s string) core.Date {
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}
	}
	return d
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
