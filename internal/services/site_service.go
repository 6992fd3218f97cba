package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"chantier/internal/cache"
	"chantier/internal/core"
	"chantier/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// overviewConcurrency bounds how many sites are totalled at once.
const overviewConcurrency = 4

var (
	// ErrExportUnavailable is returned by RequestExport when no queue is configured.
	ErrExportUnavailable = errors.New("export queue not configured")
	// ErrQueueUnavailable wraps publish failures from a configured queue.
	ErrQueueUnavailable = errors.New("export queue unavailable")
	// ErrFilesUnavailable is returned by the attachment operations when no
	// file store is configured.
	ErrFilesUnavailable = errors.New("file storage not configured")
)

// ValidationError marks input the caller has to fix.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Err: err}
}

// ExportPublisher queues a spreadsheet export for asynchronous processing.
type ExportPublisher interface {
	PublishExportRequest(ctx context.Context, ownerID string, siteID int64, date *core.Date) error
}

// FileStore keeps expense attachments. Delete of a missing path succeeds.
type FileStore interface {
	Put(ctx context.Context, path string, r io.Reader) error
	Open(path string) (io.ReadSeekCloser, error)
	Delete(ctx context.Context, path string) error
}

type (
	SiteOverview struct {
		Site   core.Site
		Totals core.Totals
	}

	EntryView struct {
		Entry     core.TimeEntry
		Breakdown core.EntryBreakdown
	}

	ExpenseView struct {
		Expense   core.Expense
		Breakdown core.ExpenseBreakdown
	}

	SiteDetail struct {
		Site     core.Site
		Entries  []EntryView
		Expenses []ExpenseView
		Totals   core.Totals
	}

	DaySummary struct {
		Site     core.Site
		Date     core.Date
		Entries  []EntryView
		Expenses []ExpenseView
		Totals   core.Totals
	}
)

type siteKey struct {
	owner string
	id    int64
}

// SiteCache holds sites by owner and id between requests.
type SiteCache = cache.LRU[siteKey, core.Site]

// SiteService runs the read and write paths for sites, fetching records
// from the repository and feeding them to the aggregation engine.
type SiteService struct {
	repo      storage.Repository
	publisher ExportPublisher
	files     FileStore
	sites     *SiteCache
}

// NewSiteService wires the service. publisher, files and siteCache are
// optional.
func NewSiteService(repo storage.Repository, publisher ExportPublisher, files FileStore, siteCache *SiteCache) *SiteService {
	return &SiteService{
		repo:      repo,
		publisher: publisher,
		files:     files,
		sites:     siteCache,
	}
}

// NewSiteCache builds the cache NewSiteService accepts.
func NewSiteCache(size int, ttl time.Duration) *SiteCache {
	return cache.NewLRU[siteKey, core.Site](size, ttl)
}

// Site returns a site owned by the session.
func (s *SiteService) Site(ctx context.Context, sess core.Session, id int64) (core.Site, error) {
	if err := sess.Validate(); err != nil {
		return core.Site{}, err
	}
	key := siteKey{owner: sess.OwnerID, id: id}
	if s.sites != nil {
		if site, ok := s.sites.Get(key); ok {
			return site, nil
		}
	}
	site, err := s.repo.GetSite(ctx, sess, id)
	if err != nil {
		return core.Site{}, err
	}
	if s.sites != nil {
		s.sites.Set(key, site)
	}
	return site, nil
}

func (s *SiteService) CreateSite(ctx context.Context, sess core.Session, site core.Site) (core.Site, error) {
	if err := sess.Validate(); err != nil {
		return core.Site{}, err
	}
	site.Name = strings.TrimSpace(site.Name)
	if err := site.Validate(); err != nil {
		return core.Site{}, invalid(err)
	}
	created, err := s.repo.CreateSite(ctx, sess, site)
	if err != nil {
		return core.Site{}, fmt.Errorf("create site: %w", err)
	}
	return created, nil
}

// Overviews returns every site of the session with its totals.
func (s *SiteService) Overviews(ctx context.Context, sess core.Session) ([]SiteOverview, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	sites, err := s.repo.ListSites(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}

	out := make([]SiteOverview, len(sites))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(overviewConcurrency)
	for i, site := range sites {
		g.Go(func() error {
			entries, expenses, err := s.records(gctx, site.ID, nil)
			if err != nil {
				return fmt.Errorf("site %d: %w", site.ID, err)
			}
			out[i] = SiteOverview{Site: site, Totals: core.ComputeTotals(entries, expenses)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SiteService) Detail(ctx context.Context, sess core.Session, id int64) (SiteDetail, error) {
	site, err := s.Site(ctx, sess, id)
	if err != nil {
		return SiteDetail{}, err
	}
	entries, expenses, err := s.records(ctx, id, nil)
	if err != nil {
		return SiteDetail{}, err
	}
	return SiteDetail{
		Site:     site,
		Entries:  entryViews(entries),
		Expenses: expenseViews(expenses),
		Totals:   core.ComputeTotals(entries, expenses),
	}, nil
}

// Days lists the dates with at least one record, newest first.
func (s *SiteService) Days(ctx context.Context, sess core.Session, id int64) ([]core.Date, error) {
	if _, err := s.Site(ctx, sess, id); err != nil {
		return nil, err
	}
	entries, expenses, err := s.records(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	return core.ActiveDays(entries, expenses), nil
}

func (s *SiteService) DaySummary(ctx context.Context, sess core.Session, id int64, date core.Date) (DaySummary, error) {
	if err := date.Validate(); err != nil {
		return DaySummary{}, invalid(err)
	}
	site, err := s.Site(ctx, sess, id)
	if err != nil {
		return DaySummary{}, err
	}
	entries, expenses, err := s.records(ctx, id, &date)
	if err != nil {
		return DaySummary{}, err
	}
	return DaySummary{
		Site:     site,
		Date:     date,
		Entries:  entryViews(entries),
		Expenses: expenseViews(expenses),
		Totals:   core.ComputeTotals(entries, expenses),
	}, nil
}

// Export returns the spreadsheet rows for a site, limited to one day when
// date is set.
func (s *SiteService) Export(ctx context.Context, sess core.Session, id int64, date *core.Date) ([][]string, error) {
	if date != nil {
		if err := date.Validate(); err != nil {
			return nil, invalid(err)
		}
	}
	if _, err := s.Site(ctx, sess, id); err != nil {
		return nil, err
	}
	entries, expenses, err := s.records(ctx, id, date)
	if err != nil {
		return nil, err
	}
	return core.ExportRows(entries, expenses), nil
}

// RequestExport queues a spreadsheet export of the site.
func (s *SiteService) RequestExport(ctx context.Context, sess core.Session, id int64, date *core.Date) error {
	if s.publisher == nil {
		return ErrExportUnavailable
	}
	if date != nil {
		if err := date.Validate(); err != nil {
			return invalid(err)
		}
	}
	if _, err := s.Site(ctx, sess, id); err != nil {
		return err
	}
	if err := s.publisher.PublishExportRequest(ctx, sess.OwnerID, id, date); err != nil {
		slog.ErrorContext(ctx, "Failed to publish export request", "site_id", id, "error", err)
		return fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}
	return nil
}

// LogTime records a shift at the site's current rate. Later rate changes
// leave the entry untouched.
func (s *SiteService) LogTime(ctx context.Context, sess core.Session, siteID int64, date core.Date, arrived, departed core.TimeOfDay) (core.TimeEntry, error) {
	site, err := s.Site(ctx, sess, siteID)
	if err != nil {
		return core.TimeEntry{}, err
	}
	e := core.TimeEntry{
		SiteID:     siteID,
		Date:       date,
		ArrivedAt:  arrived,
		DepartedAt: departed,
		HourlyRate: site.CurrentRate,
	}
	if err := e.Validate(); err != nil {
		return core.TimeEntry{}, invalid(err)
	}
	created, err := s.repo.AddTimeEntry(ctx, e)
	if err != nil {
		return core.TimeEntry{}, fmt.Errorf("add time entry: %w", err)
	}
	return created, nil
}

func (s *SiteService) AddExpense(ctx context.Context, sess core.Session, siteID int64, x core.Expense) (core.Expense, error) {
	if _, err := s.Site(ctx, sess, siteID); err != nil {
		return core.Expense{}, err
	}
	x.SiteID = siteID
	x.Description = strings.TrimSpace(x.Description)
	if err := x.Validate(); err != nil {
		return core.Expense{}, invalid(err)
	}
	created, err := s.repo.AddExpense(ctx, x)
	if err != nil {
		return core.Expense{}, fmt.Errorf("add expense: %w", err)
	}
	return created, nil
}

// SetRate changes the default rate for new entries of the site.
func (s *SiteService) SetRate(ctx context.Context, sess core.Session, siteID int64, rate decimal.Decimal) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	if rate.IsNegative() {
		return invalid(core.ErrInvalidRate)
	}
	if err := s.repo.UpdateSiteRate(ctx, sess, siteID, rate); err != nil {
		return err
	}
	s.forget(sess, siteID)
	slog.InfoContext(ctx, "Site rate updated", "site_id", siteID, "rate", rate.String())
	return nil
}

// AttachFile stores an attachment for the expense under
// expenses/{expenseID}/{uuid}.{ext} and returns that path. A previous
// attachment is replaced and removed.
func (s *SiteService) AttachFile(ctx context.Context, sess core.Session, siteID, expenseID int64, filename string, content io.Reader) (string, error) {
	if s.files == nil {
		return "", ErrFilesUnavailable
	}
	if _, err := s.Site(ctx, sess, siteID); err != nil {
		return "", err
	}
	x, err := s.repo.GetExpense(ctx, siteID, expenseID)
	if err != nil {
		return "", err
	}

	p := attachmentPath(expenseID, filename)
	if err := s.files.Put(ctx, p, content); err != nil {
		return "", fmt.Errorf("store attachment: %w", err)
	}
	if err := s.repo.SetExpenseFile(ctx, siteID, expenseID, p); err != nil {
		s.removeFile(ctx, p)
		return "", err
	}
	slog.InfoContext(ctx, "Expense attachment stored", "expense_id", expenseID, "path", p)
	if x.FilePath != "" && x.FilePath != p {
		s.removeFile(ctx, x.FilePath)
	}
	return p, nil
}

// OpenAttachment returns the stored file of an expense and its path.
// Expenses without an attachment report storage.ErrNotFound.
func (s *SiteService) OpenAttachment(ctx context.Context, sess core.Session, siteID, expenseID int64) (io.ReadSeekCloser, string, error) {
	if s.files == nil {
		return nil, "", ErrFilesUnavailable
	}
	if _, err := s.Site(ctx, sess, siteID); err != nil {
		return nil, "", err
	}
	x, err := s.repo.GetExpense(ctx, siteID, expenseID)
	if err != nil {
		return nil, "", err
	}
	if x.FilePath == "" {
		return nil, "", fmt.Errorf("expense %d has no attachment: %w", expenseID, storage.ErrNotFound)
	}
	f, err := s.files.Open(x.FilePath)
	if err != nil {
		return nil, "", err
	}
	return f, x.FilePath, nil
}

// DeleteSite removes the site with its records, then the attachments of
// its expenses.
func (s *SiteService) DeleteSite(ctx context.Context, sess core.Session, id int64) error {
	if _, err := s.Site(ctx, sess, id); err != nil {
		return err
	}
	var attachments []string
	if s.files != nil {
		expenses, err := s.repo.ListExpenses(ctx, id, nil)
		if err != nil {
			return fmt.Errorf("list expenses: %w", err)
		}
		for _, x := range expenses {
			if x.FilePath != "" {
				attachments = append(attachments, x.FilePath)
			}
		}
	}

	if err := s.repo.DeleteSite(ctx, sess, id); err != nil {
		return err
	}
	s.forget(sess, id)
	for _, p := range attachments {
		s.removeFile(ctx, p)
	}
	return nil
}

func (s *SiteService) DeleteTimeEntry(ctx context.Context, sess core.Session, siteID, entryID int64) error {
	if _, err := s.Site(ctx, sess, siteID); err != nil {
		return err
	}
	return s.repo.DeleteTimeEntry(ctx, siteID, entryID)
}

// DeleteExpense removes the expense and then its attachment.
func (s *SiteService) DeleteExpense(ctx context.Context, sess core.Session, siteID, expenseID int64) error {
	if _, err := s.Site(ctx, sess, siteID); err != nil {
		return err
	}
	x, err := s.repo.GetExpense(ctx, siteID, expenseID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, siteID, expenseID); err != nil {
		return err
	}
	s.removeFile(ctx, x.FilePath)
	return nil
}

func (s *SiteService) forget(sess core.Session, id int64) {
	if s.sites != nil {
		s.sites.Delete(siteKey{owner: sess.OwnerID, id: id})
	}
}

// removeFile deletes an attachment whose row is already gone. Failures
// leave an orphaned file and are only logged.
func (s *SiteService) removeFile(ctx context.Context, p string) {
	if s.files == nil || p == "" {
		return
	}
	if err := s.files.Delete(ctx, p); err != nil {
		slog.WarnContext(ctx, "Failed to remove attachment", "path", p, "error", err)
	}
}

// records fetches a site's entries and expenses concurrently.
func (s *SiteService) records(ctx context.Context, siteID int64, date *core.Date) ([]core.TimeEntry, []core.Expense, error) {
	var (
		entries  []core.TimeEntry
		expenses []core.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = s.repo.ListTimeEntries(gctx, siteID, date)
		if err != nil {
			return fmt.Errorf("list time entries: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		expenses, err = s.repo.ListExpenses(gctx, siteID, date)
		if err != nil {
			return fmt.Errorf("list expenses: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return entries, expenses, nil
}

func entryViews(entries []core.TimeEntry) []EntryView {
	out := make([]EntryView, len(entries))
	for i, e := range entries {
		out[i] = EntryView{Entry: e, Breakdown: core.ComputeEntryBreakdown(e)}
	}
	return out
}

func expenseViews(expenses []core.Expense) []ExpenseView {
	out := make([]ExpenseView, len(expenses))
	for i, x := range expenses {
		out[i] = ExpenseView{Expense: x, Breakdown: core.ComputeExpenseBreakdown(x)}
	}
	return out
}

func attachmentPath(expenseID int64, filename string) string {
	name := uuid.NewString()
	if ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), "."); ext != "" {
		name += "." + ext
	}
	return fmt.Sprintf("expenses/%d/%s", expenseID, name)
}
