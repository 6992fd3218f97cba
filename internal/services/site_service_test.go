package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"chantier/internal/core"
	"chantier/internal/storage"

	"github.com/shopspring/decimal"
)

var owner = core.Session{OwnerID: "owner-1"}

type recordingPublisher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *recordingPublisher) PublishExportRequest(_ context.Context, ownerID string, siteID int64, date *core.Date) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := ""
	if date != nil {
		d = date.String()
	}
	p.calls = append(p.calls, ownerID+"|"+d)
	return p.err
}

type memoryFiles struct {
	files map[string][]byte
}

func (m *memoryFiles) Put(_ context.Context, path string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.files[path] = data
	return nil
}

type readSeekNopCloser struct{ *bytes.Reader }

func (readSeekNopCloser) Close() error { return nil }

func (m *memoryFiles) Open(path string) (io.ReadSeekCloser, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return readSeekNopCloser{bytes.NewReader(data)}, nil
}

func (m *memoryFiles) Delete(_ context.Context, path string) error {
	delete(m.files, path)
	return nil
}

func newTestService(t *testing.T) (*SiteService, *storage.MemoryRepository, *recordingPublisher, *memoryFiles) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	pub := &recordingPublisher{}
	files := &memoryFiles{files: map[string][]byte{}}
	svc := NewSiteService(repo, pub, files, NewSiteCache(16, time.Minute))
	return svc, repo, pub, files
}

func mustSite(t *testing.T, svc *SiteService, name, rate string) core.Site {
	t.Helper()
	site, err := svc.CreateSite(context.Background(), owner, core.Site{Name: name, CurrentRate: decimal.RequireFromString(rate)})
	if err != nil {
		t.Fatalf("create site: %v", err)
	}
	return site
}

func TestLogTimeSnapshotsCurrentRate(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	site := mustSite(t, svc, "Maison", "20")
	day := core.NewDate(2025, 3, 10)

	if _, err := svc.LogTime(ctx, owner, site.ID, day, core.NewTimeOfDay(8, 0), core.NewTimeOfDay(16, 0)); err != nil {
		t.Fatalf("log time: %v", err)
	}
	if err := svc.SetRate(ctx, owner, site.ID, decimal.NewFromInt(15)); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	entry, err := svc.LogTime(ctx, owner, site.ID, day, core.NewTimeOfDay(17, 0), core.NewTimeOfDay(21, 0))
	if err != nil {
		t.Fatalf("log time: %v", err)
	}
	if !entry.HourlyRate.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("new entry rate = %s, cached site was not refreshed", entry.HourlyRate)
	}
	if _, err := svc.AddExpense(ctx, owner, site.ID, core.Expense{Date: day, Description: "Ciment", BaseAmount: core.ParseOptionalAmount("50")}); err != nil {
		t.Fatalf("add expense: %v", err)
	}

	detail, err := svc.Detail(ctx, owner, site.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	tot := detail.Totals
	if tot.TotalMinutes != 720 || core.FormatMoney(tot.TotalEarnings) != "€220.00" ||
		core.FormatMoney(tot.TotalExpenses) != "€50.00" || core.FormatMoney(tot.NetTotal) != "€270.00" {
		t.Fatalf("unexpected totals %+v", tot)
	}
	if tot.HoursDisplay() != "12h 0m" {
		t.Errorf("HoursDisplay() = %q", tot.HoursDisplay())
	}
	if len(detail.Entries) != 2 || len(detail.Expenses) != 1 {
		t.Fatalf("unexpected detail %+v", detail)
	}
}

func TestDetailAgreesWithExport(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	site := mustSite(t, svc, "Maison", "17.35")
	day := core.NewDate(2025, 3, 10)
	svc.LogTime(ctx, owner, site.ID, day, core.NewTimeOfDay(7, 13), core.NewTimeOfDay(11, 52))

	detail, _ := svc.Detail(ctx, owner, site.ID)
	rows, err := svc.Export(ctx, owner, site.ID, nil)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	want := detail.Entries[0].Breakdown.Earnings.StringFixed(2)
	if got := rows[1][5]; got != want {
		t.Errorf("export earnings %q, detail earnings %q", got, want)
	}
}

func TestOverviewsAcrossSites(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	day := core.NewDate(2025, 3, 10)
	for i, rate := range []string{"10", "20", "30", "40", "50", "60"} {
		site := mustSite(t, svc, "Site "+rate, rate)
		if _, err := svc.LogTime(ctx, owner, site.ID, day, core.NewTimeOfDay(8, 0), core.NewTimeOfDay(9+i, 0)); err != nil {
			t.Fatalf("log time: %v", err)
		}
	}
	mustSiteFor(t, svc, core.Session{OwnerID: "someone-else"})

	overviews, err := svc.Overviews(ctx, owner)
	if err != nil {
		t.Fatalf("overviews: %v", err)
	}
	if len(overviews) != 6 {
		t.Fatalf("got %d overviews, want 6", len(overviews))
	}
	for i, o := range overviews {
		wantMinutes := (i + 1) * 60
		if o.Totals.TotalMinutes != wantMinutes {
			t.Errorf("%s: minutes = %d, want %d", o.Site.Name, o.Totals.TotalMinutes, wantMinutes)
		}
		wantNet := o.Site.CurrentRate.Mul(decimal.NewFromInt(int64(i + 1)))
		if !o.Totals.NetTotal.Equal(wantNet) {
			t.Errorf("%s: net = %s, want %s", o.Site.Name, o.Totals.NetTotal, wantNet)
		}
	}
}

func mustSiteFor(t *testing.T, svc *SiteService, sess core.Session) core.Site {
	t.Helper()
	site, err := svc.CreateSite(context.Background(), sess, core.Site{Name: "Other"})
	if err != nil {
		t.Fatalf("create site: %v", err)
	}
	return site
}

func TestDaysAndDaySummary(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	site := mustSite(t, svc, "Maison", "10")
	d1, d2, d3 := core.NewDate(2025, 3, 10), core.NewDate(2025, 3, 11), core.NewDate(2025, 3, 12)
	svc.LogTime(ctx, owner, site.ID, d1, core.NewTimeOfDay(13, 0), core.NewTimeOfDay(15, 0))
	svc.LogTime(ctx, owner, site.ID, d1, core.NewTimeOfDay(8, 0), core.NewTimeOfDay(12, 0))
	svc.LogTime(ctx, owner, site.ID, d2, core.NewTimeOfDay(22, 0), core.NewTimeOfDay(2, 0))
	svc.AddExpense(ctx, owner, site.ID, core.Expense{Date: d3, Description: "Vis", Amount: core.ParseOptionalAmount("8")})

	days, err := svc.Days(ctx, owner, site.ID)
	if err != nil {
		t.Fatalf("days: %v", err)
	}
	var got []string
	for _, d := range days {
		got = append(got, d.String())
	}
	if strings.Join(got, ",") != "2025-03-12,2025-03-11,2025-03-10" {
		t.Errorf("days = %v", got)
	}

	sum, err := svc.DaySummary(ctx, owner, site.ID, d1)
	if err != nil {
		t.Fatalf("day summary: %v", err)
	}
	if sum.Totals.TotalMinutes != 360 || len(sum.Entries) != 2 || len(sum.Expenses) != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.Entries[0].Entry.ArrivedAt.String() != "08:00" {
		t.Errorf("day entries should be ordered by arrival")
	}

	if _, err := svc.DaySummary(ctx, owner, site.ID, core.Date{}); !errors.As(err, new(*ValidationError)) {
		t.Errorf("expected validation error for missing date, got %v", err)
	}
}

func TestSessionScoping(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	site := mustSite(t, svc, "Maison", "10")
	intruder := core.Session{OwnerID: "intruder"}

	if _, err := svc.Detail(ctx, intruder, site.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Detail: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.LogTime(ctx, intruder, site.ID, core.NewDate(2025, 1, 1), core.NewTimeOfDay(8, 0), core.NewTimeOfDay(9, 0)); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("LogTime: expected ErrNotFound, got %v", err)
	}
	if err := svc.DeleteSite(ctx, intruder, site.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("DeleteSite: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Overviews(ctx, core.Session{}); !errors.Is(err, core.ErrNoSession) {
		t.Errorf("Overviews: expected ErrNoSession, got %v", err)
	}
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	site := mustSite(t, svc, "Maison", "10")
	day := core.NewDate(2025, 3, 10)

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"blank site name", func() error { _, err := svc.CreateSite(ctx, owner, core.Site{Name: "  "}); return err }(), core.ErrEmptyName},
		{"missing departure", func() error {
			_, err := svc.LogTime(ctx, owner, site.ID, day, core.NewTimeOfDay(8, 0), core.TimeOfDay{})
			return err
		}(), core.ErrInvalidTime},
		{"blank description", func() error {
			_, err := svc.AddExpense(ctx, owner, site.ID, core.Expense{Date: day, Description: " "})
			return err
		}(), core.ErrEmptyDescription},
		{"negative rate", svc.SetRate(ctx, owner, site.ID, decimal.NewFromInt(-1)), core.ErrInvalidRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var verr *ValidationError
			if !errors.As(tt.err, &verr) || !errors.Is(tt.err, tt.want) {
				t.Errorf("got %v, want validation error wrapping %v", tt.err, tt.want)
			}
		})
	}
}

func TestRequestExport(t *testing.T) {
	ctx := context.Background()
	svc, _, pub, _ := newTestService(t)
	site := mustSite(t, svc, "Maison", "10")
	day := core.NewDate(2025, 3, 10)

	if err := svc.RequestExport(ctx, owner, site.ID, &day); err != nil {
		t.Fatalf("request export: %v", err)
	}
	if err := svc.RequestExport(ctx, owner, site.ID, nil); err != nil {
		t.Fatalf("request export: %v", err)
	}
	if strings.Join(pub.calls, ";") != "owner-1|2025-03-10;owner-1|" {
		t.Errorf("published %v", pub.calls)
	}

	if err := svc.RequestExport(ctx, owner, site.ID+99, nil); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown site, got %v", err)
	}

	pub.err = errors.New("channel closed")
	if err := svc.RequestExport(ctx, owner, site.ID, nil); err == nil {
		t.Error("publish failure should be returned")
	}

	noQueue := NewSiteService(storage.NewMemoryRepository(), nil, nil, nil)
	if err := noQueue.RequestExport(ctx, owner, site.ID, nil); !errors.Is(err, ErrExportUnavailable) {
		t.Errorf("expected ErrExportUnavailable, got %v", err)
	}
}

func TestAttachFile(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, files := newTestService(t)
	site := mustSite(t, svc, "Maison", "10")
	x, _ := svc.AddExpense(ctx, owner, site.ID, core.Expense{Date: core.NewDate(2025, 3, 10), Description: "Sable", BaseAmount: core.ParseOptionalAmount("12")})

	p, err := svc.AttachFile(ctx, owner, site.ID, x.ID, "Facture.PDF", bytes.NewReader([]byte("%PDF")))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	pattern := regexp.MustCompile(`^expenses/\d+/[0-9a-f-]{36}\.pdf$`)
	if !pattern.MatchString(p) {
		t.Errorf("path %q does not match %s", p, pattern)
	}
	if string(files.files[p]) != "%PDF" {
		t.Errorf("stored content = %q", files.files[p])
	}
	stored, _ := repo.GetExpense(ctx, site.ID, x.ID)
	if stored.FilePath != p {
		t.Errorf("expense file path = %q, want %q", stored.FilePath, p)
	}

	if _, err := svc.AttachFile(ctx, owner, site.ID, x.ID+50, "a.png", strings.NewReader("x")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown expense, got %v", err)
	}
}

func TestAttachmentLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _, _, files := newTestService(t)
	site := mustSite(t, svc, "Maison", "10")
	day := core.NewDate(2025, 3, 10)
	first, _ := svc.AddExpense(ctx, owner, site.ID, core.Expense{Date: day, Description: "Sable", BaseAmount: core.ParseOptionalAmount("12")})
	second, _ := svc.AddExpense(ctx, owner, site.ID, core.Expense{Date: day, Description: "Vis", Amount: core.ParseOptionalAmount("3")})

	old, err := svc.AttachFile(ctx, owner, site.ID, first.ID, "r.pdf", strings.NewReader("v1"))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	current, err := svc.AttachFile(ctx, owner, site.ID, first.ID, "r.pdf", strings.NewReader("v2"))
	if err != nil {
		t.Fatalf("re-attach: %v", err)
	}
	if _, ok := files.files[old]; ok {
		t.Errorf("replaced attachment %s still stored", old)
	}

	f, p, err := svc.OpenAttachment(ctx, owner, site.ID, first.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if p != current || string(data) != "v2" {
		t.Errorf("OpenAttachment = %q %q, want %q v2", p, data, current)
	}

	tests := []struct {
		name      string
		sess      core.Session
		expenseID int64
	}{
		{"no attachment", owner, second.ID},
		{"unknown expense", owner, second.ID + 10},
		{"foreign owner", core.Session{OwnerID: "intruder"}, first.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.OpenAttachment(ctx, tt.sess, site.ID, tt.expenseID); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}

	if err := svc.DeleteExpense(ctx, owner, site.ID, first.ID); err != nil {
		t.Fatalf("delete expense: %v", err)
	}
	if _, ok := files.files[current]; ok {
		t.Errorf("attachment %s survived its expense", current)
	}
	if err := svc.DeleteExpense(ctx, owner, site.ID, first.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteExpenseRemovesFileOnDisk(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	files, err := storage.NewDiskFileStore(root)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	svc := NewSiteService(storage.NewMemoryRepository(), nil, files, nil)
	site := mustSite(t, svc, "Maison", "10")
	x, _ := svc.AddExpense(ctx, owner, site.ID, core.Expense{Date: core.NewDate(2025, 3, 10), Description: "Sable", Amount: core.ParseOptionalAmount("5")})

	p, err := svc.AttachFile(ctx, owner, site.ID, x.ID, "r.pdf", strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(p))); err != nil {
		t.Fatalf("attachment not on disk: %v", err)
	}
	if err := svc.DeleteExpense(ctx, owner, site.ID, x.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(p))); !os.IsNotExist(err) {
		t.Errorf("attachment %s still on disk after delete: %v", p, err)
	}
}

func TestDeleteSiteRemovesAttachments(t *testing.T) {
	ctx := context.Background()
	svc, _, _, files := newTestService(t)
	site := mustSite(t, svc, "Maison", "10")
	other := mustSite(t, svc, "Atelier", "10")
	day := core.NewDate(2025, 3, 10)

	var paths []string
	for _, id := range []int64{site.ID, site.ID, other.ID} {
		x, _ := svc.AddExpense(ctx, owner, id, core.Expense{Date: day, Description: "Sable", Amount: core.ParseOptionalAmount("5")})
		p, err := svc.AttachFile(ctx, owner, id, x.ID, "ticket.jpg", strings.NewReader("jpeg"))
		if err != nil {
			t.Fatalf("attach: %v", err)
		}
		paths = append(paths, p)
	}

	if err := svc.DeleteSite(ctx, core.Session{OwnerID: "intruder"}, site.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("foreign delete: expected ErrNotFound, got %v", err)
	}
	if len(files.files) != 3 {
		t.Fatalf("foreign delete removed files: %d left", len(files.files))
	}

	if err := svc.DeleteSite(ctx, owner, site.ID); err != nil {
		t.Fatalf("delete site: %v", err)
	}
	for _, p := range paths[:2] {
		if _, ok := files.files[p]; ok {
			t.Errorf("attachment %s survived its site", p)
		}
	}
	if _, ok := files.files[paths[2]]; !ok {
		t.Errorf("attachment of another site removed")
	}
}

func TestDeleteSiteDropsCachedSite(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	site := mustSite(t, svc, "Maison", "10")
	svc.LogTime(ctx, owner, site.ID, core.NewDate(2025, 3, 10), core.NewTimeOfDay(8, 0), core.NewTimeOfDay(9, 0))
	if _, err := svc.Detail(ctx, owner, site.ID); err != nil {
		t.Fatalf("detail: %v", err)
	}

	if err := svc.DeleteSite(ctx, owner, site.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Detail(ctx, owner, site.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("deleted site still readable: %v", err)
	}
}
