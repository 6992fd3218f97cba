package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chantier/internal/core"
	"chantier/internal/services"
	"chantier/internal/storage"
)

func newTestService(t *testing.T) *services.SiteService {
	t.Helper()
	files, err := storage.NewDiskFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	return services.NewSiteService(storage.NewMemoryRepository(), nil, files, services.NewSiteCache(8, time.Minute))
}

func run(t *testing.T, svc *services.SiteService, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(func(string) (*services.SiteService, func() error, error) {
		return svc, func() error { return nil }, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, svc *services.SiteService, args ...string) string {
	t.Helper()
	out, err := run(t, svc, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func TestRecordAndReport(t *testing.T) {
	t.Setenv("CHANTIER_OWNER", "")
	svc := newTestService(t)

	out := mustRun(t, svc, "add-site", "--owner", "alice", "--name", "Maison Dupont", "--rate", "20")
	if !strings.Contains(out, "Created site #1 Maison Dupont") {
		t.Fatalf("add-site output %q", out)
	}

	out = mustRun(t, svc, "log-time", "1", "--owner", "alice", "--date", "2025-03-10", "--from", "08:00", "--to", "12:00")
	if !strings.Contains(out, "4h 0m at €20.00 = €80.00") {
		t.Fatalf("log-time output %q", out)
	}
	out = mustRun(t, svc, "log-time", "1", "--owner", "alice", "--date", "2025-03-11", "--from", "22:00", "--to", "02:00")
	if !strings.Contains(out, "22:00-02:00, 4h 0m") {
		t.Fatalf("night shift output %q", out)
	}

	out = mustRun(t, svc, "add-expense", "1", "--owner", "alice", "--date", "2025-03-10", "--description", "Sable", "--base", "100", "--margin", "15")
	if !strings.Contains(out, "Sable: €115.00") {
		t.Fatalf("add-expense output %q", out)
	}

	// Rate changes do not touch logged entries
	mustRun(t, svc, "set-rate", "1", "30", "--owner", "alice")

	out = mustRun(t, svc, "totals", "1", "--owner", "alice")
	for _, want := range []string{"Hours:    8h 0m", "Earnings: €160.00", "Expenses: €115.00", "Net:      €275.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("totals output missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, svc, "sites", "--owner", "alice")
	if !strings.Contains(out, "Maison Dupont") || !strings.Contains(out, "€30.00") || !strings.Contains(out, "€275.00") {
		t.Errorf("sites output:\n%s", out)
	}

	out = mustRun(t, svc, "days", "1", "--owner", "alice")
	if out != "2025-03-11\n2025-03-10\n" {
		t.Errorf("days output %q", out)
	}

	out = mustRun(t, svc, "day", "1", "2025-03-10", "--owner", "alice")
	if !strings.Contains(out, "Net:      €195.00") {
		t.Errorf("day output:\n%s", out)
	}

	out = mustRun(t, svc, "export", "1", "--owner", "alice", "--date", "2025-03-10")
	want := "Date,Arrival,Departure,Duration,Hourly rate,Earnings\n" +
		"2025-03-10,08:00,12:00,4h 0m,20.00,80.00\n" +
		"\n" +
		"Date,Description,Base amount,Margin,Total\n" +
		"2025-03-10,Sable,100.00,15%,115.00\n"
	if out != want {
		t.Errorf("export output:\n%s\nwant:\n%s", out, want)
	}
}

func TestAttach(t *testing.T) {
	t.Setenv("CHANTIER_OWNER", "alice")
	svc := newTestService(t)
	mustRun(t, svc, "add-site", "--name", "A")
	mustRun(t, svc, "add-expense", "1", "--date", "2025-03-10", "--description", "Vis", "--amount", "8,40")

	receipt := filepath.Join(t.TempDir(), "ticket.JPG")
	if err := os.WriteFile(receipt, []byte("jpeg"), 0644); err != nil {
		t.Fatal(err)
	}
	out := mustRun(t, svc, "attach", "1", "2", receipt)
	if !strings.HasPrefix(out, "Stored expenses/2/") || !strings.HasSuffix(strings.TrimSpace(out), ".jpg") {
		t.Errorf("attach output %q", out)
	}
}

func TestCommandErrors(t *testing.T) {
	t.Setenv("CHANTIER_OWNER", "")
	svc := newTestService(t)
	mustRun(t, svc, "add-site", "--owner", "alice", "--name", "A")

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"missing owner", []string{"sites"}, core.ErrNoSession},
		{"unknown site", []string{"totals", "99", "--owner", "alice"}, storage.ErrNotFound},
		{"foreign site", []string{"totals", "1", "--owner", "bob"}, storage.ErrNotFound},
		{"bad date", []string{"log-time", "1", "--owner", "alice", "--date", "10/03/2025", "--from", "08:00", "--to", "09:00"}, core.ErrInvalidDate},
		{"missing departure", []string{"log-time", "1", "--owner", "alice", "--date", "2025-03-10", "--from", "08:00"}, core.ErrInvalidTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, svc, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := run(t, svc, "totals", "abc", "--owner", "alice"); err == nil {
		t.Error("non numeric site id should fail")
	}
}
