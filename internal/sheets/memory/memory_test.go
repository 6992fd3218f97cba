package memory

import (
	"context"
	"testing"
)

func TestStoreReplacesReport(t *testing.T) {
	s := New()
	ctx := context.Background()
	rows := [][]string{{"Date", "Total"}, {"2025-03-10", "12.00"}}

	if err := s.WriteReport(ctx, "Maison", rows); err != nil {
		t.Fatalf("WriteReport() error = %v", err)
	}
	rows[1][1] = "mutated"
	if got, _ := s.Report("Maison"); got[1][1] != "12.00" {
		t.Errorf("stored rows should be a copy, got %v", got)
	}

	if err := s.WriteReport(ctx, "Maison", [][]string{{"only"}}); err != nil {
		t.Fatalf("WriteReport() error = %v", err)
	}
	got, ok := s.Report("Maison")
	if !ok || len(got) != 1 {
		t.Errorf("report not replaced: %v", got)
	}

	s.WriteReport(ctx, "Atelier", nil)
	if titles := s.Titles(); len(titles) != 2 || titles[0] != "Atelier" {
		t.Errorf("Titles() = %v", titles)
	}

	if err := s.WriteReport(ctx, "", rows); err == nil {
		t.Error("empty title should be rejected")
	}
}
