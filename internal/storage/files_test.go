package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiskFileStore(t *testing.T) {
	store, err := NewDiskFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := store.Put(context.Background(), "expenses/7/receipt.pdf", strings.NewReader("pdf")); err != nil {
		t.Fatalf("put: %v", err)
	}
	f, err := store.Open("expenses/7/receipt.pdf")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "pdf" {
		t.Errorf("content = %q", data)
	}

	if _, err := store.Open("expenses/7/missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	for _, p := range []string{"../escape", "/etc/passwd", "expenses/../../x"} {
		if err := store.Put(context.Background(), p, strings.NewReader("x")); err == nil {
			t.Errorf("Put(%q) should be rejected", p)
		}
		if err := store.Delete(context.Background(), p); err == nil {
			t.Errorf("Delete(%q) should be rejected", p)
		}
	}
}

func TestDiskFileStoreDelete(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskFileStore(root)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	for _, p := range []string{"expenses/3/a.pdf", "expenses/3/b.pdf"} {
		if err := store.Put(ctx, p, strings.NewReader("x")); err != nil {
			t.Fatalf("put %s: %v", p, err)
		}
	}

	if err := store.Delete(ctx, "expenses/3/a.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Open("expenses/3/a.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted file still opens: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "expenses", "3")); err != nil {
		t.Errorf("directory with remaining files removed: %v", err)
	}

	if err := store.Delete(ctx, "expenses/3/b.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "expenses", "3")); !os.IsNotExist(err) {
		t.Errorf("empty directory should be removed, stat err = %v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root removed: %v", err)
	}

	if err := store.Delete(ctx, "expenses/3/b.pdf"); err != nil {
		t.Errorf("deleting a missing file should succeed, got %v", err)
	}
}
