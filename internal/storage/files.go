package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DiskFileStore writes expense attachments below a root directory.
type DiskFileStore struct {
	root string
}

func NewDiskFileStore(root string) (*DiskFileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create files directory: %w", err)
	}
	return &DiskFileStore{root: root}, nil
}

func (d *DiskFileStore) Put(ctx context.Context, path string, r io.Reader) error {
	target, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create attachment directory: %w", err)
	}

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(target)
		return fmt.Errorf("write attachment: %w", err)
	}
	return f.Close()
}

// Open returns the stored attachment at path.
func (d *DiskFileStore) Open(path string) (io.ReadSeekCloser, error) {
	target, err := d.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Delete removes the attachment at path along with its directory once
// empty. A missing file is not an error.
func (d *DiskFileStore) Delete(ctx context.Context, path string) error {
	target, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove attachment: %w", err)
	}
	if dir := filepath.Dir(target); dir != filepath.Clean(d.root) {
		// Fails while other files remain
		os.Remove(dir)
	}
	return nil
}

func (d *DiskFileStore) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid attachment path %q", path)
	}
	return filepath.Join(d.root, clean), nil
}
