// Package storage holds the blob backends images and thumbnails are written
// to. Blob names are slash-separated paths relative to the backend root, e.g.
// uploads/<id>.png; the same names are recorded in the metadata store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Disk stores blobs under a root directory on the local filesystem.
type Disk struct {
	root string
}

// NewDisk returns a Disk rooted at root, creating it if needed.
func NewDisk(root string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Disk{root: root}, nil
}

func (d *Disk) path(name string) string {
	return filepath.Join(d.root, filepath.FromSlash(name))
}

// Write persists data under name, creating parent directories on demand.
// The contentType is ignored on disk; the extension carries the format.
func (d *Disk) Write(_ context.Context, name string, data []byte, _ string) error {
	full := d.path(name)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("create directory for %s: %w", name, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Open returns a reader over the named blob. A missing blob reports
// fs.ErrNotExist.
func (d *Disk) Open(_ context.Context, name string) (io.ReadSeekCloser, error) {
	f, err := os.Open(d.path(name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// Remove deletes the named blob. Removing a blob that does not exist is not
// an error, which keeps cleanup retries idempotent.
func (d *Disk) Remove(_ context.Context, name string) error {
	if err := os.Remove(d.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}
