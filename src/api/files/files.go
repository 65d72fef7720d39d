// Package files persists attachment bytes. The store only records metadata;
// whether the backing bytes survive is this collaborator's problem.
package files

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/meridian-apps/casecomms/src/api/apperr"
)

type Storage interface {
	// Store writes the reader's bytes and returns an opaque storage path.
	Store(ctx context.Context, name string, r io.Reader) (path string, size int64, err error)
	// Open streams previously stored bytes. Returns ErrNotFound when the
	// bytes are gone even though metadata still references them.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Remove discards stored bytes. Removing an absent path is not an error;
	// callers use it to clean up after a failed metadata write.
	Remove(ctx context.Context, path string) error
}

// Disk stores files under a single directory with uuid-derived names; the
// client-supplied filename survives only as the extension.
type Disk struct {
	root string
}

func NewDisk(root string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Disk{root: root}, nil
}

func (d *Disk) Store(_ context.Context, name string, r io.Reader) (string, int64, error) {
	key := uuid.NewString() + filepath.Ext(filepath.Base(name))
	f, err := os.Create(filepath.Join(d.root, key))
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(f.Name())
		return "", 0, err
	}
	return key, n, nil
}

func (d *Disk) Remove(_ context.Context, path string) error {
	if filepath.Base(path) != path {
		return nil
	}
	err := os.Remove(filepath.Join(d.root, path))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (d *Disk) Open(_ context.Context, path string) (io.ReadCloser, error) {
	// Reject anything that could escape the upload root.
	if filepath.Base(path) != path {
		return nil, apperr.ErrNotFound
	}
	f, err := os.Open(filepath.Join(d.root, path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}
