package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const fsdirScheme = "fsdir://"

// DirStore is the default Gateway: a directory on a mounted volume
// (network share, runner cache, anything path-addressable). It is also the
// backend the tests run against.
type DirStore struct {
	root string
}

func NewDirStore(root string) (*DirStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%w: cache directory is required", ErrBackendUnavailable)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create cache directory %s: %v", ErrBackendUnavailable, root, err)
	}
	return &DirStore{root: root}, nil
}

func (d *DirStore) Stage(ctx context.Context, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	name := uuid.NewString() + filepath.Ext(localPath)
	dest := filepath.Join(d.root, name)
	if err := copyFile(localPath, dest); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return fsdirScheme + name, nil
}

func (d *DirStore) Fetch(ctx context.Context, locator, localPath string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	name, err := d.objectName(locator)
	if err != nil {
		return err
	}
	src := filepath.Join(d.root, name)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, locator)
		}
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := copyFile(src, localPath); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

func (d *DirStore) Evict(ctx context.Context, locator string) error {
	name, err := d.objectName(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(d.root, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("evict %s: %w", locator, err)
	}
	return nil
}

func (d *DirStore) objectName(locator string) (string, error) {
	if !strings.HasPrefix(locator, fsdirScheme) {
		return "", fmt.Errorf("%w: locator %q is not a directory-store locator", ErrNotFound, locator)
	}
	name := strings.TrimPrefix(locator, fsdirScheme)
	// reject anything that could escape the cache root
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: malformed locator %q", ErrNotFound, locator)
	}
	return name, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".cache-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
