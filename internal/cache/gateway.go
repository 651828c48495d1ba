// Package cache stages source media in a neutral blob store so that
// processing runs never need origin credentials. Locators are opaque
// scheme-prefixed strings; the backend may expire blobs on its own, so
// Evict is advisory and a Fetch must always be prepared for a miss.
package cache

import (
	"context"
	"errors"
)

var (
	ErrBackendUnavailable = errors.New("cache backend unavailable")
	ErrUploadFailed       = errors.New("cache upload failed")
	ErrNotFound           = errors.New("cache object not found")
	ErrTransferFailed     = errors.New("cache transfer failed")
)

type Gateway interface {
	// Stage uploads the file at localPath and returns its locator.
	Stage(ctx context.Context, localPath string) (string, error)
	// Fetch downloads the blob behind locator to localPath.
	Fetch(ctx context.Context, locator, localPath string) error
	// Evict removes the blob. Best effort: a missing blob is not an error.
	Evict(ctx context.Context, locator string) error
}
