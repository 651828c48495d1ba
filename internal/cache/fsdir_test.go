package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirStore_StageFetchEvictRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewDirStore(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("new dir store: %v", err)
	}

	src := filepath.Join(t.TempDir(), "video.mp4")
	if err := os.WriteFile(src, []byte("fake media payload"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	locator, err := store.Stage(ctx, src)
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if !strings.HasPrefix(locator, "fsdir://") {
		t.Fatalf("unexpected locator %q", locator)
	}

	dest := filepath.Join(t.TempDir(), "fetched.mp4")
	if err := store.Fetch(ctx, locator, dest); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "fake media payload" {
		t.Fatalf("fetched content mismatch: %q err=%v", data, err)
	}

	if err := store.Evict(ctx, locator); err != nil {
		t.Fatalf("evict: %v", err)
	}
	if err := store.Fetch(ctx, locator, dest); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after evict, got %v", err)
	}

	// eviction is advisory: a second evict of the same blob succeeds
	if err := store.Evict(ctx, locator); err != nil {
		t.Fatalf("second evict: %v", err)
	}
}

func TestDirStore_RejectsForeignAndMalformedLocators(t *testing.T) {
	ctx := context.Background()
	store, err := NewDirStore(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("new dir store: %v", err)
	}

	for _, locator := range []string{
		"gridfs://0123456789abcdef01234567",
		"fsdir://../escape.mp4",
		"fsdir://",
	} {
		if err := store.Fetch(ctx, locator, filepath.Join(t.TempDir(), "out")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("locator %q: expected ErrNotFound, got %v", locator, err)
		}
	}
}
