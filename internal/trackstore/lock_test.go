package trackstore

import (
	"path/filepath"
	"testing"
)

func TestAcquireLock_BlocksConcurrentAcquire(t *testing.T) {
	trackingPath := filepath.Join(t.TempDir(), "tracking.json")

	lock, err := AcquireLock(trackingPath)
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	if _, err := AcquireLock(trackingPath); err == nil {
		t.Fatalf("expected second acquire to fail")
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("release lock: %v", err)
	}

	lock2, err := AcquireLock(trackingPath)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := lock2.Release(); err != nil {
		t.Fatalf("release second lock: %v", err)
	}
}
