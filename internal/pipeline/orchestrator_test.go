package pipeline

import (
	"context"
	"fmt"
	"testing"

	"shorts-pipeline/internal/model"
	"shorts-pipeline/internal/notify"
	"shorts-pipeline/internal/trackstore"
)

type fakeCatalog struct {
	items []model.CatalogItem
	err   error
}

func (f *fakeCatalog) ListItems(context.Context, string) ([]model.CatalogItem, error) {
	return f.items, f.err
}

func newOrchestrator(h *harness, catalog *fakeCatalog) *Orchestrator {
	return &Orchestrator{
		Store:    h.store,
		Catalog:  catalog,
		Executor: h.exec,
		Notifier: h.notifier,
	}
}

func TestRun_RefreshNeverClobbersProgress(t *testing.T) {
	h := newHarness(t)
	h.addItem(t, "v1", 100, func(r *model.TrackingRecord) {
		r.DurationSeconds = 300
		r.TotalParts = 5
		r.PartsUploaded = []int{1, 2, 3, 4, 5}
		_ = model.Transition(r, model.StatusDone, "")
	})

	catalog := &fakeCatalog{items: []model.CatalogItem{{
		ItemID:    "v1",
		Title:     "Video v1",
		Views:     7777,
		SourceURL: "https://example.com/watch?v=v1",
	}}}
	res, err := newOrchestrator(h, catalog).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	rec, _ := h.store.Get("v1")
	if rec.Status != model.StatusDone {
		t.Fatalf("refresh changed status to %q", rec.Status)
	}
	if len(rec.PartsUploaded) != 5 || rec.TotalParts != 5 {
		t.Fatalf("refresh touched progress: parts=%v total=%d", rec.PartsUploaded, rec.TotalParts)
	}
	if rec.Views != 7777 {
		t.Fatalf("refresh did not update views: %d", rec.Views)
	}
	if !res.AllCaughtUp || !h.notifier.saw(notify.EventAllCaughtUp) {
		t.Fatalf("expected all-caught-up, got %+v events=%v", res, h.notifier.events)
	}
}

func TestRun_WarmsThenProcessesNewItem(t *testing.T) {
	h := newHarness(t)
	catalog := &fakeCatalog{items: []model.CatalogItem{{
		ItemID:    "v1",
		Title:     "Video v1",
		Views:     100,
		SourceURL: "https://example.com/watch?v=v1",
	}}}
	h.exec.Cfg.Run.MaxUploadsPerRun = 3

	res, err := newOrchestrator(h, catalog).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ItemsAdded != 1 || res.ItemsStaged != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.PartsPublished != 3 {
		t.Fatalf("expected the full upload budget spent, got %+v", res)
	}

	rec, _ := h.store.Get("v1")
	if rec.Status != model.StatusInProgress {
		t.Fatalf("expected in_progress after partial run, got %q", rec.Status)
	}
	if rec.CacheLocator == "" {
		t.Fatalf("warm phase did not record a locator")
	}
	if rec.NextPart() != 4 {
		t.Fatalf("expected resume point 4, got %d (parts=%v)", rec.NextPart(), rec.PartsUploaded)
	}
}

func TestRun_ChainDepthBoundsCompletions(t *testing.T) {
	run := func(t *testing.T, chainDepth int) (*harness, RunResult) {
		h := newHarness(t)
		h.exec.Probe = func(string) (float64, error) { return 60, nil }
		h.exec.Cfg.Run.MaxUploadsPerRun = 10
		h.exec.Cfg.Run.ChainDepth = chainDepth
		for _, id := range []string{"v1", "v2", "v3"} {
			h.addItem(t, id, 100, nil)
			h.stage(t, id)
		}
		res, err := newOrchestrator(h, &fakeCatalog{}).Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return h, res
	}

	if _, res := run(t, 0); res.ItemsCompleted != 1 {
		t.Fatalf("chain depth 0: expected 1 completion, got %+v", res)
	}
	if _, res := run(t, 2); res.ItemsCompleted != 3 {
		t.Fatalf("chain depth 2: expected 3 completions, got %+v", res)
	}
}

func TestRun_ScrapeFailureStillProcessesKnownItems(t *testing.T) {
	h := newHarness(t)
	h.addItem(t, "v1", 100, nil)
	h.stage(t, "v1")
	h.exec.Cfg.Run.MaxUploadsPerRun = 1

	catalog := &fakeCatalog{err: fmt.Errorf("listing page unreachable")}
	res, err := newOrchestrator(h, catalog).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.PartsPublished != 1 {
		t.Fatalf("expected processing to continue after scrape failure, got %+v", res)
	}
}

func TestRun_BlockedItemDoesNotStallOthers(t *testing.T) {
	h := newHarness(t)
	h.exec.Probe = func(string) (float64, error) { return 60, nil }
	h.exec.Cfg.Run.MaxUploadsPerRun = 5
	// v-high has no staged source and blocks; v-low should still run.
	h.addItem(t, "v-high", 900, func(r *model.TrackingRecord) {
		_ = model.Transition(r, model.StatusCachePending, "")
	})
	h.addItem(t, "v-low", 10, nil)
	h.stage(t, "v-low")
	h.origin.err = fmt.Errorf("offline")

	res, err := newOrchestrator(h, &fakeCatalog{}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.PartsPublished != 1 || res.ItemsCompleted != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	rec, _ := h.store.Get("v-low")
	if rec.Status != model.StatusDone {
		t.Fatalf("expected v-low done, got %q", rec.Status)
	}
}

func TestRun_FailsWhenLockHeld(t *testing.T) {
	h := newHarness(t)
	lock, err := trackstore.AcquireLock(h.store.Path())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer func() { _ = lock.Release() }()

	if _, err := newOrchestrator(h, &fakeCatalog{}).Run(context.Background()); err == nil {
		t.Fatalf("expected lock contention error")
	}
}
