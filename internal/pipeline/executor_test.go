package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"shorts-pipeline/internal/cache"
	"shorts-pipeline/internal/config"
	"shorts-pipeline/internal/model"
	"shorts-pipeline/internal/notify"
	"shorts-pipeline/internal/origin"
	"shorts-pipeline/internal/plan"
	"shorts-pipeline/internal/publish"
	"shorts-pipeline/internal/trackstore"
)

type fakeCache struct {
	blobs      map[string][]byte
	nextID     int
	fetchCalls int
	fetchErr   error
	evicted    []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{blobs: map[string][]byte{}}
}

func (f *fakeCache) Stage(_ context.Context, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	f.nextID++
	locator := fmt.Sprintf("mem://%d", f.nextID)
	f.blobs[locator] = data
	return locator, nil
}

func (f *fakeCache) Fetch(_ context.Context, locator, localPath string) error {
	f.fetchCalls++
	if f.fetchErr != nil {
		return f.fetchErr
	}
	data, ok := f.blobs[locator]
	if !ok {
		return cache.ErrNotFound
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (f *fakeCache) Evict(_ context.Context, locator string) error {
	f.evicted = append(f.evicted, locator)
	delete(f.blobs, locator)
	return nil
}

type fakeOrigin struct {
	calls int
	err   error
}

func (f *fakeOrigin) Fetch(_ context.Context, _, itemID, destDir string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(destDir, itemID+".mp4")
	return path, os.WriteFile(path, []byte("source media from origin"), 0o644)
}

type fakeRenderer struct{ err error }

func (f *fakeRenderer) Transform(_ context.Context, inputPath string, part int, _, outputPath string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, []byte(fmt.Sprintf("render %d of %s", part, inputPath)), 0o644)
}

type fakePublisher struct {
	calls []publish.Metadata
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, _ string, meta publish.Metadata) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, meta)
	return fmt.Sprintf("ref-%s-%d", meta.ItemID, meta.Part), nil
}

type fakeNotifier struct{ events []notify.Event }

func (f *fakeNotifier) Notify(event notify.Event, _ string) {
	f.events = append(f.events, event)
}

func (f *fakeNotifier) saw(event notify.Event) bool {
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

type harness struct {
	store     *trackstore.Store
	cache     *fakeCache
	origin    *fakeOrigin
	publisher *fakePublisher
	notifier  *fakeNotifier
	exec      *Executor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.ChannelURL = "https://example.com/@channel"
	cfg.Paths.Downloads = filepath.Join(dir, "downloads")
	cfg.Paths.Processed = filepath.Join(dir, "processed")
	cfg.Paths.TrackingFile = filepath.Join(dir, "tracking.json")
	cfg.Origin.MinSourceBytes = 1

	store, err := trackstore.Open(cfg.Paths.TrackingFile)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	h := &harness{
		store:     store,
		cache:     newFakeCache(),
		origin:    &fakeOrigin{},
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
	}
	h.exec = &Executor{
		Store:     store,
		Cache:     h.cache,
		Origin:    h.origin,
		Renderer:  &fakeRenderer{},
		Publisher: h.publisher,
		Notifier:  h.notifier,
		Probe:     func(string) (float64, error) { return 300, nil },
		Extract: func(_ context.Context, _ string, start, end float64, outputPath string) error {
			return os.WriteFile(outputPath, []byte(fmt.Sprintf("cut %v-%v", start, end)), 0o644)
		},
		Plan: plan.Spec{SegmentSeconds: 60, MinTailSeconds: 10, MaxSegments: 10},
		Cfg:  cfg,
	}
	return h
}

// addItem seeds one tracked item and applies mutate to shape its state.
func (h *harness) addItem(t *testing.T, id string, views int64, mutate func(*model.TrackingRecord)) {
	t.Helper()
	_, err := h.store.RefreshCatalog(h.exec.Cfg.ChannelURL, "2026-08-30T00:00:00Z", []model.CatalogItem{{
		ItemID:    id,
		Title:     "Video " + id,
		Views:     views,
		SourceURL: "https://example.com/watch?v=" + id,
	}})
	if err != nil {
		t.Fatalf("seed item %s: %v", id, err)
	}
	if mutate != nil {
		if err := h.store.Update(id, func(r *model.TrackingRecord) error {
			mutate(r)
			return nil
		}); err != nil {
			t.Fatalf("mutate item %s: %v", id, err)
		}
	}
}

// stage puts source bytes for an item into the fake cache and records
// the locator on the item.
func (h *harness) stage(t *testing.T, id string) string {
	t.Helper()
	h.cache.nextID++
	locator := fmt.Sprintf("mem://%d", h.cache.nextID)
	h.cache.blobs[locator] = []byte("staged source media for " + id)
	if err := h.store.Update(id, func(r *model.TrackingRecord) error {
		r.CacheLocator = locator
		if r.Status == model.StatusNew {
			return model.Transition(r, model.StatusCachePending, "")
		}
		return nil
	}); err != nil {
		t.Fatalf("stage item %s: %v", id, err)
	}
	return locator
}

func TestProcessItem_ResumesFromRecordedParts(t *testing.T) {
	h := newHarness(t)
	h.addItem(t, "v1", 100, func(r *model.TrackingRecord) {
		r.DurationSeconds = 300
		r.TotalParts = 5
		r.PartsUploaded = []int{1, 2}
		_ = model.Transition(r, model.StatusInProgress, "")
	})
	h.stage(t, "v1")

	res, err := h.exec.ProcessItem(context.Background(), "v1", 1)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Published != 1 || res.Completed {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(h.publisher.calls) != 1 || h.publisher.calls[0].Part != 3 {
		t.Fatalf("expected exactly part 3 published, got %+v", h.publisher.calls)
	}
	rec, _ := h.store.Get("v1")
	if rec.Status != model.StatusInProgress {
		t.Fatalf("expected in_progress, got %q", rec.Status)
	}
	want := []int{1, 2, 3}
	if len(rec.PartsUploaded) != len(want) {
		t.Fatalf("unexpected parts %v", rec.PartsUploaded)
	}
	for i, p := range want {
		if rec.PartsUploaded[i] != p {
			t.Fatalf("unexpected parts %v", rec.PartsUploaded)
		}
	}
}

func TestProcessItem_CompletionEvictsOnce(t *testing.T) {
	h := newHarness(t)
	h.addItem(t, "v1", 100, func(r *model.TrackingRecord) {
		r.DurationSeconds = 300
		r.TotalParts = 5
		r.PartsUploaded = []int{1, 2, 3, 4}
		_ = model.Transition(r, model.StatusInProgress, "")
	})
	locator := h.stage(t, "v1")

	res, err := h.exec.ProcessItem(context.Background(), "v1", 5)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Completed || res.Published != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	rec, _ := h.store.Get("v1")
	if rec.Status != model.StatusDone {
		t.Fatalf("expected done, got %q", rec.Status)
	}
	if rec.CacheLocator != "" {
		t.Fatalf("locator not cleared: %q", rec.CacheLocator)
	}
	if len(h.cache.evicted) != 1 || h.cache.evicted[0] != locator {
		t.Fatalf("expected one eviction of %s, got %v", locator, h.cache.evicted)
	}
	if !h.notifier.saw(notify.EventItemComplete) {
		t.Fatalf("missing completion notification, got %v", h.notifier.events)
	}

	// A second call must not publish or evict again.
	res, err = h.exec.ProcessItem(context.Background(), "v1", 5)
	if err != nil || res.Published != 0 {
		t.Fatalf("done item reprocessed: res=%+v err=%v", res, err)
	}
	if len(h.cache.evicted) != 1 {
		t.Fatalf("evicted twice: %v", h.cache.evicted)
	}
}

func TestProcessItem_AlreadyPublishedPartsAreNotRepublished(t *testing.T) {
	h := newHarness(t)
	h.addItem(t, "v1", 100, func(r *model.TrackingRecord) {
		r.DurationSeconds = 300
		r.TotalParts = 5
		r.PartsUploaded = []int{1, 2, 3, 4, 5}
		_ = model.Transition(r, model.StatusInProgress, "")
	})
	h.stage(t, "v1")

	res, err := h.exec.ProcessItem(context.Background(), "v1", 10)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Completed || res.Published != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(h.publisher.calls) != 0 {
		t.Fatalf("republished parts: %+v", h.publisher.calls)
	}
}

func TestProcessItem_BlocksWithoutStagedSource(t *testing.T) {
	h := newHarness(t)
	h.addItem(t, "v1", 100, nil)

	res, err := h.exec.ProcessItem(context.Background(), "v1", 3)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Blocked {
		t.Fatalf("unexpected result %+v", res)
	}
	rec, _ := h.store.Get("v1")
	if rec.Status != model.StatusBlocked || rec.BlockReason != model.ReasonNeedsCacheSync {
		t.Fatalf("expected needs_cache_sync block, got %q/%q", rec.Status, rec.BlockReason)
	}
	if h.origin.calls != 0 {
		t.Fatalf("origin contacted during processing without a cache miss")
	}
}

func TestProcessItem_FetchesFromCacheBeforeOrigin(t *testing.T) {
	h := newHarness(t)
	h.addItem(t, "v1", 100, nil)
	h.stage(t, "v1")

	if _, err := h.exec.ProcessItem(context.Background(), "v1", 1); err != nil {
		t.Fatalf("process: %v", err)
	}
	if h.cache.fetchCalls != 1 {
		t.Fatalf("expected one cache fetch, got %d", h.cache.fetchCalls)
	}
	if h.origin.calls != 0 {
		t.Fatalf("origin contacted despite warm cache")
	}
}

func TestProcessItem_CacheMissFallsBackToOriginAndRestages(t *testing.T) {
	h := newHarness(t)
	h.addItem(t, "v1", 100, func(r *model.TrackingRecord) {
		r.CacheLocator = "mem://gone"
		_ = model.Transition(r, model.StatusCachePending, "")
	})

	res, err := h.exec.ProcessItem(context.Background(), "v1", 1)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Blocked || res.Published != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.origin.calls != 1 {
		t.Fatalf("expected one origin fetch, got %d", h.origin.calls)
	}
	rec, _ := h.store.Get("v1")
	if rec.CacheLocator == "" || rec.CacheLocator == "mem://gone" {
		t.Fatalf("expected a fresh locator after re-stage, got %q", rec.CacheLocator)
	}
	if _, ok := h.cache.blobs[rec.CacheLocator]; !ok {
		t.Fatalf("re-staged blob missing for %q", rec.CacheLocator)
	}
}

func TestProcessItem_OriginAuthExpiredBlocksAndNotifies(t *testing.T) {
	h := newHarness(t)
	h.origin.err = fmt.Errorf("%w: sign in to confirm", origin.ErrAuthExpired)
	h.addItem(t, "v1", 100, func(r *model.TrackingRecord) {
		r.CacheLocator = "mem://gone"
		_ = model.Transition(r, model.StatusCachePending, "")
	})

	res, err := h.exec.ProcessItem(context.Background(), "v1", 1)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Blocked {
		t.Fatalf("unexpected result %+v", res)
	}
	rec, _ := h.store.Get("v1")
	if rec.BlockReason != model.ReasonOriginAuthExpired {
		t.Fatalf("unexpected reason %q", rec.BlockReason)
	}
	if !h.notifier.saw(notify.EventCredentialsNeeded) {
		t.Fatalf("missing credentials notification, got %v", h.notifier.events)
	}
}

func TestProcessItem_PublishFailureStopsRun(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = fmt.Errorf("%w: 429", publish.ErrRateLimited)
	h.addItem(t, "v1", 100, nil)
	h.stage(t, "v1")

	res, err := h.exec.ProcessItem(context.Background(), "v1", 3)
	if !res.StopRun {
		t.Fatalf("expected StopRun, got %+v", res)
	}
	if !errors.Is(err, publish.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	rec, _ := h.store.Get("v1")
	if rec.Status != model.StatusInProgress {
		t.Fatalf("expected item left in_progress, got %q", rec.Status)
	}
	if len(rec.PartsUploaded) != 0 {
		t.Fatalf("failed publish recorded as uploaded: %v", rec.PartsUploaded)
	}
}

func TestProcessItem_PublishAuthExpiredBlocksItem(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = fmt.Errorf("%w: invalid_grant", publish.ErrAuthExpired)
	h.addItem(t, "v1", 100, nil)
	h.stage(t, "v1")

	res, err := h.exec.ProcessItem(context.Background(), "v1", 3)
	if !res.StopRun || !res.Blocked {
		t.Fatalf("unexpected result %+v", res)
	}
	if !errors.Is(err, publish.ErrAuthExpired) {
		t.Fatalf("expected auth error, got %v", err)
	}
	rec, _ := h.store.Get("v1")
	if rec.Status != model.StatusBlocked || rec.BlockReason != model.ReasonPublishAuthExpired {
		t.Fatalf("expected publish_auth_expired block, got %q/%q", rec.Status, rec.BlockReason)
	}
	if !h.notifier.saw(notify.EventCredentialsNeeded) {
		t.Fatalf("missing credentials notification, got %v", h.notifier.events)
	}
}

func TestProcessItem_ExtractFailureSkipsSegmentForGood(t *testing.T) {
	h := newHarness(t)
	failedOnce := false
	h.exec.Extract = func(_ context.Context, _ string, start, _ float64, outputPath string) error {
		if start == 0 && !failedOnce {
			failedOnce = true
			return fmt.Errorf("corrupt keyframes")
		}
		return os.WriteFile(outputPath, []byte("cut"), 0o644)
	}
	h.addItem(t, "v1", 100, func(r *model.TrackingRecord) {
		r.DurationSeconds = 120
		r.TotalParts = 2
		_ = model.Transition(r, model.StatusInProgress, "")
	})
	h.stage(t, "v1")

	res, err := h.exec.ProcessItem(context.Background(), "v1", 5)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Completed || res.Published != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(h.publisher.calls) != 1 || h.publisher.calls[0].Part != 2 {
		t.Fatalf("expected only part 2 published, got %+v", h.publisher.calls)
	}
	rec, _ := h.store.Get("v1")
	if len(rec.PublishedRefs) != len(rec.PartsUploaded) {
		t.Fatalf("refs not aligned with parts: %v vs %v", rec.PublishedRefs, rec.PartsUploaded)
	}
	if rec.PublishedRefs[0] != "" || rec.PublishedRefs[1] != "ref-v1-2" {
		t.Fatalf("expected empty ref for the skipped index: %v", rec.PublishedRefs)
	}
}

func TestProcessItem_ProbeSetsPartCount(t *testing.T) {
	h := newHarness(t)
	h.exec.Probe = func(string) (float64, error) { return 125, nil }
	h.addItem(t, "v1", 100, nil)
	h.stage(t, "v1")

	res, err := h.exec.ProcessItem(context.Background(), "v1", 10)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Completed || res.Published != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	rec, _ := h.store.Get("v1")
	if rec.TotalParts != 2 || rec.DurationSeconds != 125 {
		t.Fatalf("unexpected plan fields: total=%d duration=%v", rec.TotalParts, rec.DurationSeconds)
	}
}

func TestProcessItem_TooShortCompletesWithoutPublishing(t *testing.T) {
	h := newHarness(t)
	h.exec.Probe = func(string) (float64, error) { return 5, nil }
	h.addItem(t, "v1", 100, nil)
	h.stage(t, "v1")

	res, err := h.exec.ProcessItem(context.Background(), "v1", 10)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Completed || res.Published != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	rec, _ := h.store.Get("v1")
	if rec.Status != model.StatusDone {
		t.Fatalf("expected done, got %q", rec.Status)
	}
	if len(h.publisher.calls) != 0 {
		t.Fatalf("published segments of a too-short item: %+v", h.publisher.calls)
	}
}
