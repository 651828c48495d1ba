package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"shorts-pipeline/internal/cache"
	"shorts-pipeline/internal/config"
	"shorts-pipeline/internal/model"
	"shorts-pipeline/internal/notify"
	"shorts-pipeline/internal/origin"
	"shorts-pipeline/internal/plan"
	"shorts-pipeline/internal/publish"
	"shorts-pipeline/internal/trackstore"
)

// OriginFetcher downloads the source media from the credential-gated host.
type OriginFetcher interface {
	Fetch(ctx context.Context, sourceURL, itemID, destDir string) (string, error)
}

// SegmentRenderer converts an extracted segment into the publish format.
type SegmentRenderer interface {
	Transform(ctx context.Context, inputPath string, part int, title, outputPath string) error
}

// ProbeFunc returns the duration in seconds of a local media file.
type ProbeFunc func(path string) (float64, error)

// ExtractFunc cuts [start, end) out of inputPath into outputPath.
type ExtractFunc func(ctx context.Context, inputPath string, start, end float64, outputPath string) error

// ItemResult summarizes one ProcessItem call.
type ItemResult struct {
	ItemID    string
	Published int
	Completed bool
	Blocked   bool
	// StopRun means the failure is not specific to this item (rate
	// limit, expired publish credentials) and the run should end now.
	StopRun bool
}

// Executor advances a single item: source in hand, segments cut,
// rendered, published, progress persisted after every part. It never
// loops over items itself; the orchestrator owns that.
type Executor struct {
	Store     *trackstore.Store
	Cache     cache.Gateway
	Origin    OriginFetcher
	Renderer  SegmentRenderer
	Publisher publish.Publisher
	Notifier  notify.Notifier
	Probe     ProbeFunc
	Extract   ExtractFunc
	Plan      plan.Spec
	Cfg       config.Config
	Logf      func(format string, args ...any)
}

func (e *Executor) logf(format string, args ...any) {
	if e.Logf != nil {
		e.Logf(format, args...)
	}
}

func (e *Executor) stepTimeout() time.Duration {
	return time.Duration(e.Cfg.Run.StepTimeoutSeconds) * time.Second
}

// ProcessItem publishes up to budget segments of one item. It returns
// once the item completes, blocks, or the budget is spent; partial
// progress is already durable by then.
func (e *Executor) ProcessItem(ctx context.Context, itemID string, budget int) (ItemResult, error) {
	res := ItemResult{ItemID: itemID}
	rec, ok := e.Store.Get(itemID)
	if !ok {
		return res, fmt.Errorf("unknown item %q", itemID)
	}
	if rec.Status == model.StatusDone || budget <= 0 {
		return res, nil
	}

	localPath, blocked, err := e.acquireSource(ctx, rec)
	if err != nil {
		return res, err
	}
	if blocked {
		res.Blocked = true
		return res, nil
	}

	rec, err = e.prepare(localPath, rec)
	if err != nil {
		if berr := e.block(itemID, model.ReasonProbeFailed); berr != nil {
			return res, berr
		}
		e.logf("item %s: probe failed, blocked: %v", itemID, err)
		res.Blocked = true
		return res, nil
	}

	if rec.TotalParts == 0 || !rec.HasOutstanding() {
		// Too short to yield a single segment, or a previous run
		// crashed after the last publish: finalize now.
		if err := e.complete(ctx, itemID, localPath); err != nil {
			return res, err
		}
		res.Completed = true
		return res, nil
	}

	for res.Published < budget {
		rec, _ = e.Store.Get(itemID)
		part := rec.NextPart()
		if part > rec.TotalParts {
			break
		}

		published, stop, err := e.processPart(ctx, rec, localPath, part)
		if stop != nil {
			res.StopRun = true
			res.Blocked = stop.blocked
			return res, stop.err
		}
		if err != nil {
			return res, err
		}
		if published {
			res.Published++
		}
	}

	rec, _ = e.Store.Get(itemID)
	if !rec.HasOutstanding() {
		if err := e.complete(ctx, itemID, localPath); err != nil {
			return res, err
		}
		res.Completed = true
	}
	return res, nil
}

// acquireSource makes the source media available locally: a large-enough
// leftover download is reused, otherwise the staged copy is fetched. A
// cache miss falls back to the origin host and re-stages the result. An
// item with no staged copy at all is blocked for the warm phase instead
// of touching the origin here.
func (e *Executor) acquireSource(ctx context.Context, rec model.TrackingRecord) (string, bool, error) {
	localPath := filepath.Join(e.Cfg.Paths.Downloads, rec.ItemID+".mp4")
	if info, err := os.Stat(localPath); err == nil && info.Size() >= e.Cfg.Origin.MinSourceBytes {
		return localPath, false, nil
	}

	if rec.CacheLocator == "" {
		if err := e.block(rec.ItemID, model.ReasonNeedsCacheSync); err != nil {
			return "", false, err
		}
		e.logf("item %s: no staged source, blocked for cache sync", rec.ItemID)
		return "", true, nil
	}

	if err := os.MkdirAll(e.Cfg.Paths.Downloads, 0o755); err != nil {
		return "", false, fmt.Errorf("create downloads directory: %w", err)
	}
	fetchErr := e.Cache.Fetch(ctx, rec.CacheLocator, localPath)
	if fetchErr == nil {
		if info, err := os.Stat(localPath); err == nil && info.Size() >= e.Cfg.Origin.MinSourceBytes {
			return localPath, false, nil
		}
		fetchErr = fmt.Errorf("staged copy below %d bytes", e.Cfg.Origin.MinSourceBytes)
	}
	e.logf("item %s: cache fetch failed (%v), falling back to origin", rec.ItemID, fetchErr)

	// The staged copy is gone or unusable; forget the locator before
	// the origin attempt so a crash cannot leave us fetching it again.
	if err := e.Store.Update(rec.ItemID, func(r *model.TrackingRecord) error {
		r.CacheLocator = ""
		return nil
	}); err != nil {
		return "", false, err
	}

	originCtx, cancel := context.WithTimeout(ctx, time.Duration(e.Cfg.Origin.TimeoutSeconds)*time.Second)
	defer cancel()
	fetched, err := e.Origin.Fetch(originCtx, rec.SourceURL, rec.ItemID, e.Cfg.Paths.Downloads)
	if err != nil {
		reason := classifyOriginFailure(err)
		if berr := e.block(rec.ItemID, reason); berr != nil {
			return "", false, berr
		}
		e.logf("item %s: origin fetch failed, blocked (%s): %v", rec.ItemID, reason, err)
		e.notifyOriginFailure(reason, rec)
		return "", true, nil
	}
	if info, serr := os.Stat(fetched); serr != nil || info.Size() < e.Cfg.Origin.MinSourceBytes {
		if berr := e.block(rec.ItemID, model.ReasonDownloadFailed); berr != nil {
			return "", false, berr
		}
		e.logf("item %s: origin download too small, blocked", rec.ItemID)
		return "", true, nil
	}

	locator, stageErr := e.Cache.Stage(ctx, fetched)
	if stageErr != nil {
		// Processing can continue from the local copy; staging gets
		// another chance on the next warm phase.
		e.logf("item %s: re-stage after origin fallback failed: %v", rec.ItemID, stageErr)
		return fetched, false, nil
	}
	if err := e.Store.Update(rec.ItemID, func(r *model.TrackingRecord) error {
		r.CacheLocator = locator
		return nil
	}); err != nil {
		return "", false, err
	}
	return fetched, false, nil
}

// prepare moves the record to in_progress and fixes its part count from
// the actual media duration on first contact.
func (e *Executor) prepare(localPath string, rec model.TrackingRecord) (model.TrackingRecord, error) {
	var probed float64
	if rec.TotalParts == 0 {
		var err error
		probed, err = e.Probe(localPath)
		if err != nil {
			return rec, err
		}
	}
	err := e.Store.Update(rec.ItemID, func(r *model.TrackingRecord) error {
		if r.TotalParts == 0 {
			r.DurationSeconds = probed
			r.TotalParts = e.Plan.Count(probed)
		}
		return model.Transition(r, model.StatusInProgress, "")
	})
	if err != nil {
		return rec, err
	}
	out, _ := e.Store.Get(rec.ItemID)
	return out, nil
}

// stopError carries a run-ending publish failure out of processPart.
type stopError struct {
	err     error
	blocked bool
}

// processPart cuts, renders, and publishes a single segment, recording
// it before returning. Extract and render failures skip the segment for
// good; publish failures end the run.
func (e *Executor) processPart(ctx context.Context, rec model.TrackingRecord, localPath string, part int) (bool, *stopError, error) {
	start, end := e.Plan.Bounds(part, rec.DurationSeconds)
	workDir := filepath.Join(e.Cfg.Paths.Processed, rec.ItemID)
	cutPath := filepath.Join(workDir, fmt.Sprintf("segment_%03d.mp4", part))
	renderPath := filepath.Join(workDir, fmt.Sprintf("part_%03d.mp4", part))

	skip := func(stage string, cause error) error {
		e.logf("item %s part %d: %s failed, skipping segment: %v", rec.ItemID, part, stage, cause)
		return e.Store.Update(rec.ItemID, func(r *model.TrackingRecord) error {
			// empty ref marks the index as skipped while keeping
			// published refs aligned with recorded parts
			r.AddPart(part, "")
			return nil
		})
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout())
	err := e.Extract(stepCtx, localPath, start, end, cutPath)
	cancel()
	if err != nil {
		return false, nil, skip("extract", err)
	}

	stepCtx, cancel = context.WithTimeout(ctx, e.stepTimeout())
	err = e.Renderer.Transform(stepCtx, cutPath, part, rec.Title, renderPath)
	cancel()
	if err != nil {
		_ = os.Remove(cutPath)
		return false, nil, skip("render", err)
	}

	title := publish.BuildTitle(rec.Title, part, e.Cfg.Publish.TitleMaxLen, e.Cfg.Publish.TitleSuffix)
	meta := publish.Metadata{
		ItemID:      rec.ItemID,
		Part:        part,
		TotalParts:  rec.TotalParts,
		Title:       title,
		Description: publish.BuildDescription(e.Cfg.Publish.DescriptionTemplate, rec.Title, part, rec.TotalParts, rec.SourceURL),
		Tags:        e.Cfg.Publish.Tags,
		CategoryID:  e.Cfg.Publish.CategoryID,
		Privacy:     e.Cfg.Publish.Privacy,
		SourceURL:   rec.SourceURL,
	}

	stepCtx, cancel = context.WithTimeout(ctx, e.stepTimeout())
	ref, err := e.Publisher.Publish(stepCtx, renderPath, meta)
	cancel()
	if err != nil {
		stop := &stopError{err: err}
		if errors.Is(err, publish.ErrAuthExpired) {
			if berr := e.block(rec.ItemID, model.ReasonPublishAuthExpired); berr != nil {
				return false, nil, berr
			}
			stop.blocked = true
			e.Notifier.Notify(notify.EventCredentialsNeeded,
				fmt.Sprintf("publish credentials rejected while uploading %s part %d", rec.ItemID, part))
		}
		e.logf("item %s part %d: publish failed, ending run: %v", rec.ItemID, part, err)
		return false, stop, nil
	}

	if err := e.Store.Update(rec.ItemID, func(r *model.TrackingRecord) error {
		r.AddPart(part, ref)
		return nil
	}); err != nil {
		return false, nil, err
	}
	_ = os.Remove(cutPath)
	_ = os.Remove(renderPath)
	e.Notifier.Notify(notify.EventItemPublished,
		fmt.Sprintf("%s part %d/%d -> %s", rec.Title, part, rec.TotalParts, ref))
	return true, nil, nil
}

// complete finalizes a finished item: done status, staged copy evicted,
// local leftovers removed. Eviction runs at most once because this is
// the only transition into done and the locator is cleared with it.
func (e *Executor) complete(ctx context.Context, itemID, localPath string) error {
	var locator string
	var title string
	var total int
	err := e.Store.Update(itemID, func(r *model.TrackingRecord) error {
		locator = r.CacheLocator
		title = r.Title
		total = r.TotalParts
		r.CacheLocator = ""
		return model.Transition(r, model.StatusDone, "")
	})
	if err != nil {
		return err
	}
	if locator != "" {
		if err := e.Cache.Evict(ctx, locator); err != nil {
			e.logf("item %s: evict %s failed: %v", itemID, locator, err)
		}
	}
	if localPath != "" {
		_ = os.Remove(localPath)
	}
	_ = os.RemoveAll(filepath.Join(e.Cfg.Paths.Processed, itemID))
	e.Notifier.Notify(notify.EventItemComplete, fmt.Sprintf("%s (%d parts)", title, total))
	return nil
}

func (e *Executor) block(itemID, reason string) error {
	return e.Store.Update(itemID, func(r *model.TrackingRecord) error {
		if r.Status == model.StatusBlocked {
			r.BlockReason = reason
			return nil
		}
		return model.Transition(r, model.StatusBlocked, reason)
	})
}

func (e *Executor) notifyOriginFailure(reason string, rec model.TrackingRecord) {
	switch reason {
	case model.ReasonOriginAuthExpired:
		e.Notifier.Notify(notify.EventCredentialsNeeded,
			fmt.Sprintf("origin rejected cookies while fetching %s", rec.ItemID))
	case model.ReasonDownloadFailed:
		e.Notifier.Notify(notify.EventDownloadFailed,
			fmt.Sprintf("%s (%s)", rec.Title, rec.SourceURL))
	}
}

func classifyOriginFailure(err error) string {
	switch {
	case errors.Is(err, origin.ErrAuthExpired):
		return model.ReasonOriginAuthExpired
	case errors.Is(err, origin.ErrContentUnavailable):
		return model.ReasonContentUnavailable
	default:
		return model.ReasonDownloadFailed
	}
}
