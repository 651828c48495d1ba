package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"shorts-pipeline/internal/model"
	"shorts-pipeline/internal/notify"
	"shorts-pipeline/internal/origin"
	"shorts-pipeline/internal/trackstore"
)

// CatalogLister is the channel discovery step.
type CatalogLister interface {
	ListItems(ctx context.Context, channelURL string) ([]model.CatalogItem, error)
}

// RunResult is the summary of one orchestrated run.
type RunResult struct {
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	ItemsAdded     int
	ItemsStaged    int
	PartsPublished int
	ItemsCompleted int
	ItemsBlocked   int
	AllCaughtUp    bool
}

// Orchestrator owns a full run: lock, catalog refresh, cache warm-up,
// then the processing loop. Runs are designed to be scheduled blindly
// from cron; any two overlapping invocations exclude each other on the
// tracking lock.
type Orchestrator struct {
	Store    *trackstore.Store
	Catalog  CatalogLister
	Executor *Executor
	Notifier notify.Notifier
	Logf     func(format string, args ...any)
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Logf != nil {
		o.Logf(format, args...)
	}
}

// Run performs one pipeline run and returns its summary. Only lock
// contention and persistence failures are errors; per-item trouble is
// recorded on the items and the run keeps going.
func (o *Orchestrator) Run(ctx context.Context) (RunResult, error) {
	res := RunResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	cfg := o.Executor.Cfg

	lock, err := trackstore.AcquireLock(o.Store.Path())
	if err != nil {
		return res, err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			o.logf("run %s: release lock: %v", res.RunID, rerr)
		}
	}()
	o.logf("run %s: started for %s", res.RunID, cfg.ChannelURL)

	res.ItemsAdded = o.refreshCatalog(ctx, cfg.ChannelURL)

	staged, err := o.warmCache(ctx)
	if err != nil {
		return res, err
	}
	res.ItemsStaged = staged

	if err := o.processLoop(ctx, &res); err != nil {
		return res, err
	}

	if !Outstanding(o.Store) {
		res.AllCaughtUp = true
		o.Notifier.Notify(notify.EventAllCaughtUp,
			fmt.Sprintf("every item on %s is published", cfg.ChannelURL))
	}

	res.FinishedAt = time.Now().UTC()
	o.logf("run %s: finished (added=%d staged=%d published=%d completed=%d blocked=%d)",
		res.RunID, res.ItemsAdded, res.ItemsStaged, res.PartsPublished, res.ItemsCompleted, res.ItemsBlocked)
	return res, nil
}

// refreshCatalog merges the current channel listing into the tracking
// file. A failed scrape is only a warning: the run still has last run's
// catalog to work from.
func (o *Orchestrator) refreshCatalog(ctx context.Context, channelURL string) int {
	items, err := o.Catalog.ListItems(ctx, channelURL)
	if err != nil {
		o.logf("catalog refresh failed, continuing with known items: %v", err)
		return 0
	}
	added, err := o.Store.RefreshCatalog(channelURL, time.Now().UTC().Format(time.RFC3339), items)
	if err != nil {
		o.logf("catalog refresh persist failed: %v", err)
		return 0
	}
	o.logf("catalog refresh: %d items listed, %d new", len(items), added)
	return added
}

// warmCache stages sources for items that have none, up to the per-run
// sync budget. Expired origin credentials end the warm phase early; the
// remaining candidates would only repeat the same failure.
func (o *Orchestrator) warmCache(ctx context.Context) (int, error) {
	cfg := o.Executor.Cfg
	staged := 0
	for _, rec := range WarmCandidates(o.Store, cfg.Run.MaxSyncPerRun) {
		originCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Origin.TimeoutSeconds)*time.Second)
		localPath, err := o.Executor.Origin.Fetch(originCtx, rec.SourceURL, rec.ItemID, cfg.Paths.Downloads)
		cancel()
		if err != nil {
			reason := classifyOriginFailure(err)
			if berr := o.Executor.block(rec.ItemID, reason); berr != nil {
				return staged, berr
			}
			o.logf("warm %s: origin fetch failed, blocked (%s): %v", rec.ItemID, reason, err)
			o.Executor.notifyOriginFailure(reason, rec)
			if errors.Is(err, origin.ErrAuthExpired) {
				return staged, nil
			}
			continue
		}
		if info, serr := os.Stat(localPath); serr != nil || info.Size() < cfg.Origin.MinSourceBytes {
			if berr := o.Executor.block(rec.ItemID, model.ReasonDownloadFailed); berr != nil {
				return staged, berr
			}
			o.logf("warm %s: download below %d bytes, blocked", rec.ItemID, cfg.Origin.MinSourceBytes)
			continue
		}

		locator, err := o.Executor.Cache.Stage(ctx, localPath)
		if err != nil {
			// Leave the item as-is; staging retries next run and the
			// local copy is reusable meanwhile.
			o.logf("warm %s: stage failed: %v", rec.ItemID, err)
			continue
		}
		err = o.Store.Update(rec.ItemID, func(r *model.TrackingRecord) error {
			r.CacheLocator = locator
			if r.Status == model.StatusNew {
				return model.Transition(r, model.StatusCachePending, "")
			}
			return nil
		})
		if err != nil {
			return staged, err
		}
		_ = os.Remove(localPath)
		staged++
		o.logf("warm %s: staged as %s", rec.ItemID, locator)
	}
	return staged, nil
}

// processLoop spends the upload budget. A completed item chains into the
// next candidate up to the configured depth; a blocked item just moves
// the selector along.
func (o *Orchestrator) processLoop(ctx context.Context, res *RunResult) error {
	cfg := o.Executor.Cfg
	budget := cfg.Run.MaxUploadsPerRun
	depth := 0
	attempted := map[string]bool{}

	for budget > 0 {
		rec, ok := NextItem(o.Store, attempted)
		if !ok {
			break
		}
		attempted[rec.ItemID] = true

		ir, err := o.Executor.ProcessItem(ctx, rec.ItemID, budget)
		budget -= ir.Published
		res.PartsPublished += ir.Published
		if ir.Blocked {
			res.ItemsBlocked++
		}
		if ir.Completed {
			res.ItemsCompleted++
		}
		if err != nil {
			if ir.StopRun {
				o.logf("run ending early: %v", err)
				return nil
			}
			return err
		}
		if ir.StopRun {
			return nil
		}
		if ir.Blocked {
			continue
		}
		if ir.Completed {
			if depth >= cfg.Run.ChainDepth {
				break
			}
			depth++
			continue
		}
		// Budget spent mid-item; it stays in_progress for next run.
		break
	}
	return nil
}
