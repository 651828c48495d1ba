// Package pipeline drives one cron-style run end to end: refresh the
// catalog, warm the cache, then pick items and publish segments until a
// budget runs out. Every step persists its state before the next one
// starts, so a killed run resumes exactly where it stopped.
package pipeline

import (
	"shorts-pipeline/internal/model"
	"shorts-pipeline/internal/trackstore"
)

// NextItem picks the item the run should work on, skipping ids the
// caller has already attempted this run. Resume comes first: an item
// already in flight (in_progress, or blocked with a staged source) beats
// any fresh one. Fresh items are taken staged-first, so a run never
// prefers an item it would immediately have to block on. Within each
// pool the order is views descending, then id ascending.
func NextItem(st *trackstore.Store, skip map[string]bool) (model.TrackingRecord, bool) {
	ids := st.SortedIDs()

	pools := []func(model.TrackingRecord) bool{
		func(r model.TrackingRecord) bool {
			if r.Status == model.StatusInProgress {
				return true
			}
			return r.Status == model.StatusBlocked && r.CacheLocator != ""
		},
		func(r model.TrackingRecord) bool { return r.Status == model.StatusCachePending },
		func(r model.TrackingRecord) bool { return r.Status == model.StatusNew },
	}

	for _, eligible := range pools {
		for _, id := range ids {
			if skip[id] {
				continue
			}
			rec, ok := st.Get(id)
			if !ok || !eligible(rec) {
				continue
			}
			return rec, true
		}
	}
	return model.TrackingRecord{}, false
}

// WarmCandidates returns up to max items whose source still needs to be
// staged into the cache: fresh items, plus blocked items that lost (or
// never got) their staged copy. Order matches NextItem's.
func WarmCandidates(st *trackstore.Store, max int) []model.TrackingRecord {
	if max <= 0 {
		return nil
	}
	var out []model.TrackingRecord
	for _, id := range st.SortedIDs() {
		rec, ok := st.Get(id)
		if !ok {
			continue
		}
		needsStage := rec.Status == model.StatusNew ||
			(rec.Status == model.StatusBlocked && rec.CacheLocator == "")
		if !needsStage {
			continue
		}
		out = append(out, rec)
		if len(out) == max {
			break
		}
	}
	return out
}

// Outstanding reports whether any record still has work ahead of it.
// When it returns false the channel is fully published.
func Outstanding(st *trackstore.Store) bool {
	for _, rec := range st.Snapshot() {
		if rec.Status != model.StatusDone {
			return true
		}
	}
	return false
}
