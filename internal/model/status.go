package model

import (
	"fmt"
	"time"
)

const (
	StatusNew          = "new"
	StatusCachePending = "cache_pending"
	StatusInProgress   = "in_progress"
	StatusBlocked      = "blocked"
	StatusDone         = "done"
)

// Block reasons recorded on a blocked record. An external operator action is
// implied for the credential reasons; the run keeps moving to other items.
const (
	ReasonNeedsCacheSync     = "needs_cache_sync"
	ReasonOriginAuthExpired  = "origin_auth_expired"
	ReasonDownloadFailed     = "download_failed"
	ReasonContentUnavailable = "content_unavailable"
	ReasonProbeFailed        = "probe_failed"
	ReasonPublishAuthExpired = "publish_auth_expired"
)

var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusNew: true,
	},
	StatusNew: {
		StatusNew:          true,
		StatusCachePending: true,
		StatusInProgress:   true,
		StatusBlocked:      true,
		StatusDone:         true, // zero-part items complete without processing
	},
	StatusCachePending: {
		StatusCachePending: true,
		StatusInProgress:   true,
		StatusBlocked:      true,
		StatusDone:         true,
	},
	StatusInProgress: {
		StatusInProgress: true,
		StatusBlocked:    true,
		StatusDone:       true,
	},
	StatusBlocked: {
		StatusBlocked:    true,
		StatusInProgress: true,
		StatusDone:       true,
	},
	StatusDone: {
		StatusDone: true,
	},
}

func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Transition moves a record to toStatus, stamping the transition time.
// The reason is recorded for blocked states and cleared otherwise.
func Transition(rec *TrackingRecord, toStatus, reason string) error {
	from := rec.Status
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("invalid status transition: %q -> %q (item_id=%s)", from, toStatus, rec.ItemID)
	}
	rec.Status = toStatus
	rec.BlockReason = reason
	rec.LastTransitionAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}
