package model

import "encoding/json"

// CatalogItem is one discoverable video on the source channel, as returned
// by a catalog refresh. It carries no progress state.
type CatalogItem struct {
	ItemID          string
	Title           string
	Views           int64
	DurationSeconds float64
	PublishedAt     string // RFC3339, empty when the source did not expose it
	SourceURL       string
}

// TrackingRecord is the resumable per-item state, one per CatalogItem.
// PartsUploaded is the single source of truth for the resume point:
// the next part to process is max(PartsUploaded)+1.
type TrackingRecord struct {
	ItemID           string   `json:"-"`
	Title            string   `json:"title"`
	Views            int64    `json:"views"`
	DurationSeconds  float64  `json:"duration_seconds,omitempty"`
	PublishedAt      string   `json:"published_at,omitempty"`
	SourceURL        string   `json:"source_url"`
	Status           string   `json:"status"`
	BlockReason      string   `json:"block_reason,omitempty"`
	CacheLocator     string   `json:"cache_locator,omitempty"`
	PartsUploaded    []int    `json:"parts_uploaded"`
	PublishedRefs    []string `json:"published_refs,omitempty"`
	TotalParts       int      `json:"total_parts"`
	LastTransitionAt string   `json:"last_transition_at,omitempty"`

	// Extra holds keys we do not know about, written back verbatim so
	// manual edits to the tracking file survive a rewrite.
	Extra map[string]json.RawMessage `json:"-"`
}

var knownRecordKeys = []string{
	"title", "views", "duration_seconds", "published_at", "source_url",
	"status", "block_reason", "cache_locator", "parts_uploaded",
	"published_refs", "total_parts", "last_transition_at",
}

func (r *TrackingRecord) UnmarshalJSON(data []byte) error {
	type plain TrackingRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range knownRecordKeys {
		delete(raw, k)
	}
	if len(raw) == 0 {
		raw = nil
	}
	p.Extra = raw
	*r = TrackingRecord(p)
	return nil
}

func (r TrackingRecord) MarshalJSON() ([]byte, error) {
	type plain TrackingRecord
	base, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// NextPart returns the next outstanding 1-based part index.
func (r TrackingRecord) NextPart() int {
	next := 1
	for _, p := range r.PartsUploaded {
		if p >= next {
			next = p + 1
		}
	}
	return next
}

// HasOutstanding reports whether the record still has work left. A record
// whose part count has not been computed yet (TotalParts == 0 and not done)
// counts as outstanding.
func (r TrackingRecord) HasOutstanding() bool {
	if r.Status == StatusDone {
		return false
	}
	if r.TotalParts == 0 {
		return true
	}
	return r.NextPart() <= r.TotalParts
}

// AddPart records a completed part index together with the reference the
// publish step returned. PublishedRefs stays index-aligned with
// PartsUploaded: both are inserted at the same sorted position, and a
// segment that was skipped rather than published carries an empty ref.
// Duplicate indexes are ignored so a retried publish can never
// double-count; it reports whether the part was actually added.
func (r *TrackingRecord) AddPart(part int, ref string) bool {
	for _, p := range r.PartsUploaded {
		if p == part {
			return false
		}
	}
	i := len(r.PartsUploaded)
	for i > 0 && r.PartsUploaded[i-1] > part {
		i--
	}
	r.PartsUploaded = append(r.PartsUploaded, 0)
	copy(r.PartsUploaded[i+1:], r.PartsUploaded[i:])
	r.PartsUploaded[i] = part
	r.PublishedRefs = append(r.PublishedRefs, "")
	copy(r.PublishedRefs[i+1:], r.PublishedRefs[i:])
	r.PublishedRefs[i] = ref
	return true
}

// Clone returns a deep copy safe to hand out as a snapshot.
func (r TrackingRecord) Clone() TrackingRecord {
	c := r
	if r.PartsUploaded != nil {
		c.PartsUploaded = append([]int(nil), r.PartsUploaded...)
	}
	if r.PublishedRefs != nil {
		c.PublishedRefs = append([]string(nil), r.PublishedRefs...)
	}
	if r.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// NewRecord builds the initial tracking record for a freshly discovered item.
func NewRecord(item CatalogItem) *TrackingRecord {
	return &TrackingRecord{
		ItemID:          item.ItemID,
		Title:           item.Title,
		Views:           item.Views,
		DurationSeconds: item.DurationSeconds,
		PublishedAt:     item.PublishedAt,
		SourceURL:       item.SourceURL,
		Status:          StatusNew,
		PartsUploaded:   []int{},
	}
}
