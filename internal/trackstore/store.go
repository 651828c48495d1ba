package trackstore

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"shorts-pipeline/internal/model"
)

// trackingFile is the on-disk shape: a flat mapping keyed by item id plus
// a little channel metadata. Unknown top-level keys are preserved, same as
// unknown per-record keys.
type trackingFile struct {
	ChannelURL string                           `json:"channel_url"`
	LastScrape string                           `json:"last_scrape,omitempty"`
	Items      map[string]*model.TrackingRecord `json:"items"`

	extra map[string]json.RawMessage
}

var knownFileKeys = []string{"channel_url", "last_scrape", "items"}

func (f *trackingFile) UnmarshalJSON(data []byte) error {
	type plain struct {
		ChannelURL string                           `json:"channel_url"`
		LastScrape string                           `json:"last_scrape,omitempty"`
		Items      map[string]*model.TrackingRecord `json:"items"`
	}
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range knownFileKeys {
		delete(raw, k)
	}
	if len(raw) == 0 {
		raw = nil
	}
	f.ChannelURL = p.ChannelURL
	f.LastScrape = p.LastScrape
	f.Items = p.Items
	f.extra = raw
	return nil
}

func (f trackingFile) MarshalJSON() ([]byte, error) {
	type plain struct {
		ChannelURL string                           `json:"channel_url"`
		LastScrape string                           `json:"last_scrape,omitempty"`
		Items      map[string]*model.TrackingRecord `json:"items"`
	}
	base, err := json.Marshal(plain{f.ChannelURL, f.LastScrape, f.Items})
	if err != nil {
		return nil, err
	}
	if len(f.extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range f.extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Store owns the tracking file. All mutations go through it and every
// mutation persists before returning; other components only ever see
// snapshots. Concurrent runs against the same file are excluded by Lock,
// not by the store itself.
type Store struct {
	path string
	file trackingFile
}

// Open loads the tracking file at path. A missing or unparsable file yields
// an empty, valid store: starting over beats refusing to run, and the first
// persist rewrites the file.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("tracking file path is required")
	}
	s := &Store{
		path: path,
		file: trackingFile{Items: map[string]*model.TrackingRecord{}},
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s, nil
	}
	var f trackingFile
	if err := json.Unmarshal(data, &f); err != nil {
		return s, nil
	}
	if f.Items == nil {
		f.Items = map[string]*model.TrackingRecord{}
	}
	for id, rec := range f.Items {
		rec.ItemID = id
		if !model.IsKnownStatus(rec.Status) || rec.Status == "" {
			rec.Status = model.StatusNew
		}
		if rec.PartsUploaded == nil {
			rec.PartsUploaded = []int{}
		}
	}
	s.file = f
	return s, nil
}

func (s *Store) Path() string       { return s.path }
func (s *Store) ChannelURL() string { return s.file.ChannelURL }
func (s *Store) LastScrape() string { return s.file.LastScrape }

// Get returns a snapshot of one record.
func (s *Store) Get(itemID string) (model.TrackingRecord, bool) {
	rec, ok := s.file.Items[itemID]
	if !ok {
		return model.TrackingRecord{}, false
	}
	return rec.Clone(), true
}

// Snapshot returns deep copies of every record.
func (s *Store) Snapshot() map[string]model.TrackingRecord {
	out := make(map[string]model.TrackingRecord, len(s.file.Items))
	for id, rec := range s.file.Items {
		out[id] = rec.Clone()
	}
	return out
}

// RefreshCatalog upserts scraped items: unknown ids become new records,
// known ids only get their volatile metadata refreshed. Progress fields are
// never touched here. Returns the number of newly added records.
func (s *Store) RefreshCatalog(channelURL, scrapedAt string, items []model.CatalogItem) (int, error) {
	s.file.ChannelURL = channelURL
	s.file.LastScrape = scrapedAt
	added := 0
	for _, item := range items {
		if item.ItemID == "" {
			continue
		}
		if rec, ok := s.file.Items[item.ItemID]; ok {
			rec.Views = item.Views
			if item.PublishedAt != "" {
				rec.PublishedAt = item.PublishedAt
			}
			if rec.DurationSeconds == 0 {
				rec.DurationSeconds = item.DurationSeconds
			}
			continue
		}
		s.file.Items[item.ItemID] = model.NewRecord(item)
		added++
	}
	if err := s.Persist(); err != nil {
		return 0, err
	}
	return added, nil
}

// Update applies fn to one record and persists. The callback mutates the
// live record; any error aborts without persisting.
func (s *Store) Update(itemID string, fn func(*model.TrackingRecord) error) error {
	rec, ok := s.file.Items[itemID]
	if !ok {
		return fmt.Errorf("unknown item %q", itemID)
	}
	if err := fn(rec); err != nil {
		return err
	}
	return s.Persist()
}

// Persist writes the tracking file. A write failure is fatal to the run:
// continuing without durable progress would redo or lose work.
func (s *Store) Persist() error {
	if err := WriteJSON(s.path, s.file); err != nil {
		return fmt.Errorf("persist tracking file: %w", err)
	}
	return nil
}

// Counts returns the number of records per lifecycle status.
func (s *Store) Counts() map[string]int {
	counts := map[string]int{}
	for _, rec := range s.file.Items {
		counts[rec.Status]++
	}
	return counts
}

// SortedIDs returns item ids in deterministic order (views descending,
// then id ascending), the same ordering the work selector uses.
func (s *Store) SortedIDs() []string {
	ids := make([]string, 0, len(s.file.Items))
	for id := range s.file.Items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool {
		ra, rb := s.file.Items[ids[a]], s.file.Items[ids[b]]
		if ra.Views != rb.Views {
			return ra.Views > rb.Views
		}
		return ids[a] < ids[b]
	})
	return ids
}
