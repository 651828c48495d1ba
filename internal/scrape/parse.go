package scrape

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"shorts-pipeline/internal/model"
)

// parseListingJSON walks the decoded listing blob and collects every
// videoRenderer node, whatever container it sits in. The blob's outer
// structure changes often; the renderer shape is the stable part.
func parseListingJSON(data []byte, now time.Time) ([]model.CatalogItem, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse listing data blob: %w", err)
	}
	var items []model.CatalogItem
	seen := map[string]bool{}
	collectRenderers(root, func(r map[string]any) {
		item, ok := itemFromRenderer(r, now)
		if !ok || seen[item.ItemID] {
			return
		}
		seen[item.ItemID] = true
		items = append(items, item)
	})
	return items, nil
}

func collectRenderers(node any, visit func(map[string]any)) {
	switch v := node.(type) {
	case map[string]any:
		if r, ok := v["videoRenderer"].(map[string]any); ok {
			visit(r)
		}
		for _, child := range v {
			collectRenderers(child, visit)
		}
	case []any:
		for _, child := range v {
			collectRenderers(child, visit)
		}
	}
}

func itemFromRenderer(r map[string]any, now time.Time) (model.CatalogItem, bool) {
	id, _ := r["videoId"].(string)
	if id == "" {
		return model.CatalogItem{}, false
	}
	item := model.CatalogItem{
		ItemID:    id,
		Title:     rendererTitle(r),
		SourceURL: "https://www.youtube.com/watch?v=" + id,
	}
	if text := rendererText(r, "viewCountText"); text != "" {
		item.Views = ParseViewCount(text)
	} else if text := rendererText(r, "shortViewCountText"); text != "" {
		item.Views = ParseViewCount(text)
	}
	if text := rendererText(r, "lengthText"); text != "" {
		item.DurationSeconds = ParseClock(text)
	}
	if text := rendererText(r, "publishedTimeText"); text != "" {
		if at, ok := ParseRelativeTime(text, now); ok {
			item.PublishedAt = at.UTC().Format(time.RFC3339)
		}
	}
	return item, true
}

func rendererTitle(r map[string]any) string {
	title, ok := r["title"].(map[string]any)
	if !ok {
		return ""
	}
	if runs, ok := title["runs"].([]any); ok && len(runs) > 0 {
		if run, ok := runs[0].(map[string]any); ok {
			if text, ok := run["text"].(string); ok {
				return text
			}
		}
	}
	if simple, ok := title["simpleText"].(string); ok {
		return simple
	}
	return ""
}

func rendererText(r map[string]any, key string) string {
	node, ok := r[key].(map[string]any)
	if !ok {
		return ""
	}
	if simple, ok := node["simpleText"].(string); ok {
		return simple
	}
	if runs, ok := node["runs"].([]any); ok && len(runs) > 0 {
		if run, ok := runs[0].(map[string]any); ok {
			if text, ok := run["text"].(string); ok {
				return text
			}
		}
	}
	return ""
}

var viewCountPattern = regexp.MustCompile(`(?i)([\d.,]+)\s*([KMB])?`)

// ParseViewCount handles both exact ("1,234,567 views") and abbreviated
// ("1.2M views") counts. Unparsable input yields 0; the count is only an
// ordering hint, never correctness-critical.
func ParseViewCount(text string) int64 {
	m := viewCountPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0
	}
	numText := strings.ReplaceAll(m[1], ",", "")
	value, err := strconv.ParseFloat(numText, 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(m[2]) {
	case "K":
		value *= 1e3
	case "M":
		value *= 1e6
	case "B":
		value *= 1e9
	}
	return int64(value)
}

// ParseClock converts "12:34" or "1:02:34" to seconds.
func ParseClock(text string) float64 {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	total := 0.0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0
		}
		total = total*60 + float64(n)
	}
	return total
}

var relativeTimePattern = regexp.MustCompile(`(?i)(\d+)\s*(second|minute|hour|day|week|month|year)s?\s*ago`)

// ParseRelativeTime resolves "2 years ago" style text against now. Months
// and years are approximate; the result is only used for ordering and the
// optional minimum-date filter.
func ParseRelativeTime(text string, now time.Time) (time.Time, bool) {
	m := relativeTimePattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	switch strings.ToLower(m[2]) {
	case "second":
		return now.Add(-time.Duration(n) * time.Second), true
	case "minute":
		return now.Add(-time.Duration(n) * time.Minute), true
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour), true
	case "day":
		return now.AddDate(0, 0, -n), true
	case "week":
		return now.AddDate(0, 0, -7*n), true
	case "month":
		return now.AddDate(0, -n, 0), true
	case "year":
		return now.AddDate(-n, 0, 0), true
	}
	return time.Time{}, false
}
