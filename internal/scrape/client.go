// Package scrape discovers the channel catalog. The primary mode shells
// out to yt-dlp's flat playlist listing; the html mode parses the channel
// listing page directly and needs no external binary. Either way the
// result is a finite, ordered, restartable item list, possibly shorter
// than the real catalog when the source paginates.
package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"shorts-pipeline/internal/model"
)

type Options struct {
	Mode         string // ytdlp | html
	CookiesPath  string
	MinPublished time.Time // zero means no filter
	Timeout      time.Duration
}

type Client struct {
	opts Options
}

func New(opts Options) *Client {
	if opts.Mode == "" {
		opts.Mode = "ytdlp"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Client{opts: opts}
}

// ListItems returns the channel catalog, newest first.
func (c *Client) ListItems(ctx context.Context, channelURL string) ([]model.CatalogItem, error) {
	if strings.TrimSpace(channelURL) == "" {
		return nil, fmt.Errorf("channel URL is required")
	}
	listing := normalizeListingURL(channelURL)

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var (
		items []model.CatalogItem
		err   error
	)
	switch c.opts.Mode {
	case "html":
		items, err = c.listFromHTML(ctx, listing)
	default:
		items, err = c.listFromFlatPlaylist(ctx, listing)
	}
	if err != nil {
		return nil, err
	}

	if !c.opts.MinPublished.IsZero() {
		filtered := items[:0]
		for _, item := range items {
			if item.PublishedAt == "" {
				filtered = append(filtered, item)
				continue
			}
			at, perr := time.Parse(time.RFC3339, item.PublishedAt)
			if perr != nil || !at.Before(c.opts.MinPublished) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	sort.SliceStable(items, func(a, b int) bool {
		return items[a].PublishedAt > items[b].PublishedAt
	})
	return items, nil
}

func normalizeListingURL(channelURL string) string {
	u := strings.TrimRight(strings.TrimSpace(channelURL), "/")
	if strings.HasSuffix(u, "/videos") {
		return u
	}
	return u + "/videos"
}

type flatPlaylist struct {
	Entries []flatEntry `json:"entries"`
}

type flatEntry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	WebpageURL string  `json:"webpage_url"`
	ViewCount  int64   `json:"view_count"`
	Duration   float64 `json:"duration"`
	Timestamp  int64   `json:"timestamp"`
	UploadDate string  `json:"upload_date"`
}

func (c *Client) listFromFlatPlaylist(ctx context.Context, listingURL string) ([]model.CatalogItem, error) {
	args := []string{"--flat-playlist", "-J"}
	if strings.TrimSpace(c.opts.CookiesPath) != "" {
		args = append(args, "--cookies", c.opts.CookiesPath)
	}
	args = append(args, listingURL)

	cmd := exec.CommandContext(ctx, "yt-dlp", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp flat playlist failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return ParseFlatPlaylist(stdout.Bytes())
}

// ParseFlatPlaylist converts yt-dlp's flat playlist JSON into catalog items.
func ParseFlatPlaylist(data []byte) ([]model.CatalogItem, error) {
	var pl flatPlaylist
	if err := json.Unmarshal(data, &pl); err != nil {
		return nil, fmt.Errorf("parse flat playlist JSON: %w", err)
	}
	items := make([]model.CatalogItem, 0, len(pl.Entries))
	for _, e := range pl.Entries {
		if e.ID == "" {
			continue
		}
		url := e.WebpageURL
		if url == "" {
			url = e.URL
		}
		published := ""
		if e.Timestamp > 0 {
			published = time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339)
		} else if len(e.UploadDate) == 8 {
			if at, err := time.Parse("20060102", e.UploadDate); err == nil {
				published = at.UTC().Format(time.RFC3339)
			}
		}
		items = append(items, model.CatalogItem{
			ItemID:          e.ID,
			Title:           e.Title,
			Views:           e.ViewCount,
			DurationSeconds: e.Duration,
			PublishedAt:     published,
			SourceURL:       url,
		})
	}
	return items, nil
}
