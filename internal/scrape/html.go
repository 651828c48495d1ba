package scrape

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"shorts-pipeline/internal/model"
)

const listingUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func (c *Client) listFromHTML(ctx context.Context, listingURL string) ([]model.CatalogItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build listing request: %w", err)
	}
	req.Header.Set("User-Agent", listingUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", listingURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch listing %s: unexpected status %s", listingURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse listing HTML: %w", err)
	}
	return ExtractListing(doc, time.Now())
}

// ExtractListing pulls catalog items out of a channel listing document. The
// listing embeds its data as a JSON blob in a script tag; we locate the
// blob with goquery and walk it for video entries.
func ExtractListing(doc *goquery.Document, now time.Time) ([]model.CatalogItem, error) {
	var blob string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if idx := strings.Index(text, "ytInitialData"); idx >= 0 {
			if start := strings.Index(text[idx:], "{"); start >= 0 {
				blob = extractBalancedJSON(text[idx+start:])
				return false
			}
		}
		return true
	})
	if blob == "" {
		return nil, fmt.Errorf("listing data blob not found in document")
	}
	return parseListingJSON([]byte(blob), now)
}

// extractBalancedJSON returns the first balanced {...} object in s,
// tolerating braces inside string literals.
func extractBalancedJSON(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
