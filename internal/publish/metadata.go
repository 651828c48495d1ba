package publish

import (
	"fmt"
	"strings"
)

// BuildTitle combines the item title with the part suffix, truncating the
// title (never the suffix) to stay within maxLen. The optional extra
// suffix (hashtags and the like) is appended after the limit is applied.
// The limit counts runes, not bytes: titles are often not ASCII and a
// byte slice could cut a rune in half.
func BuildTitle(title string, part, maxLen int, extra string) string {
	suffix := fmt.Sprintf(" - Part %d", part)
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if maxLen > 0 && len(runes)+len(suffix) > maxLen {
		keep := maxLen - len(suffix) - 3
		if keep < 1 {
			keep = 1
		}
		title = strings.TrimSpace(string(runes[:keep])) + "..."
	}
	out := title + suffix
	if extra = strings.TrimSpace(extra); extra != "" {
		out += " " + extra
	}
	return out
}

// BuildDescription expands the {title}/{part}/{total}/{url} placeholders.
func BuildDescription(template, title string, part, total int, url string) string {
	r := strings.NewReplacer(
		"{title}", title,
		"{part}", fmt.Sprintf("%d", part),
		"{total}", fmt.Sprintf("%d", total),
		"{url}", url,
	)
	return r.Replace(template)
}
