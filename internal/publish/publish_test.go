package publish

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBuildTitle(t *testing.T) {
	got := BuildTitle("Normal Title", 2, 95, "#shorts")
	if got != "Normal Title - Part 2 #shorts" {
		t.Fatalf("unexpected title: %q", got)
	}

	long := strings.Repeat("x", 120)
	got = BuildTitle(long, 11, 95, "")
	if len(got) > 95 {
		t.Fatalf("title exceeds limit (%d): %q", len(got), got)
	}
	if !strings.HasSuffix(got, " - Part 11") {
		t.Fatalf("part suffix must survive truncation: %q", got)
	}
	if !strings.Contains(got, "...") {
		t.Fatalf("expected ellipsis in truncated title: %q", got)
	}
}

func TestBuildTitle_TruncatesByRunes(t *testing.T) {
	hindi := strings.Repeat("मजेदार हिंदी कहानी ", 10)
	for maxLen := 15; maxLen <= 120; maxLen++ {
		got := BuildTitle(hindi, 2, maxLen, "")
		if !utf8.ValidString(got) {
			t.Fatalf("maxLen=%d produced invalid UTF-8: %q", maxLen, got)
		}
		if n := utf8.RuneCountInString(got); n > maxLen {
			t.Fatalf("maxLen=%d exceeded: %d runes in %q", maxLen, n, got)
		}
		if !strings.HasSuffix(got, " - Part 2") {
			t.Fatalf("maxLen=%d lost part suffix: %q", maxLen, got)
		}
	}

	// A short non-ASCII title stays intact even though its byte length
	// is well past the limit.
	short := "मजेदार कहानी"
	if got := BuildTitle(short, 1, 30, ""); got != short+" - Part 1" {
		t.Fatalf("short non-ASCII title truncated: %q", got)
	}
}

func TestBuildDescription(t *testing.T) {
	got := BuildDescription("{title} - Part {part}/{total}\n{url}", "My Video", 3, 7, "https://example.com/v")
	want := "My Video - Part 3/7\nhttps://example.com/v"
	if got != want {
		t.Fatalf("BuildDescription = %q, want %q", got, want)
	}
}

func TestExpandArgv(t *testing.T) {
	argv := []string{"uploader", "--file", "{file}", "--title", "{title}", "--tags", "{tags}", "--privacy", "{privacy}"}
	meta := Metadata{
		Title:   "A Title",
		Tags:    []string{"one", "two"},
		Privacy: "public",
	}
	got := ExpandArgv(argv, "/tmp/seg.mp4", meta)
	want := []string{"uploader", "--file", "/tmp/seg.mp4", "--title", "A Title", "--tags", "one,two", "--privacy", "public"}
	if len(got) != len(want) {
		t.Fatalf("argv length mismatch: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("argv[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestClassifyPublishError(t *testing.T) {
	base := errors.New("exit status 1")

	if err := classifyPublishError(base, "dailyLimitExceeded: quota"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := classifyPublishError(base, "HTTP 401 unauthorized"); !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	if err := classifyPublishError(base, "upload rejected: invalid metadata"); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	err := classifyPublishError(base, "connection reset")
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrRejected) {
		t.Fatalf("generic failure must stay unclassified: %v", err)
	}
}

func TestNewCommandPublisher_RequiresArgv(t *testing.T) {
	if _, err := NewCommandPublisher(nil); err == nil {
		t.Fatalf("expected error for empty argv")
	}
}
