// Package origin fetches source media from the authoritative,
// credential-gated host via yt-dlp. Origin fetches are expensive and
// rate-limited, so callers stage the result in the cache gateway and
// only come back here when the cache misses.
package origin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	ErrAuthExpired        = errors.New("origin credentials expired")
	ErrContentUnavailable = errors.New("origin content unavailable")
	ErrTimeout            = errors.New("origin fetch timed out")
)

type Options struct {
	CookiesPath string
	Quality     string
	LogWriter   io.Writer
}

type Client struct {
	opts Options
}

func New(opts Options) *Client {
	return &Client{opts: opts}
}

type DependencyReport struct {
	YTDLPFound   bool   `json:"yt_dlp_found"`
	YTDLPPath    string `json:"yt_dlp_path,omitempty"`
	FFmpegFound  bool   `json:"ffmpeg_found"`
	FFmpegPath   string `json:"ffmpeg_path,omitempty"`
	FFprobeFound bool   `json:"ffprobe_found"`
	FFprobePath  string `json:"ffprobe_path,omitempty"`
}

func DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath("yt-dlp"); err == nil {
		report.YTDLPFound = true
		report.YTDLPPath = path
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	if path, err := exec.LookPath("ffprobe"); err == nil {
		report.FFprobeFound = true
		report.FFprobePath = path
	}
	return report
}

func CheckDependencies() error {
	report := DependencyStatus()
	if !report.YTDLPFound {
		return fmt.Errorf("missing dependency: yt-dlp is not installed or not on PATH")
	}
	if !report.FFmpegFound {
		return fmt.Errorf("missing dependency: ffmpeg is not installed or not on PATH")
	}
	if !report.FFprobeFound {
		return fmt.Errorf("missing dependency: ffprobe is not installed or not on PATH")
	}
	return nil
}

// Fetch downloads the media behind sourceURL into destDir as <itemID>.mp4
// and returns the local path. Failures are classified into the sentinel
// errors above where the cause is recognizable.
func (c *Client) Fetch(ctx context.Context, sourceURL, itemID, destDir string) (string, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return "", fmt.Errorf("source URL is required")
	}
	if strings.TrimSpace(itemID) == "" {
		return "", fmt.Errorf("item ID is required")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create download directory %s: %w", destDir, err)
	}

	destPath := filepath.Join(destDir, itemID+".mp4")
	args, err := c.buildArgs(sourceURL, destPath)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, "yt-dlp", args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	runErr := cmd.Run()
	if c.opts.LogWriter != nil {
		_, _ = c.opts.LogWriter.Write(output.Bytes())
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		return "", classifyFetchError(runErr, output.String())
	}
	if _, err := os.Stat(destPath); err != nil {
		return "", fmt.Errorf("%w: yt-dlp reported success but %s is missing", ErrContentUnavailable, destPath)
	}
	return destPath, nil
}

func (c *Client) buildArgs(sourceURL, destPath string) ([]string, error) {
	args := []string{
		"--no-playlist",
		"--newline",
		"-f", selectFormat(c.opts.Quality),
		"--merge-output-format", "mp4",
		"-o", destPath,
	}
	if strings.TrimSpace(c.opts.CookiesPath) != "" {
		cookiesPath, err := resolveCookiesPath(c.opts.CookiesPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--cookies", cookiesPath)
	}
	return append(args, sourceURL), nil
}

func selectFormat(rawQuality string) string {
	switch strings.ToLower(strings.TrimSpace(rawQuality)) {
	case "", "best":
		return "bv*+ba/b"
	case "1080p", "1080", "hd":
		return "bv*[height<=1080]+ba/b[height<=1080]"
	case "720p", "720", "sd":
		return "bv*[height<=720]+ba/b[height<=720]"
	default:
		return "bv*+ba/b"
	}
}

func classifyFetchError(runErr error, output string) error {
	text := strings.ToLower(output)
	authHints := []string{
		"sign in to confirm",
		"cookies are no longer valid",
		"use --cookies",
		"http error 403",
		"login required",
	}
	for _, h := range authHints {
		if strings.Contains(text, h) {
			return fmt.Errorf("%w: %s", ErrAuthExpired, firstLineWith(output, h))
		}
	}
	unavailableHints := []string{
		"video unavailable",
		"private video",
		"this video has been removed",
		"members-only",
	}
	for _, h := range unavailableHints {
		if strings.Contains(text, h) {
			return fmt.Errorf("%w: %s", ErrContentUnavailable, firstLineWith(output, h))
		}
	}
	return fmt.Errorf("yt-dlp failed: %w: %s", runErr, truncate(strings.TrimSpace(output), 1200))
}

func firstLineWith(output, hint string) string {
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(strings.ToLower(line), hint) {
			return strings.TrimSpace(line)
		}
	}
	return hint
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func resolveCookiesPath(path string) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve cookies path %s: %w", p, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("cookies file %s: %w", abs, err)
	}
	return abs, nil
}
