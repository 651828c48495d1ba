package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"shorts-pipeline/internal/config"
)

// Renderer converts a horizontal segment into the vertical publish format:
// the segment scaled to full width over a blurred, stretched copy of
// itself, with the title at the top and the part label at the bottom.
type Renderer struct {
	cfg config.Render
}

func NewRenderer(cfg config.Render) *Renderer {
	return &Renderer{cfg: cfg}
}

func (r *Renderer) Transform(ctx context.Context, inputPath string, part int, title, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create render directory: %w", err)
	}

	w, h := r.cfg.Width, r.cfg.Height
	split := ffmpeg.Input(inputPath).Video().Split()
	background := split.Get("0").
		Filter("scale", ffmpeg.Args{fmt.Sprintf("%d:%d", w, h)}).
		Filter("setsar", ffmpeg.Args{"1"}).
		Filter("boxblur", ffmpeg.Args{"20:2"})
	foreground := split.Get("1").
		Filter("scale", ffmpeg.Args{fmt.Sprintf("%d:-2", w)})

	video := ffmpeg.Filter([]*ffmpeg.Stream{background, foreground}, "overlay",
		ffmpeg.Args{"(W-w)/2", "(H-h)/2"})
	video = video.Filter("drawtext", ffmpeg.Args{}, r.drawTextArgs(OverlayTitle(title), "80", 48))
	video = video.Filter("drawtext", ffmpeg.Args{}, r.drawTextArgs(PartLabel(part), "h-th-120", 64))

	audio := ffmpeg.Input(inputPath).Audio()

	err := ffmpeg.Output([]*ffmpeg.Stream{video, audio}, outputPath, ffmpeg.KwArgs{
		"c:v":      "libx264",
		"c:a":      "aac",
		"b:a":      "128k",
		"preset":   "veryfast",
		"movflags": "+faststart",
	}).
		OverWriteOutput().
		Silent(true).
		Run()
	if err != nil {
		_ = os.Remove(outputPath)
		return fmt.Errorf("render part %d of %s: %w", part, inputPath, err)
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(outputPath)
		return err
	}
	return nil
}

func (r *Renderer) drawTextArgs(text, y string, size int) ffmpeg.KwArgs {
	args := ffmpeg.KwArgs{
		"text":        EscapeDrawText(text),
		"fontsize":    size,
		"fontcolor":   "white",
		"borderw":     3,
		"bordercolor": "black",
		"x":           "(w-text_w)/2",
		"y":           y,
	}
	if r.cfg.FontFile != "" {
		args["fontfile"] = r.cfg.FontFile
	}
	return args
}

// PartLabel is the bottom overlay text for a segment.
func PartLabel(part int) string {
	return fmt.Sprintf("Part %d", part)
}

// OverlayTitle shortens a title so the top overlay stays on one line.
// The limit is in runes so multibyte titles are neither over-truncated
// nor cut mid-rune.
func OverlayTitle(title string) string {
	const maxOverlayTitle = 40
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) <= maxOverlayTitle {
		return title
	}
	return strings.TrimSpace(string(runes[:maxOverlayTitle-3])) + "..."
}

// EscapeDrawText escapes the characters ffmpeg's drawtext filter treats
// specially inside a text value.
func EscapeDrawText(text string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return replacer.Replace(text)
}
