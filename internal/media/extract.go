package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ExtractSegment cuts [start, end) out of inputPath into outputPath,
// re-encoding so the cut is frame-accurate regardless of keyframe layout.
func ExtractSegment(ctx context.Context, inputPath string, start, end float64, outputPath string) error {
	if end <= start {
		return fmt.Errorf("invalid segment bounds [%v, %v)", start, end)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create segment directory: %w", err)
	}

	err := ffmpeg.Input(inputPath, ffmpeg.KwArgs{"ss": start}).
		Output(outputPath, ffmpeg.KwArgs{
			"t":        end - start,
			"c:v":      "libx264",
			"c:a":      "aac",
			"preset":   "veryfast",
			"movflags": "+faststart",
		}).
		OverWriteOutput().
		Silent(true).
		Run()
	if err != nil {
		_ = os.Remove(outputPath)
		return fmt.Errorf("extract segment [%v, %v) from %s: %w", start, end, inputPath, err)
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(outputPath)
		return err
	}
	return nil
}
