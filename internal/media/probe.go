// Package media wraps the ffmpeg operations the pipeline needs: duration
// probing, time-range extraction, and the vertical render with overlays.
package media

import (
	"encoding/json"
	"fmt"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

type probeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration returns the media duration in seconds via ffprobe.
func Duration(path string) (float64, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	var pf probeFormat
	if err := json.Unmarshal([]byte(out), &pf); err != nil {
		return 0, fmt.Errorf("parse probe output for %s: %w", path, err)
	}
	if pf.Format.Duration == "" {
		return 0, fmt.Errorf("probe %s: no duration in output", path)
	}
	seconds, err := strconv.ParseFloat(pf.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q for %s: %w", pf.Format.Duration, path, err)
	}
	return seconds, nil
}
