// Package plan computes the fixed-length segmentation of a source video.
// Everything here is pure arithmetic over the configured segment spec.
package plan

import "math"

// Spec is the segmentation policy. MaxSegments caps the part count
// regardless of content length: anything past the cap is unreachable on
// purpose, not an oversight.
type Spec struct {
	SegmentSeconds float64
	MinTailSeconds float64
	MaxSegments    int
}

// Count returns the total number of parts for a video of the given
// duration. A trailing remainder shorter than MinTailSeconds is dropped,
// not padded.
func (s Spec) Count(totalSeconds float64) int {
	if totalSeconds <= 0 || s.SegmentSeconds <= 0 {
		return 0
	}
	n := int(math.Floor(totalSeconds / s.SegmentSeconds))
	rem := totalSeconds - float64(n)*s.SegmentSeconds
	if rem > 0 && rem >= s.MinTailSeconds {
		n++
	}
	if s.MaxSegments > 0 && n > s.MaxSegments {
		n = s.MaxSegments
	}
	return n
}

// Bounds returns the [start, end) time range of the 1-based part index.
func (s Spec) Bounds(index int, totalSeconds float64) (start, end float64) {
	start = float64(index-1) * s.SegmentSeconds
	end = start + s.SegmentSeconds
	if end > totalSeconds {
		end = totalSeconds
	}
	return start, end
}
