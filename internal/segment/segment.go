// Package segment holds the pure transforms over timed transcript segments.
package segment

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"transcript-studio/internal/domain"
)

// Sort orders segments by start time, keeping the input order of equal starts.
func Sort(segments []domain.Segment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
}

// Ordered reports whether segments are non-decreasing by start time.
func Ordered(segments []domain.Segment) bool {
	return sort.SliceIsSorted(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
}

// Normalize trims text and repairs inverted spans so that start <= end.
func Normalize(segments []domain.Segment) []domain.Segment {
	out := make([]domain.Segment, 0, len(segments))
	for _, seg := range segments {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.End < seg.Start {
			seg.End = seg.Start
		}
		out = append(out, seg)
	}
	Sort(out)
	return out
}

// Overlap returns the shared duration of two intervals, never negative.
func Overlap(startA, endA, startB, endB float64) float64 {
	overlap := min(endA, endB) - max(startA, startB)
	if overlap < 0 {
		return 0
	}
	return overlap
}

// MergeSpeakers assigns to every segment the speaker whose span overlaps it most.
// Ties keep the first span in scan order; segments with no overlap carry no label.
// Prior labels are overwritten, so merging the same spans twice is a no-op.
// An empty span list leaves the segments untouched.
func MergeSpeakers(segments []domain.Segment, spans []domain.SpeakerSpan) []domain.Segment {
	out := make([]domain.Segment, len(segments))
	copy(out, segments)
	if len(spans) == 0 {
		return out
	}

	for i := range out {
		best := ""
		bestOverlap := 0.0
		for _, span := range spans {
			overlap := Overlap(out[i].Start, out[i].End, span.Start, span.End)
			if overlap > bestOverlap {
				bestOverlap = overlap
				best = span.Speaker
			}
		}
		out[i].Speaker = best
	}
	return out
}

// MapText rewrites the text of each segment independently; timing is untouched.
// When fn fails for a segment the original text is kept.
func MapText(segments []domain.Segment, fn func(text string) (string, error)) []domain.Segment {
	return lo.Map(segments, func(seg domain.Segment, _ int) domain.Segment {
		mapped, err := fn(seg.Text)
		if err == nil {
			seg.Text = mapped
		}
		return seg
	})
}

// FullText joins trimmed segment texts with single spaces.
func FullText(segments []domain.Segment) string {
	parts := lo.FilterMap(segments, func(seg domain.Segment, _ int) (string, bool) {
		text := strings.TrimSpace(seg.Text)
		return text, text != ""
	})
	return strings.Join(parts, " ")
}

// Speakers returns the distinct speaker labels in first-seen order.
func Speakers(segments []domain.Segment) []string {
	labels := lo.FilterMap(segments, func(seg domain.Segment, _ int) (string, bool) {
		return seg.Speaker, seg.Speaker != ""
	})
	return lo.Uniq(labels)
}
