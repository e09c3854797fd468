package timeline

import (
	"fmt"
	"math"
	"sort"
)

// Interval is a half-open time window [Start, End) in seconds.
type Interval struct {
	Start float64 `yaml:"start" json:"start"`
	End   float64 `yaml:"end" json:"end"`
}

// Duration returns End-Start.
func (iv Interval) Duration() float64 {
	return iv.End - iv.Start
}

// Contains reports whether t falls inside [Start, End).
func (iv Interval) Contains(t float64) bool {
	return t >= iv.Start && t < iv.End
}

// Valid reports whether the interval satisfies 0 <= Start < End.
func (iv Interval) Valid() bool {
	return iv.Start >= 0 && iv.End > iv.Start
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%.3f, %.3f)", iv.Start, iv.End)
}

// Overlaps reports whether a and b share any point. Touching intervals do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// Adjacent reports whether one interval ends exactly where the other starts.
// Timestamps come from the same upstream partition, so no tolerance is applied.
func Adjacent(a, b Interval) bool {
	return a.End == b.Start || b.End == a.Start
}

// CoveredLength returns the length of the union of the intervals.
func CoveredLength(seq []Interval) float64 {
	if len(seq) == 0 {
		return 0
	}

	sorted := make([]Interval, len(seq))
	copy(sorted, seq)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	total := 0.0
	cur := sorted[0]
	for _, iv := range sorted[1:] {
		if iv.Start <= cur.End {
			cur.End = math.Max(cur.End, iv.End)
			continue
		}
		total += cur.Duration()
		cur = iv
	}
	total += cur.Duration()
	return total
}

// Frames maps an interval onto a frame range using round(t*fps) boundaries,
// so that contiguous intervals tile the frame axis without gaps or overlap.
func Frames(iv Interval, fps int) (first, count int) {
	f := float64(fps)
	first = int(math.Round(iv.Start * f))
	last := int(math.Round(iv.End * f))
	return first, last - first
}
