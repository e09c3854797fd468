package engine

import (
	"sort"
	"time"

	"github.com/ivlev/clipweave/internal/timeline"
)

// SegmentStatus is the outcome of one background segment.
type SegmentStatus string

const (
	StatusRendered SegmentStatus = "rendered"
	StatusHeld     SegmentStatus = "held" // last frame repeated past the source end
	StatusBlank    SegmentStatus = "blank"
	StatusDropped  SegmentStatus = "dropped"
)

// SegmentReport is one row of the per-segment render log.
type SegmentReport struct {
	Index    int
	Interval timeline.Interval
	Media    timeline.MediaRef
	Frames   int
	Status   SegmentStatus
	Path     string
	Elapsed  time.Duration
	Err      error
}

// Composite is the result of one successful render.
type Composite struct {
	ID             string
	Path           string
	Duration       float64
	DurationSource timeline.DurationSource
	Width          int
	Height         int
	FPS            int
	Segments       []SegmentReport
	Dropped        []*DecodeError
	Elapsed        time.Duration
}

// Frames returns the number of frames across all rendered segments.
func (c *Composite) Frames() int {
	n := 0
	for _, s := range c.Segments {
		n += s.Frames
	}
	return n
}

// Report lists the final segments followed by the dropped ones, each group
// in timeline order.
func (c *Composite) Report() []SegmentReport {
	rows := make([]SegmentReport, 0, len(c.Segments)+len(c.Dropped))
	rows = append(rows, c.Segments...)

	dropped := make([]SegmentReport, 0, len(c.Dropped))
	for _, d := range c.Dropped {
		dropped = append(dropped, SegmentReport{
			Index:    d.Index,
			Interval: d.Interval,
			Media:    d.Media,
			Status:   StatusDropped,
			Err:      d.Err,
		})
	}
	sort.SliceStable(dropped, func(i, j int) bool {
		return dropped[i].Interval.Start < dropped[j].Interval.Start
	})
	return append(rows, dropped...)
}
