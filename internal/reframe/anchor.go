package reframe

import (
	"image"

	"github.com/ivlev/clipweave/internal/analyzer"
)

// Anchor remembers the largest subject box seen so far in one segment. It
// only moves when a strictly larger box shows up, which keeps the crop window
// steady while detections flicker. An Anchor must not outlive its segment.
type Anchor struct {
	box  image.Rectangle
	area int
}

// Observe offers a batch of detections and reports whether the anchor moved.
func (a *Anchor) Observe(blocks []analyzer.Block) bool {
	moved := false
	for _, b := range blocks {
		if area := b.Area(); area > a.area {
			a.box, a.area = b.Rect, area
			moved = true
		}
	}
	return moved
}

// Center returns the anchor's center, or false if nothing was observed.
func (a *Anchor) Center() (image.Point, bool) {
	if a.area == 0 {
		return image.Point{}, false
	}
	return image.Pt((a.box.Min.X+a.box.Max.X)/2, (a.box.Min.Y+a.box.Max.Y)/2), true
}

// Box returns the retained box, empty when nothing was observed.
func (a *Anchor) Box() image.Rectangle {
	return a.box
}
