package reframe

import (
	"fmt"
	"image"
	"math"
)

// AspectTolerance is how close source and target aspect ratios must be for a
// frame to be scaled without cropping.
const AspectTolerance = 0.01

// Target is the output geometry: an aspect ratio and a pixel height.
type Target struct {
	AspectW int
	AspectH int
	Height  int
}

// DefaultTarget is vertical 9:16 at 1080x1920.
var DefaultTarget = Target{AspectW: 9, AspectH: 16, Height: 1920}

// Ratio returns width/height of the target.
func (t Target) Ratio() float64 {
	return float64(t.AspectW) / float64(t.AspectH)
}

// Width returns round(Height * Ratio).
func (t Target) Width() int {
	return int(math.Round(float64(t.Height) * t.Ratio()))
}

// Bounds returns the output canvas rectangle anchored at the origin.
func (t Target) Bounds() image.Rectangle {
	return image.Rect(0, 0, t.Width(), t.Height)
}

func (t Target) Validate() error {
	if t.AspectW <= 0 || t.AspectH <= 0 {
		return fmt.Errorf("invalid aspect %d:%d", t.AspectW, t.AspectH)
	}
	if t.Height <= 0 {
		return fmt.Errorf("invalid height %d", t.Height)
	}
	if t.Width() <= 0 {
		return fmt.Errorf("aspect %d:%d at height %d yields zero width", t.AspectW, t.AspectH, t.Height)
	}
	return nil
}

func (t Target) String() string {
	return fmt.Sprintf("%dx%d (%d:%d)", t.Width(), t.Height, t.AspectW, t.AspectH)
}
