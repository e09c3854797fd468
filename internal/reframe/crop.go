package reframe

import (
	"image"
	"math"
)

// CropWindow returns the region of a w x h frame (origin at 0,0) that is
// scaled into the target. center, when non-nil, is the preferred center of
// the window; otherwise the geometric center is used. The window keeps its
// size and is shifted, never shrunk, to stay inside the frame.
func CropWindow(w, h int, ratio float64, center *image.Point) image.Rectangle {
	full := image.Rect(0, 0, w, h)
	if w <= 0 || h <= 0 {
		return full
	}

	src := float64(w) / float64(h)
	if math.Abs(src-ratio) < AspectTolerance {
		return full
	}

	cx, cy := w/2, h/2
	if center != nil {
		cx, cy = center.X, center.Y
	}

	if src > ratio {
		// Источник шире цели: режем по горизонтали.
		cw := min(max(int(math.Round(float64(h)*ratio)), 1), w)
		x0 := clamp(cx-cw/2, 0, w-cw)
		return image.Rect(x0, 0, x0+cw, h)
	}

	ch := min(max(int(math.Round(float64(w)/ratio)), 1), h)
	y0 := clamp(cy-ch/2, 0, h-ch)
	return image.Rect(0, y0, w, y0+ch)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
