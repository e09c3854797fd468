package analyzer

import "image"

// Block is a salient region located in a frame, in frame coordinates.
type Block struct {
	Rect       image.Rectangle
	Type       string  // "subject", "text", "unknown"
	Confidence float64 // 0.0-1.0
}

// Area returns the block's pixel area.
func (b Block) Area() int {
	return b.Rect.Dx() * b.Rect.Dy()
}

// Detector locates salient objects in a single frame.
type Detector interface {
	Detect(img image.Image) ([]Block, error)
}
