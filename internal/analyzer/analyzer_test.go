package analyzer

import (
	"image"
	"image/color"
	"testing"
)

func filledRect(w, h int, subject image.Rectangle) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := subject.Min.Y; y < subject.Max.Y; y++ {
		for x := subject.Min.X; x < subject.Max.X; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return img
}

func TestContrastDetector(t *testing.T) {
	img := filledRect(200, 200, image.Rect(50, 50, 150, 150))

	detector := NewContrastDetector()
	blocks, err := detector.Detect(img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(blocks) == 0 {
		t.Fatal("Expected at least one block, got none")
	}

	block := blocks[0]
	if block.Rect.Dx() < 80 || block.Rect.Dy() < 80 {
		t.Errorf("Block too small: %v", block.Rect)
	}
	if !block.Rect.In(img.Bounds()) {
		t.Errorf("Block %v outside frame %v", block.Rect, img.Bounds())
	}
}

func TestContrastDetectorDownscaledCoordinates(t *testing.T) {
	// Landscape frame, subject in the right third.
	subject := image.Rect(1200, 300, 1600, 800)
	img := filledRect(1920, 1080, subject)

	blocks, err := NewContrastDetector().Detect(img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(blocks) == 0 {
		t.Fatal("expected a block")
	}

	c := blocks[0].Rect
	cx := (c.Min.X + c.Max.X) / 2
	if cx < 1300 || cx > 1500 {
		t.Errorf("subject center x = %d, want near 1400 (block %v)", cx, c)
	}
	for i := 1; i < len(blocks); i++ {
		if blocks[i].Area() > blocks[i-1].Area() {
			t.Fatalf("blocks not sorted by area: %v", blocks)
		}
	}
}

func TestContrastDetectorFlatFrame(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 640, 360))

	blocks, err := NewContrastDetector().Detect(img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("expected no blocks on a flat frame, got %v", blocks)
	}
}

func TestDetectorRegistry(t *testing.T) {
	tests := []struct {
		variant string
		wantNil bool
		wantErr bool
	}{
		{"contrast", false, false},
		{"", false, false},
		{"none", true, false},
		{"yolo", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			detector, err := NewDetector(tt.variant)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if (detector == nil) != tt.wantNil {
				t.Errorf("detector nil = %v, want %v", detector == nil, tt.wantNil)
			}
		})
	}
}
