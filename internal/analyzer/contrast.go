package analyzer

import (
	"image"
	"image/color"
	"math"
	"sort"

	"golang.org/x/image/draw"
)

// ContrastDetector finds high-contrast regions with a Sobel operator. Frames
// are analysed at a reduced working resolution and boxes are scaled back.
type ContrastDetector struct {
	MinBlockArea  int     // Minimum area in source pixels²
	EdgeThreshold float64 // Gradient magnitude threshold
	MaxSide       int     // Longest side of the working image, 0 disables downscaling
}

// NewContrastDetector creates a new contrast-based detector with default settings
func NewContrastDetector() *ContrastDetector {
	return &ContrastDetector{
		MinBlockArea:  2500,
		EdgeThreshold: 30.0,
		MaxSide:       320,
	}
}

// Detect returns candidate subject boxes, largest first.
func (d *ContrastDetector) Detect(img image.Image) ([]Block, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, nil
	}

	gray, scale := d.workingImage(img)

	edges := sobelEdgeDetection(gray, d.EdgeThreshold)
	dilated := dilate(edges, 5, 2)
	contours := findContours(dilated)

	blocks := []Block{}
	for _, rect := range contours {
		r := image.Rect(
			bounds.Min.X+int(math.Floor(float64(rect.Min.X)*scale)),
			bounds.Min.Y+int(math.Floor(float64(rect.Min.Y)*scale)),
			bounds.Min.X+int(math.Ceil(float64(rect.Max.X)*scale)),
			bounds.Min.Y+int(math.Ceil(float64(rect.Max.Y)*scale)),
		).Intersect(bounds)

		if r.Dx()*r.Dy() < d.MinBlockArea {
			continue
		}
		blocks = append(blocks, Block{
			Rect:       r,
			Type:       "unknown",
			Confidence: 0.7,
		})
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Area() > blocks[j].Area()
	})
	return blocks, nil
}

// workingImage returns a grayscale copy anchored at (0,0) and the factor that
// maps working coordinates back to source coordinates.
func (d *ContrastDetector) workingImage(img image.Image) (*image.Gray, float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := 1.0

	longest := w
	if h > longest {
		longest = h
	}
	if d.MaxSide > 0 && longest > d.MaxSide {
		scale = float64(longest) / float64(d.MaxSide)
		w = int(math.Max(1, math.Round(float64(w)/scale)))
		h = int(math.Max(1, math.Round(float64(h)/scale)))
	}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	if scale == 1.0 {
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
		return gray, scale
	}
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, b, draw.Src, nil)
	return gray, float64(b.Dx()) / float64(w)
}

// sobelEdgeDetection applies Sobel operator to detect edges
func sobelEdgeDetection(gray *image.Gray, threshold float64) *image.Gray {
	bounds := gray.Bounds()
	edges := image.NewGray(bounds)

	gx := [3][3]int{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	gy := [3][3]int{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}

	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			var sumX, sumY float64

			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					pixel := float64(gray.GrayAt(x+kx, y+ky).Y)
					sumX += pixel * float64(gx[ky+1][kx+1])
					sumY += pixel * float64(gy[ky+1][kx+1])
				}
			}

			if math.Sqrt(sumX*sumX+sumY*sumY) > threshold {
				edges.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	return edges
}

// dilate performs morphological dilation to connect nearby edges
func dilate(img *image.Gray, kernelSize, iterations int) *image.Gray {
	bounds := img.Bounds()
	result := image.NewGray(bounds)
	copy(result.Pix, img.Pix)

	half := kernelSize / 2

	for iter := 0; iter < iterations; iter++ {
		temp := image.NewGray(bounds)

		for y := bounds.Min.Y + half; y < bounds.Max.Y-half; y++ {
			for x := bounds.Min.X + half; x < bounds.Max.X-half; x++ {
				maxVal := uint8(0)
				for ky := -half; ky <= half && maxVal < 255; ky++ {
					for kx := -half; kx <= half; kx++ {
						if val := result.GrayAt(x+kx, y+ky).Y; val > maxVal {
							maxVal = val
						}
					}
				}
				temp.SetGray(x, y, color.Gray{Y: maxVal})
			}
		}

		result = temp
	}

	return result
}

// findContours finds bounding rectangles of connected white regions
func findContours(img *image.Gray) []image.Rectangle {
	bounds := img.Bounds()
	visited := make([][]bool, bounds.Dy())
	for i := range visited {
		visited[i] = make([]bool, bounds.Dx())
	}

	contours := []image.Rectangle{}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if img.GrayAt(x, y).Y > 128 && !visited[y-bounds.Min.Y][x-bounds.Min.X] {
				contours = append(contours, floodFill(img, visited, x, y))
			}
		}
	}

	return contours
}

// floodFill performs flood fill and returns bounding rectangle
func floodFill(img *image.Gray, visited [][]bool, startX, startY int) image.Rectangle {
	bounds := img.Bounds()
	minX, minY := startX, startY
	maxX, maxY := startX, startY

	stack := []image.Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		x, y := p.X, p.Y

		if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}

		if visited[y-bounds.Min.Y][x-bounds.Min.X] || img.GrayAt(x, y).Y <= 128 {
			continue
		}

		visited[y-bounds.Min.Y][x-bounds.Min.X] = true

		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)

		stack = append(stack,
			image.Point{X: x + 1, Y: y},
			image.Point{X: x - 1, Y: y},
			image.Point{X: x, Y: y + 1},
			image.Point{X: x, Y: y - 1},
		)
	}

	return image.Rect(minX, minY, maxX+1, maxY+1)
}
