package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/norm"
)

// CaptionStyle describes how captions are drawn on a frame.
type CaptionStyle struct {
	FontSize      float64
	Fill          color.Color
	Stroke        color.Color
	StrokeWidth   int
	Baseline      float64 // baseline of the last line as a fraction of frame height
	MaxWidthRatio float64 // wrap width as a fraction of frame width
}

// DefaultCaptionStyle is white 70pt text with a 2px black outline in the lower third.
func DefaultCaptionStyle() CaptionStyle {
	return CaptionStyle{
		FontSize:      70,
		Fill:          color.White,
		Stroke:        color.Black,
		StrokeWidth:   2,
		Baseline:      0.80,
		MaxWidthRatio: 0.9,
	}
}

var boldFont = sync.OnceValues(func() (*sfnt.Font, error) {
	return opentype.Parse(gobold.TTF)
})

type cacheKey struct {
	text  string
	width int
}

type rendered struct {
	img *image.RGBA
	// baseline of the last line inside img
	baseline int
}

// CaptionRenderer draws caption text onto frames. A renderer holds a font
// face and is not safe for concurrent use; create one per worker.
type CaptionRenderer struct {
	style CaptionStyle
	face  font.Face
	cache map[cacheKey]rendered
}

// NewCaptionRenderer prepares the font face for style.
func NewCaptionRenderer(style CaptionStyle) (*CaptionRenderer, error) {
	if style.FontSize <= 0 {
		return nil, fmt.Errorf("caption font size must be positive, got %v", style.FontSize)
	}
	if style.Fill == nil {
		style.Fill = color.White
	}
	if style.Stroke == nil {
		style.Stroke = color.Black
	}
	if style.Baseline <= 0 || style.Baseline > 1 {
		style.Baseline = 0.80
	}
	if style.MaxWidthRatio <= 0 || style.MaxWidthRatio > 1 {
		style.MaxWidthRatio = 0.9
	}

	f, err := boldFont()
	if err != nil {
		return nil, fmt.Errorf("parse caption font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    style.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("caption face: %w", err)
	}
	return &CaptionRenderer{
		style: style,
		face:  face,
		cache: make(map[cacheKey]rendered),
	}, nil
}

// Draw renders text centered horizontally on dst. Blank text is a no-op.
func (r *CaptionRenderer) Draw(dst *image.RGBA, text string) {
	text = normalize(text)
	if text == "" {
		return
	}
	b := dst.Bounds()
	key := cacheKey{text: text, width: b.Dx()}
	rt, ok := r.cache[key]
	if !ok {
		rt = r.render(text, int(float64(b.Dx())*r.style.MaxWidthRatio))
		r.cache[key] = rt
	}

	size := rt.img.Bounds().Size()
	x := b.Min.X + (b.Dx()-size.X)/2
	y := b.Min.Y + int(float64(b.Dy())*r.style.Baseline) - rt.baseline
	draw.Draw(dst, image.Rect(x, y, x+size.X, y+size.Y), rt.img, image.Point{}, draw.Over)
}

// Lines returns the wrapped lines text would be drawn as on a frame of the
// given width.
func (r *CaptionRenderer) Lines(text string, frameWidth int) []string {
	return r.wrap(normalize(text), int(float64(frameWidth)*r.style.MaxWidthRatio))
}

func (r *CaptionRenderer) Close() error {
	return r.face.Close()
}

func normalize(text string) string {
	return strings.Join(strings.Fields(norm.NFC.String(text)), " ")
}

func (r *CaptionRenderer) wrap(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		candidate := line + " " + w
		if font.MeasureString(r.face, candidate).Ceil() <= maxWidth {
			line = candidate
			continue
		}
		lines = append(lines, line)
		line = w
	}
	return append(lines, line)
}

func (r *CaptionRenderer) render(text string, maxWidth int) rendered {
	lines := r.wrap(text, maxWidth)
	metrics := r.face.Metrics()
	ascent := metrics.Ascent.Ceil()
	descent := metrics.Descent.Ceil()
	lineHeight := metrics.Height.Ceil()
	sw := max(r.style.StrokeWidth, 0)

	textWidth := 0
	for _, l := range lines {
		textWidth = max(textWidth, font.MeasureString(r.face, l).Ceil())
	}
	w := textWidth + 2*sw
	h := ascent + descent + (len(lines)-1)*lineHeight + 2*sw
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	fill := image.NewUniform(r.style.Fill)
	stroke := image.NewUniform(r.style.Stroke)
	d := &font.Drawer{Dst: img, Face: r.face}

	for i, l := range lines {
		lw := font.MeasureString(r.face, l).Ceil()
		x := sw + (textWidth-lw)/2
		y := sw + ascent + i*lineHeight

		if sw > 0 {
			d.Src = stroke
			for dy := -sw; dy <= sw; dy++ {
				for dx := -sw; dx <= sw; dx++ {
					if dx*dx+dy*dy > sw*sw || (dx == 0 && dy == 0) {
						continue
					}
					d.Dot = fixed.P(x+dx, y+dy)
					d.DrawString(l)
				}
			}
		}
		d.Src = fill
		d.Dot = fixed.P(x, y)
		d.DrawString(l)
	}

	return rendered{img: img, baseline: sw + ascent + (len(lines)-1)*lineHeight}
}

var namedColors = map[string]color.RGBA{
	"white":  {0xff, 0xff, 0xff, 0xff},
	"black":  {0x00, 0x00, 0x00, 0xff},
	"yellow": {0xff, 0xff, 0x00, 0xff},
	"red":    {0xff, 0x00, 0x00, 0xff},
	"green":  {0x00, 0x80, 0x00, 0xff},
	"blue":   {0x00, 0x00, 0xff, 0xff},
}

// ParseColor accepts a color name or a #RRGGBB / #RRGGBBAA hex string.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok || (len(hex) != 6 && len(hex) != 8) {
		return color.RGBA{}, fmt.Errorf("unknown color %q", s)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("unknown color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
