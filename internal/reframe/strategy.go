package reframe

import (
	"fmt"
	"image"
	"math"
	"strings"

	"golang.org/x/image/draw"

	"github.com/ivlev/clipweave/internal/analyzer"
	"github.com/ivlev/clipweave/internal/system"
)

// Kind selects a reframing strategy.
type Kind string

const (
	Resize             Kind = "resize"
	CenterCrop         Kind = "center"
	DetectorGuidedCrop Kind = "detector"
)

// ParseKind maps configuration values onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Resize:
		return Resize, nil
	case CenterCrop, "center-crop", "crop":
		return CenterCrop, nil
	case DetectorGuidedCrop, "detector-crop", "smart", "":
		return DetectorGuidedCrop, nil
	default:
		return "", fmt.Errorf("unknown reframe strategy %q", s)
	}
}

// Session reframes the frames of one segment. Sessions carry per-segment
// state and must not be shared between segments or goroutines.
type Session interface {
	// Frame returns a canvas of exactly the target size. The canvas comes
	// from the shared image pool; hand it back with system.PutImage.
	Frame(src image.Image) (*image.RGBA, error)
}

// Strategy produces independent sessions.
type Strategy interface {
	Kind() Kind
	Target() Target
	NewSession() Session
}

// Options configure New.
type Options struct {
	Target Target
	// Detector locates subjects for DetectorGuidedCrop. nil degrades to
	// geometric centering.
	Detector analyzer.Detector
	// SampleEvery runs the detector on every Nth frame; values < 1 mean every frame.
	SampleEvery int
	// Interpolator defaults to draw.ApproxBiLinear.
	Interpolator draw.Interpolator
}

// New builds the strategy of the requested kind.
func New(kind Kind, opts Options) (Strategy, error) {
	if err := opts.Target.Validate(); err != nil {
		return nil, err
	}
	if opts.Interpolator == nil {
		opts.Interpolator = draw.ApproxBiLinear
	}
	if opts.SampleEvery < 1 {
		opts.SampleEvery = 1
	}

	switch kind {
	case Resize, CenterCrop, DetectorGuidedCrop:
		return &strategy{kind: kind, opts: opts}, nil
	default:
		return nil, fmt.Errorf("unknown reframe strategy %q", kind)
	}
}

type strategy struct {
	kind Kind
	opts Options
}

func (s *strategy) Kind() Kind     { return s.kind }
func (s *strategy) Target() Target { return s.opts.Target }

func (s *strategy) NewSession() Session {
	return &session{kind: s.kind, opts: s.opts}
}

type session struct {
	kind   Kind
	opts   Options
	anchor Anchor
	frames int
}

func (s *session) Frame(src image.Image) (*image.RGBA, error) {
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty source frame %v", b)
	}

	dst := system.GetImage(s.opts.Target.Bounds())
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)

	if s.kind == Resize {
		fit(dst, src, b, s.opts.Interpolator)
		return dst, nil
	}

	var center *image.Point
	if s.kind == DetectorGuidedCrop && s.opts.Detector != nil {
		if s.frames%s.opts.SampleEvery == 0 {
			// Ошибка детектора не валит кадр: якорь просто остаётся прежним.
			if blocks, err := s.opts.Detector.Detect(src); err == nil {
				s.anchor.Observe(blocks)
			}
		}
		if c, ok := s.anchor.Center(); ok {
			c = c.Sub(b.Min)
			center = &c
		}
	}
	s.frames++

	crop := CropWindow(b.Dx(), b.Dy(), s.opts.Target.Ratio(), center).Add(b.Min)
	fill(dst, src, crop, s.opts.Interpolator)
	return dst, nil
}

// fill scales crop so that it is exactly as tall as dst and centers it.
// Rounding slack is either clipped by dst bounds or left as black padding.
func fill(dst *image.RGBA, src image.Image, crop image.Rectangle, interp draw.Interpolator) {
	db := dst.Bounds()
	scale := float64(db.Dy()) / float64(crop.Dy())
	w := int(math.Round(float64(crop.Dx()) * scale))
	place(dst, src, crop, w, db.Dy(), interp)
}

// fit scales the whole frame to fit inside dst and letterboxes the rest.
func fit(dst *image.RGBA, src image.Image, b image.Rectangle, interp draw.Interpolator) {
	db := dst.Bounds()
	scale := math.Min(float64(db.Dx())/float64(b.Dx()), float64(db.Dy())/float64(b.Dy()))
	w := min(int(math.Round(float64(b.Dx())*scale)), db.Dx())
	h := min(int(math.Round(float64(b.Dy())*scale)), db.Dy())
	place(dst, src, b, w, h, interp)
}

func place(dst *image.RGBA, src image.Image, sr image.Rectangle, w, h int, interp draw.Interpolator) {
	w, h = max(w, 1), max(h, 1)
	db := dst.Bounds()
	x0 := db.Min.X + (db.Dx()-w)/2
	y0 := db.Min.Y + (db.Dy()-h)/2
	interp.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), src, sr, draw.Src, nil)
}
