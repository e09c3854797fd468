package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"math"

	"github.com/ivlev/clipweave/internal/media"
	"github.com/ivlev/clipweave/internal/overlay"
	"github.com/ivlev/clipweave/internal/reframe"
	"github.com/ivlev/clipweave/internal/system"
	"github.com/ivlev/clipweave/internal/timeline"
)

// segmentFrames produces the output frames of one segment: the reframed
// background with the caption and badge layers on top. Once the source runs
// out, or a held segment passes its source end, the last background frame is
// repeated.
type segmentFrames struct {
	src      media.FrameSource // nil for a blank segment
	session  reframe.Session
	captions timeline.CaptionTrack
	text     *overlay.CaptionRenderer
	badge    image.Image
	fps      int
	first    int
	holdAt   int // first segment-relative frame past the source end, -1 if not held

	base *image.RGBA // background without overlays
	out  *image.RGBA
	eof  bool
	held int
}

func (r *render) openFrames(ctx context.Context, p timeline.Placement, first int, logger *slog.Logger) (*segmentFrames, error) {
	opts := r.c.opts
	seg := p.Segment
	bounds := r.strategy.Target().Bounds()

	f := &segmentFrames{
		session:  r.strategy.NewSession(),
		captions: r.captions,
		fps:      opts.FPS,
		first:    first,
		holdAt:   -1,
		out:      system.GetImage(bounds),
	}
	if p.Hold {
		// Хвост длиннее исходника: после SourceEnd кадр замирает.
		end := int(math.Round(p.SourceEnd * float64(opts.FPS)))
		f.holdAt = max(end-first, 1)
	}

	if seg.Media.IsAbsent() {
		f.base = system.GetImage(bounds)
		draw.Draw(f.base, bounds, image.Black, image.Point{}, draw.Src)
	} else {
		src, err := r.c.opener.Open(ctx, seg.Media, opts.FPS)
		if err != nil {
			system.PutImage(f.out)
			return nil, fmt.Errorf("open: %w", err)
		}
		f.src = src

		if opts.Attribution {
			badge, err := overlay.Badge(seg.Media.Locator, opts.BadgeSize)
			if err != nil {
				logger.Warn("attribution badge skipped", slog.Any("error", err))
			}
			f.badge = badge
		}
	}

	if len(r.captions) > 0 {
		text, err := overlay.NewCaptionRenderer(opts.Captions)
		if err != nil {
			logger.Warn("captions disabled for segment", slog.Any("error", err))
		}
		f.text = text
	}
	return f, nil
}

// frame implements video.FrameFunc.
func (f *segmentFrames) frame(i int) (image.Image, error) {
	if f.holdAt >= 0 && i >= f.holdAt && f.base != nil {
		f.held++
	} else if err := f.advance(); err != nil {
		return nil, err
	}
	copy(f.out.Pix, f.base.Pix)

	t := float64(f.first+i) / float64(f.fps)
	if c, ok := f.captions.At(t); ok && f.text != nil {
		f.text.Draw(f.out, c.Text)
	}
	overlay.DrawBadge(f.out, f.badge)
	return f.out, nil
}

func (f *segmentFrames) advance() error {
	if f.src == nil || f.eof {
		f.held++
		return nil
	}

	img, err := f.src.Next()
	if errors.Is(err, io.EOF) {
		f.eof = true
		if f.base == nil {
			return errors.New("source yielded no frames")
		}
		f.held++
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	canvas, err := f.session.Frame(img)
	if err != nil {
		return fmt.Errorf("reframe: %w", err)
	}
	if f.base != nil {
		system.PutImage(f.base)
	}
	f.base = canvas
	return nil
}

func (f *segmentFrames) close() {
	if f.src != nil {
		f.src.Close()
	}
	if f.text != nil {
		f.text.Close()
	}
	if f.base != nil {
		system.PutImage(f.base)
	}
	system.PutImage(f.out)
}
