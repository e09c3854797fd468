package media

import (
	"context"
	"fmt"
	"math"

	"github.com/ivlev/clipweave/internal/timeline"
)

// Opener turns a media reference into a decoded frame stream.
type Opener interface {
	Open(ctx context.Context, ref timeline.MediaRef, fps int) (FrameSource, error)
}

// DefaultOpener fetches the locator and decodes it with ffmpeg or the image codecs.
type DefaultOpener struct {
	Fetcher *Fetcher
	FFmpeg  string
	FFprobe string
	DPI     int
}

func (o *DefaultOpener) Open(ctx context.Context, ref timeline.MediaRef, fps int) (FrameSource, error) {
	if ref.IsAbsent() {
		return nil, fmt.Errorf("open: absent media")
	}

	path, err := o.Fetcher.Fetch(ctx, ref.Locator)
	if err != nil {
		return nil, err
	}

	if ref.Kind == timeline.KindImage {
		return NewStillDecoder(path, o.DPI)
	}

	info, err := Probe(ctx, o.FFprobe, path)
	if err != nil {
		return nil, err
	}
	if !info.HasVideo {
		return nil, fmt.Errorf("open %s: no video stream", ref.Locator)
	}
	return NewVideoDecoder(ctx, o.FFmpeg, path, info.Width, info.Height, fps)
}

// AudioDuration probes an audio file. A non-positive result means the
// duration could not be determined.
func AudioDuration(ctx context.Context, ffprobe, path string) (float64, error) {
	info, err := Probe(ctx, ffprobe, path)
	if err != nil {
		return 0, err
	}
	return audioDuration(info, path)
}

func audioDuration(info Info, path string) (float64, error) {
	if !info.HasAudio {
		return 0, fmt.Errorf("probe %s: no audio stream", path)
	}
	if info.Duration <= 0 || math.IsNaN(info.Duration) || math.IsInf(info.Duration, 0) {
		return 0, fmt.Errorf("probe %s: unknown duration", path)
	}
	return info.Duration, nil
}
