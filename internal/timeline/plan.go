package timeline

import "errors"

// DurationSource names the signal that decided the output duration.
type DurationSource string

const (
	FromAudio      DurationSource = "audio"
	FromBackground DurationSource = "background"
	FromCaptions   DurationSource = "captions"
)

// ErrNoDuration is returned when no track yields a usable duration.
var ErrNoDuration = errors.New("no duration signal")

// ReconcileDuration picks the output duration in priority order: audio,
// then the background timeline's end, then the caption track's end.
// An audio duration <= 0 counts as indeterminate.
func ReconcileDuration(audio float64, background []BackgroundSegment, captions CaptionTrack) (float64, DurationSource, error) {
	if audio > 0 {
		return audio, FromAudio, nil
	}
	if end := MaxEnd(background); end > 0 {
		return end, FromBackground, nil
	}
	if end := captions.MaxEnd(); end > 0 {
		return end, FromCaptions, nil
	}
	return 0, "", ErrNoDuration
}

// Placement is a background segment fitted to the output duration.
type Placement struct {
	Segment BackgroundSegment
	// SourceEnd is the segment's end before fitting.
	SourceEnd float64
	// Hold is set on a tail segment stretched past its source end; frames
	// beyond the source repeat its final frame.
	Hold bool
}

// Fit truncates the timeline at d and stretches its last segment to d when
// the timeline is shorter. Segments are never looped.
func Fit(segs []BackgroundSegment, d float64) []Placement {
	out := make([]Placement, 0, len(segs))
	for _, s := range segs {
		if s.Interval.Start >= d {
			break
		}
		p := Placement{Segment: s, SourceEnd: s.Interval.End}
		if p.Segment.Interval.End > d {
			p.Segment.Interval.End = d
		}
		out = append(out, p)
	}

	if n := len(out); n > 0 && out[n-1].Segment.Interval.End < d {
		out[n-1].Segment.Interval.End = d
		out[n-1].Hold = true
	}
	return out
}
