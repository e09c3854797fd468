package timeline

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// MediaKind is the coarse type hint of a background media reference.
type MediaKind int

const (
	KindAbsent MediaKind = iota
	KindVideo
	KindImage
)

func (k MediaKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindImage:
		return "image"
	default:
		return "absent"
	}
}

// ParseKind accepts "video", "image" (or "still") and "absent".
func ParseKind(s string) (MediaKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video", "clip":
		return KindVideo, nil
	case "image", "still":
		return KindImage, nil
	case "absent", "none":
		return KindAbsent, nil
	default:
		return KindAbsent, fmt.Errorf("unknown media kind %q", s)
	}
}

// MediaRef points at background media. Locator is opaque to the timeline.
type MediaRef struct {
	Kind    MediaKind
	Locator string
}

func VideoSource(locator string) MediaRef { return MediaRef{Kind: KindVideo, Locator: locator} }
func ImageSource(locator string) MediaRef { return MediaRef{Kind: KindImage, Locator: locator} }
func Absent() MediaRef                    { return MediaRef{} }

// IsAbsent reports whether no media was found for the window.
func (m MediaRef) IsAbsent() bool {
	return m.Kind == KindAbsent
}

func (m MediaRef) String() string {
	if m.IsAbsent() {
		return "absent"
	}
	return m.Kind.String() + ":" + m.Locator
}

var stillExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".pdf": true,
}

// GuessKind derives a type hint from the locator's extension. Anything that
// does not look like a still is treated as video.
func GuessKind(locator string) MediaKind {
	if strings.TrimSpace(locator) == "" {
		return KindAbsent
	}
	loc := locator
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	if stillExtensions[strings.ToLower(path.Ext(loc))] {
		return KindImage
	}
	return KindVideo
}

// BackgroundSegment pairs a time window with the media shown during it.
type BackgroundSegment struct {
	Interval Interval
	Media    MediaRef
}

func (s BackgroundSegment) String() string {
	return s.Interval.String() + " " + s.Media.String()
}

// CaptionSegment is a caption displayed for its interval only.
type CaptionSegment struct {
	Interval Interval
	Text     string
}

// CheckContiguous verifies the gap resolver precondition: segments are valid,
// start at 0 and each one ends exactly where the next starts.
func CheckContiguous(segs []BackgroundSegment) error {
	if len(segs) == 0 {
		return nil
	}
	if segs[0].Interval.Start != 0 {
		return fmt.Errorf("timeline starts at %.3f, want 0", segs[0].Interval.Start)
	}
	for i, s := range segs {
		if !s.Interval.Valid() {
			return fmt.Errorf("segment %d: invalid interval %s", i, s.Interval)
		}
		if i > 0 && segs[i-1].Interval.End != s.Interval.Start {
			return fmt.Errorf("segment %d: %s does not follow %s", i, s.Interval, segs[i-1].Interval)
		}
	}
	return nil
}

// AllAbsent reports whether the timeline is non-empty and carries no media at all.
func AllAbsent(segs []BackgroundSegment) bool {
	if len(segs) == 0 {
		return false
	}
	for _, s := range segs {
		if !s.Media.IsAbsent() {
			return false
		}
	}
	return true
}

// MaxEnd returns the largest End across the segments, or 0.
func MaxEnd(segs []BackgroundSegment) float64 {
	end := 0.0
	for _, s := range segs {
		if s.Interval.End > end {
			end = s.Interval.End
		}
	}
	return end
}

// CaptionTrack is an ordered, non-overlapping sequence of captions.
type CaptionTrack []CaptionSegment

// NewCaptionTrack copies and sorts the captions, rejecting invalid or overlapping ones.
func NewCaptionTrack(caps []CaptionSegment) (CaptionTrack, error) {
	track := make(CaptionTrack, len(caps))
	copy(track, caps)
	sort.SliceStable(track, func(i, j int) bool {
		return track[i].Interval.Start < track[j].Interval.Start
	})
	for i, c := range track {
		if !c.Interval.Valid() {
			return nil, fmt.Errorf("caption %d: invalid interval %s", i, c.Interval)
		}
		if i > 0 && Overlaps(track[i-1].Interval, c.Interval) {
			return nil, fmt.Errorf("caption %d: %s overlaps %s", i, c.Interval, track[i-1].Interval)
		}
	}
	return track, nil
}

// At returns the caption shown at t, if any.
func (t CaptionTrack) At(ts float64) (CaptionSegment, bool) {
	i := sort.Search(len(t), func(i int) bool {
		return t[i].Interval.End > ts
	})
	if i < len(t) && t[i].Interval.Contains(ts) {
		return t[i], true
	}
	return CaptionSegment{}, false
}

// MaxEnd returns the end of the last caption, or 0 for an empty track.
func (t CaptionTrack) MaxEnd() float64 {
	end := 0.0
	for _, c := range t {
		if c.Interval.End > end {
			end = c.Interval.End
		}
	}
	return end
}
