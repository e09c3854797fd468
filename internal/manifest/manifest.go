package manifest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/clipweave/internal/timeline"
)

// CurrentVersion is written into new manifests.
const CurrentVersion = "1.0"

// Manifest is a render request: the narration track, the timed background
// candidates and the timed captions.
type Manifest struct {
	Version    string       `yaml:"version"`
	Audio      *Audio       `yaml:"audio,omitempty"`
	LeadImage  string       `yaml:"lead_image,omitempty"` // replaces the first background segment's media with a still
	Background []Background `yaml:"background"`
	Captions   []Caption    `yaml:"captions,omitempty"`
}

// Audio references the narration track. Duration <= 0 means "probe it".
type Audio struct {
	Path     string  `yaml:"path"`
	Duration float64 `yaml:"duration,omitempty"`
}

// Background is one timed background entry. An empty locator or kind
// "absent" marks a window with no media found.
type Background struct {
	Start   float64 `yaml:"start"`
	End     float64 `yaml:"end"`
	Kind    string  `yaml:"kind,omitempty"`
	Locator string  `yaml:"locator,omitempty"`
}

// Caption is one timed caption.
type Caption struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
	Text  string  `yaml:"text"`
}

// Read reads a manifest from a YAML file.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// Write writes a manifest to a YAML file.
func Write(m *Manifest, path string) error {
	if m.Version == "" {
		m.Version = CurrentVersion
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Segments converts the background entries into timeline segments.
func (m *Manifest) Segments() ([]timeline.BackgroundSegment, error) {
	segs := make([]timeline.BackgroundSegment, 0, len(m.Background))
	for i, b := range m.Background {
		iv := timeline.Interval{Start: b.Start, End: b.End}
		if !iv.Valid() {
			return nil, fmt.Errorf("background %d: invalid interval %s", i, iv)
		}
		ref, err := mediaRef(b.Kind, b.Locator)
		if err != nil {
			return nil, fmt.Errorf("background %d: %w", i, err)
		}
		segs = append(segs, timeline.BackgroundSegment{Interval: iv, Media: ref})
	}

	if lead := strings.TrimSpace(m.LeadImage); lead != "" && len(segs) > 0 {
		segs[0].Media = timeline.ImageSource(lead)
	}
	return segs, nil
}

func mediaRef(kind, locator string) (timeline.MediaRef, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return timeline.Absent(), nil
	}
	if strings.TrimSpace(kind) == "" {
		return timeline.MediaRef{Kind: timeline.GuessKind(locator), Locator: locator}, nil
	}
	k, err := timeline.ParseKind(kind)
	if err != nil {
		return timeline.MediaRef{}, err
	}
	if k == timeline.KindAbsent {
		return timeline.Absent(), nil
	}
	return timeline.MediaRef{Kind: k, Locator: locator}, nil
}

// CaptionSegments converts the caption entries into timeline captions.
func (m *Manifest) CaptionSegments() ([]timeline.CaptionSegment, error) {
	caps := make([]timeline.CaptionSegment, 0, len(m.Captions))
	for i, c := range m.Captions {
		iv := timeline.Interval{Start: c.Start, End: c.End}
		if !iv.Valid() {
			return nil, fmt.Errorf("caption %d: invalid interval %s", i, iv)
		}
		caps = append(caps, timeline.CaptionSegment{Interval: iv, Text: c.Text})
	}
	return caps, nil
}

// FromTimeline builds a manifest from already-resolved tracks.
func FromTimeline(segs []timeline.BackgroundSegment, caps []timeline.CaptionSegment, audio *Audio) *Manifest {
	m := &Manifest{Version: CurrentVersion, Audio: audio}
	for _, s := range segs {
		b := Background{Start: s.Interval.Start, End: s.Interval.End}
		if !s.Media.IsAbsent() {
			b.Kind = s.Media.Kind.String()
			b.Locator = s.Media.Locator
		}
		m.Background = append(m.Background, b)
	}
	for _, c := range caps {
		m.Captions = append(m.Captions, Caption{Start: c.Interval.Start, End: c.Interval.End, Text: c.Text})
	}
	return m
}
