package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ivlev/clipweave/internal/media"
	"github.com/ivlev/clipweave/internal/overlay"
	"github.com/ivlev/clipweave/internal/reframe"
	"github.com/ivlev/clipweave/internal/timeline"
	"github.com/ivlev/clipweave/internal/video"
)

const testFPS = 5

var testTarget = reframe.Target{AspectW: 9, AspectH: 16, Height: 64}

// fakeSource yields n landscape gray frames. With distinct set frame k is
// filled with red k instead.
type fakeSource struct {
	n        int
	read     int
	distinct bool
	img      *image.RGBA
}

func (s *fakeSource) Next() (image.Image, error) {
	if s.read >= s.n {
		return nil, io.EOF
	}
	s.read++
	if s.distinct {
		img := image.NewRGBA(s.img.Rect)
		draw.Draw(img, img.Rect, image.NewUniform(color.RGBA{uint8(s.read - 1), 0, 0, 255}), image.Point{}, draw.Src)
		return img, nil
	}
	return s.img, nil
}

func (s *fakeSource) Size() image.Point { return s.img.Rect.Size() }
func (s *fakeSource) Close() error      { return nil }

type fakeOpener struct {
	frames   int
	distinct bool
	fail     map[string]bool
	block    map[string]bool

	mu     sync.Mutex
	opened map[string]int
}

func (o *fakeOpener) Open(ctx context.Context, ref timeline.MediaRef, fps int) (media.FrameSource, error) {
	o.mu.Lock()
	if o.opened == nil {
		o.opened = make(map[string]int)
	}
	o.opened[ref.Locator]++
	o.mu.Unlock()

	if o.fail[ref.Locator] {
		return nil, errors.New("404 not found")
	}
	if o.block[ref.Locator] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 36))
	draw.Draw(img, img.Rect, image.NewUniform(color.RGBA{128, 128, 128, 255}), image.Point{}, draw.Src)
	n := o.frames
	if n == 0 {
		n = 1000
	}
	return &fakeSource{n: n, img: img, distinct: o.distinct}, nil
}

type encodedSegment struct {
	path        string
	count       int
	captionSeen bool
	reds        []uint8 // red channel of each frame's center pixel
}

type fakeEncoder struct {
	muxErr error

	mu       sync.Mutex
	segments []encodedSegment
	muxed    *video.MuxParams
}

func (e *fakeEncoder) EncodeSegment(ctx context.Context, frames video.FrameFunc, count int, path string, p video.SegmentParams) error {
	rec := encodedSegment{path: path, count: count}
	for i := 0; i < count; i++ {
		img, err := frames(i)
		if err != nil {
			return err
		}
		b := img.Bounds()
		if b.Dx() != p.Width || b.Dy() != p.Height {
			return fmt.Errorf("frame %d is %v, want %dx%d", i, b, p.Width, p.Height)
		}
		if hasWhite(img) {
			rec.captionSeen = true
		}
		r, _, _, _ := img.At(b.Dx()/2, b.Dy()/2).RGBA()
		rec.reds = append(rec.reds, uint8(r>>8))
	}
	e.mu.Lock()
	e.segments = append(e.segments, rec)
	e.mu.Unlock()
	return nil
}

func (e *fakeEncoder) Mux(ctx context.Context, p video.MuxParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muxed = &p
	// ffmpeg оставляет файл даже при ошибке.
	content := []byte("mp4")
	if e.muxErr != nil {
		content = []byte("truncated mp4")
	}
	if err := os.WriteFile(p.Output, content, 0o644); err != nil {
		return err
	}
	return e.muxErr
}

func hasWhite(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, _ := img.At(x, y).RGBA()
			if r == 0xffff && g == 0xffff && bb == 0xffff {
				return true
			}
		}
	}
	return false
}

func newTestCompositor(t *testing.T, opener media.Opener, enc video.Encoder) *Compositor {
	t.Helper()
	style := overlay.DefaultCaptionStyle()
	style.FontSize = 16
	c, err := New(Options{
		Target:         testTarget,
		FPS:            testFPS,
		Strategy:       reframe.CenterCrop,
		Workers:        2,
		SegmentTimeout: time.Second,
		Captions:       style,
		WorkDir:        t.TempDir(),
	}, opener, enc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.AudioDuration = func(context.Context, string) (float64, error) {
		return 0, errors.New("no ffprobe in tests")
	}
	return c
}

func seg(start, end float64, locator string) timeline.BackgroundSegment {
	ref := timeline.Absent()
	if locator != "" {
		ref = timeline.VideoSource(locator)
	}
	return timeline.BackgroundSegment{Interval: timeline.Interval{Start: start, End: end}, Media: ref}
}

func output(t *testing.T) string {
	return filepath.Join(t.TempDir(), "out", "final.mp4")
}

func TestComposeAllAbsent(t *testing.T) {
	c := newTestCompositor(t, &fakeOpener{}, &fakeEncoder{})
	_, err := c.Compose(context.Background(), Request{
		Background: []timeline.BackgroundSegment{seg(0, 4, ""), seg(4, 10, "")},
		Output:     output(t),
	})
	if !errors.Is(err, ErrUnresolvableTimeline) {
		t.Fatalf("Expected ErrUnresolvableTimeline, got %v", err)
	}
}

func TestComposeNoDurationSignal(t *testing.T) {
	c := newTestCompositor(t, &fakeOpener{}, &fakeEncoder{})
	_, err := c.Compose(context.Background(), Request{Output: output(t)})
	if !errors.Is(err, ErrNoDurationSignal) {
		t.Fatalf("Expected ErrNoDurationSignal, got %v", err)
	}
}

func TestComposeDropsFailedSegment(t *testing.T) {
	opener := &fakeOpener{fail: map[string]bool{"c.mp4": true}}
	enc := &fakeEncoder{}
	c := newTestCompositor(t, opener, enc)

	comp, err := c.Compose(context.Background(), Request{
		Background: []timeline.BackgroundSegment{
			seg(0, 2, "a.mp4"), seg(2, 4, "b.mp4"), seg(4, 6, "c.mp4"), seg(6, 8, "d.mp4"), seg(8, 10, "e.mp4"),
		},
		Output: output(t),
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	// 1. Упавший сегмент попал в отчёт, а не оборвал рендер
	if len(comp.Dropped) != 1 || comp.Dropped[0].Media.Locator != "c.mp4" {
		t.Fatalf("Expected c.mp4 dropped, got %v", comp.Dropped)
	}
	var de *DecodeError
	if !errors.As(comp.Dropped[0], &de) || de.Err == nil {
		t.Errorf("Dropped entry is not a usable DecodeError: %v", comp.Dropped[0])
	}

	// 2. Четыре оставшихся сегмента покрывают [0,10)
	if len(comp.Segments) != 4 {
		t.Fatalf("Expected 4 segments, got %d", len(comp.Segments))
	}
	if got := comp.Segments[1].Interval; got != (timeline.Interval{Start: 2, End: 6}) {
		t.Errorf("Expected b.mp4 extended to [2,6), got %v", got)
	}
	if comp.Frames() != 10*testFPS {
		t.Errorf("Expected %d frames, got %d", 10*testFPS, comp.Frames())
	}

	// 3. Повторно кодируется только изменившийся сегмент
	if len(enc.segments) != 5 {
		t.Errorf("Expected 5 encodes (4 + re-render of b.mp4), got %d", len(enc.segments))
	}
	if opener.opened["a.mp4"] != 1 || opener.opened["b.mp4"] != 2 {
		t.Errorf("Unexpected open counts: %v", opener.opened)
	}

	if enc.muxed == nil || len(enc.muxed.Segments) != 4 || enc.muxed.Duration != 10 {
		t.Errorf("Unexpected mux params: %+v", enc.muxed)
	}
	if report := comp.Report(); len(report) != 5 || report[4].Status != StatusDropped {
		t.Errorf("Unexpected report: %+v", report)
	}
}

func TestComposeAudioTruncatesBackground(t *testing.T) {
	enc := &fakeEncoder{}
	c := newTestCompositor(t, &fakeOpener{}, enc)

	comp, err := c.Compose(context.Background(), Request{
		Background: []timeline.BackgroundSegment{seg(0, 5, "a.mp4"), seg(5, 15, "b.mp4")},
		Audio:      &AudioTrack{Path: "voice.mp3", Duration: 12},
		Output:     output(t),
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if comp.Duration != 12 || comp.DurationSource != timeline.FromAudio {
		t.Errorf("Expected duration 12 from audio, got %v from %s", comp.Duration, comp.DurationSource)
	}
	if got := comp.Segments[1].Interval; got != (timeline.Interval{Start: 5, End: 12}) {
		t.Errorf("Expected tail [5,12), got %v", got)
	}
	if comp.Frames() != 12*testFPS {
		t.Errorf("Expected %d frames, got %d", 12*testFPS, comp.Frames())
	}
	if enc.muxed.AudioPath != "voice.mp3" || enc.muxed.Duration != 12 {
		t.Errorf("Unexpected mux params: %+v", enc.muxed)
	}
	if comp.Width != 36 || comp.Height != 64 {
		t.Errorf("Expected 36x64, got %dx%d", comp.Width, comp.Height)
	}
}

func TestComposeHoldsShortBackground(t *testing.T) {
	// Исходник короче сегмента: последний кадр повторяется.
	c := newTestCompositor(t, &fakeOpener{frames: 3}, &fakeEncoder{})

	comp, err := c.Compose(context.Background(), Request{
		Background: []timeline.BackgroundSegment{seg(0, 10, "a.mp4")},
		Audio:      &AudioTrack{Duration: 12},
		Output:     output(t),
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	last := comp.Segments[len(comp.Segments)-1]
	if last.Status != StatusHeld || last.Interval.End != 12 {
		t.Errorf("Expected held tail ending at 12, got %+v", last)
	}
	if comp.Frames() != 12*testFPS {
		t.Errorf("Expected %d frames, got %d", 12*testFPS, comp.Frames())
	}
}

func TestComposeFreezesHeldTail(t *testing.T) {
	// Исходник длиннее сегмента, но хвост растянут до конца аудио:
	// после SourceEnd должен стоять последний кадр, а не продолжение видео.
	enc := &fakeEncoder{}
	c := newTestCompositor(t, &fakeOpener{distinct: true}, enc)

	if _, err := c.Compose(context.Background(), Request{
		Background: []timeline.BackgroundSegment{seg(0, 2, "a.mp4")},
		Audio:      &AudioTrack{Duration: 4},
		Output:     output(t),
	}); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(enc.segments) != 1 || len(enc.segments[0].reds) != 4*testFPS {
		t.Fatalf("Expected one segment of %d frames, got %+v", 4*testFPS, enc.segments)
	}
	reds := enc.segments[0].reds
	for i := 0; i < 2*testFPS; i++ {
		if reds[i] != uint8(i) {
			t.Errorf("Frame %d: expected source frame %d, got %d", i, i, reds[i])
		}
	}
	for i := 2 * testFPS; i < len(reds); i++ {
		if reds[i] != 2*testFPS-1 {
			t.Errorf("Frame %d: expected held frame %d, got %d", i, 2*testFPS-1, reds[i])
		}
	}
}

func TestComposeProbesAudio(t *testing.T) {
	c := newTestCompositor(t, &fakeOpener{}, &fakeEncoder{})
	bg := []timeline.BackgroundSegment{seg(0, 10, "a.mp4")}

	c.AudioDuration = func(context.Context, string) (float64, error) { return 7, nil }
	comp, err := c.Compose(context.Background(), Request{Background: bg, Audio: &AudioTrack{Path: "voice.mp3"}, Output: output(t)})
	if err != nil {
		t.Fatal(err)
	}
	if comp.Duration != 7 || comp.DurationSource != timeline.FromAudio {
		t.Errorf("Expected probed duration 7, got %v (%s)", comp.Duration, comp.DurationSource)
	}

	// Неизвестная длительность аудио: берём конец фона.
	c.AudioDuration = func(context.Context, string) (float64, error) { return 0, errors.New("corrupt") }
	comp, err = c.Compose(context.Background(), Request{Background: bg, Audio: &AudioTrack{Path: "voice.mp3"}, Output: output(t)})
	if err != nil {
		t.Fatal(err)
	}
	if comp.Duration != 10 || comp.DurationSource != timeline.FromBackground {
		t.Errorf("Expected background duration 10, got %v (%s)", comp.Duration, comp.DurationSource)
	}
}

func TestComposeCaptionsOnly(t *testing.T) {
	enc := &fakeEncoder{}
	c := newTestCompositor(t, &fakeOpener{}, enc)

	comp, err := c.Compose(context.Background(), Request{
		Captions: []timeline.CaptionSegment{{Interval: timeline.Interval{Start: 0, End: 3}, Text: "hi"}},
		Output:   output(t),
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if comp.Duration != 3 || comp.DurationSource != timeline.FromCaptions {
		t.Errorf("Expected duration 3 from captions, got %v (%s)", comp.Duration, comp.DurationSource)
	}
	if len(comp.Segments) != 1 || comp.Segments[0].Status != StatusBlank {
		t.Fatalf("Expected one blank segment, got %+v", comp.Segments)
	}
	if len(enc.segments) != 1 || !enc.segments[0].captionSeen {
		t.Errorf("Expected caption pixels on the blank background")
	}
}

func TestComposeCaptionsOnlyInInterval(t *testing.T) {
	enc := &fakeEncoder{}
	c := newTestCompositor(t, &fakeOpener{}, enc)

	_, err := c.Compose(context.Background(), Request{
		Background: []timeline.BackgroundSegment{seg(0, 2, "a.mp4"), seg(2, 4, "b.mp4")},
		Captions:   []timeline.CaptionSegment{{Interval: timeline.Interval{Start: 2.4, End: 3}, Text: "ok"}},
		Output:     output(t),
	})
	if err != nil {
		t.Fatal(err)
	}
	seen := 0
	for _, s := range enc.segments {
		if s.captionSeen {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("Expected caption in exactly one segment, got %d", seen)
	}
}

func TestComposeAllSegmentsFail(t *testing.T) {
	opener := &fakeOpener{fail: map[string]bool{"a.mp4": true, "b.mp4": true}}
	c := newTestCompositor(t, opener, &fakeEncoder{})

	_, err := c.Compose(context.Background(), Request{
		Background: []timeline.BackgroundSegment{seg(0, 2, "a.mp4"), seg(2, 4, "b.mp4")},
		Output:     output(t),
	})
	if !errors.Is(err, ErrNoSegments) {
		t.Fatalf("Expected ErrNoSegments, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Errorf("Expected DecodeError in chain: %v", err)
	}
}

func TestComposeMuxFailure(t *testing.T) {
	enc := &fakeEncoder{muxErr: errors.New("disk full")}
	c := newTestCompositor(t, &fakeOpener{}, enc)
	out := output(t)

	_, err := c.Compose(context.Background(), Request{
		Background: []timeline.BackgroundSegment{seg(0, 2, "a.mp4"), seg(2, 4, "b.mp4")},
		Output:     out,
	})
	var ce *CompositionError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected CompositionError, got %v", err)
	}
	if ce.Stage != "mux" || len(ce.Segments) != 2 {
		t.Errorf("Unexpected composition error: %+v", ce)
	}
	if ce.Segments[0].Path == "" {
		t.Errorf("Expected partial log with segment paths")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("Expected no output file after failed mux, got %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(out))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		t.Errorf("Unexpected leftover file %s", e.Name())
	}
}

func TestComposePublishesOutput(t *testing.T) {
	enc := &fakeEncoder{}
	c := newTestCompositor(t, &fakeOpener{}, enc)
	out := output(t)

	if _, err := c.Compose(context.Background(), Request{
		Background: []timeline.BackgroundSegment{seg(0, 2, "a.mp4")},
		Output:     out,
	}); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	// 1. ffmpeg пишет во временный файл рядом с результатом
	if enc.muxed.Output == out || filepath.Dir(enc.muxed.Output) != filepath.Dir(out) {
		t.Errorf("Expected staging file next to %s, got %s", out, enc.muxed.Output)
	}
	if filepath.Ext(enc.muxed.Output) != ".mp4" {
		t.Errorf("Expected staging file to keep .mp4, got %s", enc.muxed.Output)
	}
	// 2. после успеха остается только итоговый файл
	entries, err := os.ReadDir(filepath.Dir(out))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "final.mp4" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only final.mp4, got %s", strings.Join(names, ", "))
	}
}

func TestComposeSegmentTimeout(t *testing.T) {
	opener := &fakeOpener{block: map[string]bool{"slow.mp4": true}}
	c := newTestCompositor(t, opener, &fakeEncoder{})
	c.opts.SegmentTimeout = 50 * time.Millisecond

	comp, err := c.Compose(context.Background(), Request{
		Background: []timeline.BackgroundSegment{seg(0, 2, "a.mp4"), seg(2, 4, "slow.mp4")},
		Output:     output(t),
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(comp.Dropped) != 1 || !errors.Is(comp.Dropped[0], context.DeadlineExceeded) {
		t.Fatalf("Expected slow.mp4 dropped on timeout, got %v", comp.Dropped)
	}
	if len(comp.Segments) != 1 || comp.Segments[0].Interval.End != 4 {
		t.Errorf("Expected a.mp4 to cover [0,4), got %+v", comp.Segments)
	}
}

func TestComposeCancelled(t *testing.T) {
	c := newTestCompositor(t, &fakeOpener{}, &fakeEncoder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Compose(ctx, Request{
		Background: []timeline.BackgroundSegment{seg(0, 2, "a.mp4")},
		Output:     output(t),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestComposeRejectsBadInput(t *testing.T) {
	c := newTestCompositor(t, &fakeOpener{}, &fakeEncoder{})

	tests := []struct {
		name string
		req  Request
	}{
		{"gap in timeline", Request{Background: []timeline.BackgroundSegment{seg(0, 2, "a.mp4"), seg(3, 4, "b.mp4")}, Output: "x.mp4"}},
		{"overlapping captions", Request{
			Background: []timeline.BackgroundSegment{seg(0, 2, "a.mp4")},
			Captions: []timeline.CaptionSegment{
				{Interval: timeline.Interval{Start: 0, End: 2}, Text: "a"},
				{Interval: timeline.Interval{Start: 1, End: 3}, Text: "b"},
			},
			Output: "x.mp4",
		}},
		{"no output", Request{Background: []timeline.BackgroundSegment{seg(0, 2, "a.mp4")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Compose(context.Background(), tt.req); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestResolveGapsExported(t *testing.T) {
	got := ResolveGaps([]timeline.BackgroundSegment{seg(0, 3, "a.mp4"), seg(3, 6, ""), seg(6, 9, "b.mp4")})
	if len(got) != 2 || got[0].Interval.End != 6 {
		t.Errorf("Unexpected resolution: %v", got)
	}
}
