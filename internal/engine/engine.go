package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/clipweave/internal/analyzer"
	"github.com/ivlev/clipweave/internal/media"
	"github.com/ivlev/clipweave/internal/overlay"
	"github.com/ivlev/clipweave/internal/reframe"
	"github.com/ivlev/clipweave/internal/system"
	"github.com/ivlev/clipweave/internal/timeline"
	"github.com/ivlev/clipweave/internal/video"
)

// Options configure a Compositor.
type Options struct {
	Target      reframe.Target
	FPS         int
	Strategy    reframe.Kind
	Detector    analyzer.Detector // nil: detector-guided crop centers geometrically
	SampleEvery int

	Workers        int           // 0: system.RecommendedWorkers
	SegmentTimeout time.Duration // 0: no per-segment limit

	Encoder string
	Quality int

	Captions    overlay.CaptionStyle
	Attribution bool
	BadgeSize   int

	FFprobe string
	WorkDir string
	Logger  *slog.Logger
}

// AudioTrack is the narration. Duration <= 0 means it has to be probed; a
// failed probe leaves the duration indeterminate.
type AudioTrack struct {
	Path     string
	Duration float64
}

// Request is one render: background candidates, captions and narration.
type Request struct {
	Background []timeline.BackgroundSegment
	Captions   []timeline.CaptionSegment
	Audio      *AudioTrack
	Target     reframe.Target // zero value: Options.Target
	Output     string
}

// Compositor renders requests into composites. It holds no per-render
// state and may serve concurrent Compose calls.
type Compositor struct {
	opts    Options
	opener  media.Opener
	encoder video.Encoder
	logger  *slog.Logger

	// AudioDuration probes a narration file.
	AudioDuration func(ctx context.Context, path string) (float64, error)
}

// New validates opts and fills in defaults.
func New(opts Options, opener media.Opener, encoder video.Encoder) (*Compositor, error) {
	if opener == nil || encoder == nil {
		return nil, errors.New("engine: opener and encoder are required")
	}
	if opts.Target == (reframe.Target{}) {
		opts.Target = reframe.DefaultTarget
	}
	if err := opts.Target.Validate(); err != nil {
		return nil, err
	}
	if opts.FPS <= 0 {
		opts.FPS = 25
	}
	if opts.Strategy == "" {
		opts.Strategy = reframe.DetectorGuidedCrop
	}
	if opts.Workers <= 0 {
		opts.Workers = system.RecommendedWorkers()
	}
	if opts.Captions.FontSize <= 0 {
		opts.Captions = overlay.DefaultCaptionStyle()
	}
	if opts.BadgeSize <= 0 {
		opts.BadgeSize = 160
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	c := &Compositor{
		opts:    opts,
		opener:  opener,
		encoder: encoder,
		logger:  opts.Logger,
	}
	c.AudioDuration = func(ctx context.Context, path string) (float64, error) {
		return media.AudioDuration(ctx, opts.FFprobe, path)
	}
	return c, nil
}

// ResolveGaps exposes gap resolution for diagnostics.
func ResolveGaps(segs []timeline.BackgroundSegment) []timeline.BackgroundSegment {
	return timeline.ResolveGaps(segs)
}

// Compose renders req into req.Output.
func (c *Compositor) Compose(ctx context.Context, req Request) (*Composite, error) {
	started := time.Now()
	id := uuid.NewString()
	logger := c.logger.With(slog.String("render_id", id))

	if strings.TrimSpace(req.Output) == "" {
		return nil, errors.New("compose: empty output path")
	}
	target := req.Target
	if target == (reframe.Target{}) {
		target = c.opts.Target
	}
	strategy, err := reframe.New(c.opts.Strategy, reframe.Options{
		Target:      target,
		Detector:    c.opts.Detector,
		SampleEvery: c.opts.SampleEvery,
	})
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}

	if err := timeline.CheckContiguous(req.Background); err != nil {
		return nil, fmt.Errorf("compose: background timeline: %w", err)
	}
	captions, err := timeline.NewCaptionTrack(req.Captions)
	if err != nil {
		return nil, fmt.Errorf("compose: captions: %w", err)
	}

	resolved := ResolveGaps(req.Background)
	if timeline.AllAbsent(resolved) {
		return nil, ErrUnresolvableTimeline
	}

	duration, source, err := timeline.ReconcileDuration(c.audioDuration(ctx, req.Audio, logger), resolved, captions)
	if err != nil {
		return nil, ErrNoDurationSignal
	}
	logger.Info("render started",
		slog.Int("segments", len(req.Background)),
		slog.Int("resolved", len(resolved)),
		slog.Int("captions", len(captions)),
		slog.Float64("duration", duration),
		slog.String("duration_source", string(source)),
		slog.String("target", target.String()),
		slog.String("strategy", string(strategy.Kind())),
	)

	workDir, err := os.MkdirTemp(c.opts.WorkDir, "clipweave_"+id[:8]+"_")
	if err != nil {
		return nil, fmt.Errorf("compose: work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	r := &render{
		c:        c,
		strategy: strategy,
		captions: captions,
		dir:      workDir,
		logger:   logger,
		encoded:  make(map[segmentKey]SegmentReport),
	}
	segments, dropped, err := r.run(ctx, resolved, duration)
	if err != nil {
		return nil, err
	}

	comp := &Composite{
		ID:             id,
		Path:           req.Output,
		Duration:       duration,
		DurationSource: source,
		Width:          target.Width(),
		Height:         target.Height,
		FPS:            c.opts.FPS,
		Segments:       segments,
		Dropped:        dropped,
	}

	// Финальная сборка последовательна и начинается только после всех сегментов.
	if err := c.mux(ctx, req, comp, workDir, id); err != nil {
		return nil, &CompositionError{Stage: "mux", Err: err, Segments: comp.Report()}
	}

	comp.Elapsed = time.Since(started)
	logger.Info("render finished",
		slog.String("output", req.Output),
		slog.Int("frames", comp.Frames()),
		slog.Int("dropped", len(dropped)),
		slog.Duration("elapsed", comp.Elapsed),
	)
	return comp, nil
}

// mux writes the composite next to req.Output and renames it into place
// only once ffmpeg succeeded, so a failed mux never leaves a partial file.
func (c *Compositor) mux(ctx context.Context, req Request, comp *Composite, workDir, id string) error {
	var paths []string
	for _, s := range comp.Segments {
		if s.Path != "" {
			paths = append(paths, s.Path)
		}
	}
	dir := filepath.Dir(req.Output)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	audioPath := ""
	if req.Audio != nil {
		audioPath = req.Audio.Path
	}

	// Расширение сохраняется: по нему ffmpeg выбирает контейнер.
	staging := filepath.Join(dir, ".clipweave_"+id[:8]+"_"+filepath.Base(req.Output))
	err := c.encoder.Mux(ctx, video.MuxParams{
		Segments:  paths,
		AudioPath: audioPath,
		Duration:  comp.Duration,
		Output:    staging,
		WorkDir:   workDir,
	})
	if err != nil {
		_ = os.Remove(staging)
		return err
	}
	if err := os.Rename(staging, req.Output); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("publish output: %w", err)
	}
	return nil
}

func (c *Compositor) audioDuration(ctx context.Context, a *AudioTrack, logger *slog.Logger) float64 {
	if a == nil {
		return 0
	}
	if a.Duration > 0 {
		return a.Duration
	}
	if a.Path == "" {
		return 0
	}
	d, err := c.AudioDuration(ctx, a.Path)
	if err != nil {
		logger.Warn("audio duration indeterminate", slog.String("path", a.Path), slog.Any("error", err))
		return 0
	}
	return d
}
