package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ivlev/clipweave/internal/reframe"
	"github.com/ivlev/clipweave/internal/timeline"
	"github.com/ivlev/clipweave/internal/video"
)

// segmentKey identifies an encoded segment. A segment whose interval or
// media changed after re-resolution is encoded again.
type segmentKey struct {
	Interval timeline.Interval
	Media    timeline.MediaRef
}

type job struct {
	index     int
	placement timeline.Placement
}

func (j job) key() segmentKey {
	return segmentKey{Interval: j.placement.Segment.Interval, Media: j.placement.Segment.Media}
}

// render is the state of one Compose call.
type render struct {
	c        *Compositor
	strategy reframe.Strategy
	captions timeline.CaptionTrack
	dir      string
	logger   *slog.Logger

	mu      sync.Mutex
	encoded map[segmentKey]SegmentReport
	seq     atomic.Int64
}

// run renders the fitted timeline. Segments that fail are turned into gaps,
// the timeline is resolved again and only the changed segments are redone.
func (r *render) run(ctx context.Context, resolved []timeline.BackgroundSegment, d float64) ([]SegmentReport, []*DecodeError, error) {
	segs := resolved
	if len(segs) == 0 {
		// Пустой фон: один чёрный сегмент на всю длительность несёт титры.
		segs = []timeline.BackgroundSegment{{
			Interval: timeline.Interval{Start: 0, End: d},
			Media:    timeline.Absent(),
		}}
	}

	var dropped []*DecodeError
	for pass := 1; ; pass++ {
		placements := timeline.Fit(segs, d)

		var jobs []job
		for i, p := range placements {
			j := job{index: i, placement: p}
			if _, ok := r.encoded[j.key()]; !ok {
				jobs = append(jobs, j)
			}
		}
		r.logger.Debug("render pass",
			slog.Int("pass", pass),
			slog.Int("segments", len(placements)),
			slog.Int("pending", len(jobs)),
		)

		failures, err := r.renderAll(ctx, jobs)
		if err != nil {
			return nil, nil, err
		}
		if len(failures) == 0 {
			return r.collect(placements), dropped, nil
		}
		dropped = append(dropped, failures...)

		// Упавшие сегменты становятся пробелами и поглощаются соседями.
		next := make([]timeline.BackgroundSegment, len(segs))
		copy(next, segs)
		for _, f := range failures {
			for i := range next {
				if next[i].Media == f.Media {
					next[i].Media = timeline.Absent()
				}
			}
		}
		if timeline.AllAbsent(next) {
			return nil, dropped, fmt.Errorf("%w: %w", ErrNoSegments, joinDecodeErrors(dropped))
		}
		segs = timeline.ResolveGaps(next)
	}
}

func (r *render) collect(placements []timeline.Placement) []SegmentReport {
	out := make([]SegmentReport, 0, len(placements))
	for i, p := range placements {
		j := job{index: i, placement: p}
		rep := r.encoded[j.key()]
		rep.Index = i
		out = append(out, rep)
	}
	return out
}

// renderAll runs jobs on a bounded pool. Segment failures are collected;
// only cancellation of ctx is returned as an error.
func (r *render) renderAll(ctx context.Context, jobs []job) ([]*DecodeError, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	sem := semaphore.NewWeighted(int64(max(r.c.opts.Workers, 1)))
	g, gctx := errgroup.WithContext(ctx)

	var (
		mu       sync.Mutex
		failures []*DecodeError
	)
	for _, j := range jobs {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			seg := j.placement.Segment
			logger := r.logger.With(
				slog.Int("segment", j.index),
				slog.Float64("start", seg.Interval.Start),
				slog.Float64("end", seg.Interval.End),
				slog.String("locator", seg.Media.Locator),
			)

			rep, err := r.renderSegment(gctx, j, logger)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("segment dropped", slog.Any("error", err))
				mu.Lock()
				failures = append(failures, &DecodeError{
					Index:    j.index,
					Interval: seg.Interval,
					Media:    seg.Media,
					Err:      err,
				})
				mu.Unlock()
				return nil
			}

			logger.Debug("segment ready",
				slog.Int("frames", rep.Frames),
				slog.String("status", string(rep.Status)),
				slog.Duration("elapsed", rep.Elapsed),
			)
			r.mu.Lock()
			r.encoded[j.key()] = rep
			r.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(failures, func(a, b int) bool {
		return failures[a].Interval.Start < failures[b].Interval.Start
	})
	return failures, nil
}

// renderSegment fetches, decodes, reframes, overlays and encodes one segment
// under the per-segment timeout.
func (r *render) renderSegment(ctx context.Context, j job, logger *slog.Logger) (SegmentReport, error) {
	started := time.Now()
	opts := r.c.opts
	p := j.placement

	first, count := timeline.Frames(p.Segment.Interval, opts.FPS)
	rep := SegmentReport{
		Index:    j.index,
		Interval: p.Segment.Interval,
		Media:    p.Segment.Media,
		Frames:   count,
		Status:   StatusRendered,
	}
	switch {
	case p.Segment.Media.IsAbsent():
		rep.Status = StatusBlank
	case p.Hold:
		rep.Status = StatusHeld
	}
	if count == 0 {
		// Короче одного кадра: в итоговом ролике сегмента нет.
		return rep, nil
	}

	if opts.SegmentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.SegmentTimeout)
		defer cancel()
	}

	frames, err := r.openFrames(ctx, p, first, logger)
	if err != nil {
		return rep, err
	}
	defer frames.close()

	target := r.strategy.Target()
	path := filepath.Join(r.dir, fmt.Sprintf("seg_%04d.mp4", r.seq.Add(1)))
	params := video.SegmentParams{
		Width:   target.Width(),
		Height:  target.Height,
		FPS:     opts.FPS,
		Encoder: opts.Encoder,
		Quality: opts.Quality,
	}
	if err := r.c.encoder.EncodeSegment(ctx, frames.frame, count, path, params); err != nil {
		return rep, fmt.Errorf("encode: %w", err)
	}
	if frames.held > 0 && p.Segment.Media.Kind == timeline.KindVideo {
		logger.Debug("last background frame held", slog.Int("held_frames", frames.held))
	}

	rep.Path = path
	rep.Elapsed = time.Since(started)
	return rep, nil
}
