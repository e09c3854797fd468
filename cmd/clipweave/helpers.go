package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/ivlev/clipweave/internal/analyzer"
	"github.com/ivlev/clipweave/internal/config"
	"github.com/ivlev/clipweave/internal/engine"
	"github.com/ivlev/clipweave/internal/manifest"
	"github.com/ivlev/clipweave/internal/overlay"
	"github.com/ivlev/clipweave/internal/reframe"
	"github.com/ivlev/clipweave/internal/system"
	"github.com/ivlev/clipweave/internal/timeline"
)

// request is a manifest turned into engine input.
type request struct {
	background []timeline.BackgroundSegment
	captions   []timeline.CaptionSegment
	audio      *engine.AudioTrack
}

func loadRequest(path string) (*manifest.Manifest, request, error) {
	m, err := manifest.Read(path)
	if err != nil {
		return nil, request{}, err
	}
	bg, err := m.Segments()
	if err != nil {
		return nil, request{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	caps, err := m.CaptionSegments()
	if err != nil {
		return nil, request{}, fmt.Errorf("manifest %s: %w", path, err)
	}

	req := request{background: bg, captions: caps}
	if a := m.Audio; a != nil && (strings.TrimSpace(a.Path) != "" || a.Duration > 0) {
		req.audio = &engine.AudioTrack{Path: a.Path, Duration: a.Duration}
	}
	return m, req, nil
}

// resolveManifestPath returns arg, or the newest manifest under the input directory.
func resolveManifestPath(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	dir := filepath.Join(cfg.Paths.InputDir, "manifests")
	latest, err := system.FindLatest(dir, ".yaml", ".yml")
	if err != nil {
		return "", fmt.Errorf("no manifest given and none found in %s: %w", dir, err)
	}
	return latest, nil
}

// defaultOutputPath names the composite after the manifest and the current time.
func defaultOutputPath(outputDir, manifestPath string, now time.Time) string {
	base := filepath.Base(manifestPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.ReplaceAll(name, " ", "_")
	return filepath.Join(outputDir, fmt.Sprintf("%s_%s.mp4", name, now.Format("2006-01-02_15-04-05")))
}

// engineOptions maps the configuration onto compositor options. An empty
// encoder is resolved by probing ffmpeg.
func engineOptions(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Options, error) {
	kind, err := reframe.ParseKind(cfg.Reframe.Strategy)
	if err != nil {
		return engine.Options{}, err
	}
	detector, err := analyzer.NewDetector(cfg.Reframe.Detector)
	if err != nil {
		return engine.Options{}, err
	}

	style := overlay.DefaultCaptionStyle()
	style.FontSize = cfg.Captions.FontSize
	style.StrokeWidth = cfg.Captions.StrokeWidth
	style.Baseline = cfg.Captions.Baseline
	if style.Fill, err = overlay.ParseColor(cfg.Captions.Fill); err != nil {
		return engine.Options{}, fmt.Errorf("captions.fill: %w", err)
	}
	if style.Stroke, err = overlay.ParseColor(cfg.Captions.Stroke); err != nil {
		return engine.Options{}, fmt.Errorf("captions.stroke: %w", err)
	}

	encoder := strings.TrimSpace(cfg.Output.Encoder)
	if encoder == "" {
		encoder = system.GetBestH264Encoder(ctx, cfg.Tools.FFmpeg)
		if encoder != "libx264" {
			logger.Info("hardware encoder detected", slog.String("encoder", encoder))
		}
	}

	return engine.Options{
		Target: reframe.Target{
			AspectW: cfg.Output.AspectW,
			AspectH: cfg.Output.AspectH,
			Height:  cfg.Output.Height,
		},
		FPS:            cfg.Output.FPS,
		Strategy:       kind,
		Detector:       detector,
		SampleEvery:    cfg.Reframe.SampleEvery,
		Workers:        cfg.Workers.Count,
		SegmentTimeout: cfg.SegmentTimeout(),
		Encoder:        encoder,
		Quality:        cfg.Output.Quality,
		Captions:       style,
		Attribution:    cfg.Attribution.Enabled,
		BadgeSize:      cfg.Attribution.Size,
		FFprobe:        cfg.Tools.FFprobe,
		WorkDir:        cfg.Paths.WorkDir,
		Logger:         logger,
	}, nil
}

func formatInterval(iv timeline.Interval) string {
	return fmt.Sprintf("%7.2f → %7.2f", iv.Start, iv.End)
}

func formatMedia(ref timeline.MediaRef) string {
	if ref.IsAbsent() {
		return "(absent)"
	}
	return fmt.Sprintf("%s %s", ref.Kind, ref.Locator)
}
