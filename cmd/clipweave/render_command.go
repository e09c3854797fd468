package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/ivlev/clipweave/internal/engine"
	"github.com/ivlev/clipweave/internal/media"
	"github.com/ivlev/clipweave/internal/reframe"
	"github.com/ivlev/clipweave/internal/system"
	"github.com/ivlev/clipweave/internal/video"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var (
		outputFlag   string
		audioFlag    string
		strategyFlag string
		workersFlag  int
	)

	cmd := &cobra.Command{
		Use:   "render [manifest]",
		Short: "Render a manifest into a video (default: newest manifest in input/manifests)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.loggerValue()
			out := cmd.OutOrStdout()

			if strategyFlag != "" {
				cfg.Reframe.Strategy = strategyFlag
			}
			if workersFlag > 0 {
				cfg.Workers.Count = workersFlag
			}

			system.InitResourceLimits(logger)

			manifestPath, err := resolveManifestPath(cfg, args)
			if err != nil {
				return err
			}
			_, req, err := loadRequest(manifestPath)
			if err != nil {
				return err
			}
			if audioFlag != "" {
				req.audio = &engine.AudioTrack{Path: audioFlag}
			}

			output := outputFlag
			if output == "" {
				output = defaultOutputPath(cfg.Paths.OutputDir, manifestPath, time.Now())
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			// Один рендер на выходной файл.
			lockPath := output + ".lock"
			lock := flock.New(lockPath)
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("%s is being rendered by another process", output)
			}
			defer func() {
				_ = lock.Unlock()
				_ = os.Remove(lockPath)
			}()

			mediaDir, err := os.MkdirTemp(cfg.Paths.WorkDir, "clipweave_media_")
			if err != nil {
				return fmt.Errorf("create media dir: %w", err)
			}
			defer os.RemoveAll(mediaDir)

			opts, err := engineOptions(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			opener := &media.DefaultOpener{
				Fetcher: media.NewFetcher(mediaDir, logger),
				FFmpeg:  cfg.Tools.FFmpeg,
				FFprobe: cfg.Tools.FFprobe,
				DPI:     cfg.Tools.DPI,
			}
			compositor, err := engine.New(opts, opener, &video.FFmpegEncoder{Binary: cfg.Tools.FFmpeg})
			if err != nil {
				return err
			}

			logger.Info("manifest loaded",
				slog.String("manifest", manifestPath),
				slog.Int("background", len(req.background)),
				slog.Int("captions", len(req.captions)),
			)

			comp, err := compositor.Compose(cmd.Context(), engine.Request{
				Background: req.background,
				Captions:   req.captions,
				Audio:      req.audio,
				Output:     output,
			})
			if err != nil {
				var ce *engine.CompositionError
				if errors.As(err, &ce) {
					fmt.Fprintln(out, renderReport(ce.Segments))
				}
				return err
			}

			fmt.Fprintln(out, renderReport(comp.Report()))
			printSummary(out, comp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output video path (default: output/<manifest>_<timestamp>.mp4)")
	cmd.Flags().StringVar(&audioFlag, "audio", "", "Narration file, overrides the manifest")
	cmd.Flags().StringVar(&strategyFlag, "strategy", "", fmt.Sprintf("Reframe strategy: %s, %s, %s", reframe.Resize, reframe.CenterCrop, reframe.DetectorGuidedCrop))
	cmd.Flags().IntVarP(&workersFlag, "workers", "w", 0, "Concurrent segment workers (default: derived from CPU and memory)")

	return cmd
}

func renderReport(rows []engine.SegmentReport) string {
	headers := []string{"#", "Interval", "Source", "Frames", "Status", "Time", "Error"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft}

	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		elapsed := ""
		if r.Elapsed > 0 {
			elapsed = r.Elapsed.Round(10 * time.Millisecond).String()
		}
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		out = append(out, []string{
			strconv.Itoa(r.Index),
			formatInterval(r.Interval),
			formatMedia(r.Media),
			strconv.Itoa(r.Frames),
			string(r.Status),
			elapsed,
			errText,
		})
	}
	return renderTable(headers, out, aligns)
}

func printSummary(w io.Writer, comp *engine.Composite) {
	size := "unknown"
	if info, err := os.Stat(comp.Path); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	snap := system.TakeSnapshot()

	fmt.Fprintf(w, "Output:   %s (%s)\n", comp.Path, size)
	fmt.Fprintf(w, "Video:    %dx%d @ %d fps, %s frames\n", comp.Width, comp.Height, comp.FPS, humanize.Comma(int64(comp.Frames())))
	fmt.Fprintf(w, "Duration: %.2fs (from %s)\n", comp.Duration, comp.DurationSource)
	if len(comp.Dropped) > 0 {
		fmt.Fprintf(w, "Dropped:  %d segment(s)\n", len(comp.Dropped))
	}
	fmt.Fprintf(w, "Elapsed:  %s\n", comp.Elapsed.Round(time.Millisecond))
	if snap.MemTotal > 0 {
		fmt.Fprintf(w, "Host:     %d CPUs, %s of %s memory free\n",
			snap.LogicalCPUs, humanize.Bytes(snap.MemAvailable), humanize.Bytes(snap.MemTotal))
	}
	fmt.Fprintf(w, "ID:       %s\n", comp.ID)
}
