package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ivlev/clipweave/internal/engine"
	"github.com/ivlev/clipweave/internal/manifest"
	"github.com/ivlev/clipweave/internal/timeline"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var writeFlag string

	cmd := &cobra.Command{
		Use:   "resolve [manifest]",
		Short: "Show the background timeline after gap resolution without rendering",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			manifestPath, err := resolveManifestPath(cfg, args)
			if err != nil {
				return err
			}
			m, req, err := loadRequest(manifestPath)
			if err != nil {
				return err
			}
			if err := timeline.CheckContiguous(req.background); err != nil {
				return fmt.Errorf("manifest %s: %w", manifestPath, err)
			}
			captions, err := timeline.NewCaptionTrack(req.captions)
			if err != nil {
				return fmt.Errorf("manifest %s: %w", manifestPath, err)
			}

			resolved := engine.ResolveGaps(req.background)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderSegments(resolved))

			if timeline.AllAbsent(resolved) {
				return engine.ErrUnresolvableTimeline
			}

			// Длительность аудио берётся только из манифеста, без ffprobe.
			audio := 0.0
			if req.audio != nil {
				audio = req.audio.Duration
			}
			if d, source, err := timeline.ReconcileDuration(audio, resolved, captions); err == nil {
				fmt.Fprintf(out, "Duration: %.2fs (from %s)\n", d, source)
			} else {
				fmt.Fprintf(out, "Duration: unknown (%v)\n", err)
			}

			if writeFlag != "" {
				if err := manifest.Write(manifest.FromTimeline(resolved, req.captions, m.Audio), writeFlag); err != nil {
					return fmt.Errorf("write resolved manifest: %w", err)
				}
				fmt.Fprintf(out, "Resolved manifest written to %s\n", writeFlag)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&writeFlag, "write", "", "Write the resolved timeline as a manifest")
	return cmd
}

func renderSegments(segs []timeline.BackgroundSegment) string {
	headers := []string{"#", "Interval", "Length", "Source"}
	aligns := []columnAlignment{alignRight, alignLeft, alignRight, alignLeft}

	rows := make([][]string, 0, len(segs))
	for i, s := range segs {
		rows = append(rows, []string{
			strconv.Itoa(i),
			formatInterval(s.Interval),
			fmt.Sprintf("%.2fs", s.Interval.Duration()),
			formatMedia(s.Media),
		})
	}
	return renderTable(headers, rows, aligns)
}
