package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ivlev/clipweave/internal/media"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Show what ffprobe reports for a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := args[0]
			stat, err := os.Stat(path)
			if err != nil {
				return err
			}
			info, err := media.Probe(cmd.Context(), cfg.Tools.FFprobe, path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderProbe(path, uint64(stat.Size()), info))
			return nil
		},
	}
}

func renderProbe(path string, size uint64, info media.Info) string {
	rows := [][]string{
		{"File", path},
		{"Size", humanize.Bytes(size)},
		{"Video", yesNo(info.HasVideo)},
		{"Audio", yesNo(info.HasAudio)},
	}
	if info.HasVideo {
		rows = append(rows,
			[]string{"Frame", fmt.Sprintf("%dx%d", info.Width, info.Height)},
			[]string{"FPS", fmt.Sprintf("%.3f", info.FPS)},
		)
	}
	duration := "unknown"
	if info.Duration > 0 {
		duration = fmt.Sprintf("%.3fs", info.Duration)
	}
	rows = append(rows, []string{"Duration", duration})
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
