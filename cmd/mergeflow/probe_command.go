package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mergeflow/internal/config"
	"mergeflow/internal/media"
	"mergeflow/internal/media/ffmpeg"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "probe <path>",
		Short: "List the streams of a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(false)
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			prober := media.NewProber(ffmpeg.NewExecRunner(cfg.Tools.FFprobe, cfg.ToolTimeout(), logger), logger)
			result, err := prober.Probe(cmd.Context(), path)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, result)
			}

			rows := make([][]string, 0, len(result.Streams))
			for _, s := range result.Streams {
				channels := "-"
				if s.Channels > 0 {
					channels = strconv.Itoa(s.Channels)
				}
				rows = append(rows, []string{
					strconv.Itoa(s.Index),
					fmt.Sprintf("%s:%d", s.Kind, s.KindIndex),
					s.Codec,
					dash(s.Language),
					channels,
					formatSeconds(result.DurationFor(s)),
					yesNo(s.Default),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Stream", "Codec", "Language", "Channels", "Duration", "Default"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "Duration %s, %d video, %d audio, %d subtitle\n",
				formatSeconds(result.Duration),
				result.Count(media.KindVideo),
				result.Count(media.KindAudio),
				result.Count(media.KindSubtitle),
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
