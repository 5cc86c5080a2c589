package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mergeflow/internal/episode"
	"mergeflow/internal/media"
)

type parsedLabel struct {
	Label string             `json:"label"`
	Info  episode.ParsedInfo `json:"info"`
	Key   string             `json:"key"`
}

func newParseCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:         "parse <label>...",
		Short:       "Show the season, episode and quality read from labels",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make([]parsedLabel, 0, len(args))
			for _, label := range args {
				info := episode.Parse(label)
				parsed = append(parsed, parsedLabel{Label: label, Info: info, Key: info.Key().String()})
			}
			if asJSON {
				return writeJSON(cmd, parsed)
			}
			rows := make([][]string, 0, len(parsed))
			for _, p := range parsed {
				rows = append(rows, []string{
					p.Label,
					p.Key,
					strconv.Itoa(p.Info.Season),
					strconv.Itoa(p.Info.Episode),
					qualityLabel(p.Info.Quality),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Label", "Key", "Season", "Episode", "Quality"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newSequenceCommand() *cobra.Command {
	var orderFlag string
	var asJSON bool

	cmd := &cobra.Command{
		Use:         "sequence <label>...",
		Short:       "Order labels by episode or by quality",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := episode.ParseOrder(orderFlag)
			if err != nil {
				return err
			}
			files := make([]media.File, 0, len(args))
			for _, label := range args {
				files = append(files, media.NewFile(media.FileSpec{Name: label, Handle: label}, media.LabelFromFilename))
			}
			ordered := episode.Sequence(files, order)

			if asJSON {
				labels := make([]string, 0, len(ordered))
				for _, f := range ordered {
					labels = append(labels, f.Label())
				}
				return writeJSON(cmd, labels)
			}
			rows := make([][]string, 0, len(ordered))
			for i, f := range ordered {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					f.Label(),
					f.Key().String(),
					qualityLabel(f.Info().Quality),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Label", "Key", "Quality"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&orderFlag, "order", string(episode.OrderByEpisode), "Ordering: episode or quality")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func qualityLabel(q int) string {
	if q <= 0 {
		return "-"
	}
	return fmt.Sprintf("%dp", q)
}
