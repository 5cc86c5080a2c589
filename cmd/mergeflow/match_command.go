package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mergeflow/internal/matcher"
)

type matchRow struct {
	Key        string  `json:"key"`
	Source     string  `json:"source,omitempty"`
	Target     string  `json:"target,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
}

type matchReport struct {
	Pairs             []matchRow `json:"pairs"`
	UnmatchedSources  int        `json:"unmatched_sources"`
	UnmatchedTargets  int        `json:"unmatched_targets"`
	DroppedDuplicates int        `json:"dropped_duplicates"`
}

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var sources, targets []string
	var labelFlag string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "match --source <label> --target <label>",
		Short: "Preview how source and target files pair by episode",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			labelSource, err := labelSourceFor(cfg, labelFlag)
			if err != nil {
				return err
			}
			srcFiles, err := filesFromArgs(sources, labelSource, false)
			if err != nil {
				return err
			}
			tgtFiles, err := filesFromArgs(targets, labelSource, false)
			if err != nil {
				return err
			}
			report := buildMatchReport(matcher.Match(srcFiles, tgtFiles))
			if asJSON {
				return writeJSON(cmd, report)
			}

			rows := make([][]string, 0, len(report.Pairs))
			for _, p := range report.Pairs {
				similarity := "-"
				if p.Source != "" && p.Target != "" {
					similarity = fmt.Sprintf("%.0f%%", p.Similarity*100)
				}
				rows = append(rows, []string{p.Key, dash(p.Source), dash(p.Target), similarity})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Key", "Source", "Target", "Title match"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			fmt.Fprintf(out, "Unmatched: %d source, %d target. Dropped duplicates: %d\n",
				report.UnmatchedSources, report.UnmatchedTargets, report.DroppedDuplicates)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "Source file (repeatable, path::caption sets a caption)")
	cmd.Flags().StringArrayVarP(&targets, "target", "t", nil, "Target file (repeatable, path::caption sets a caption)")
	cmd.Flags().StringVar(&labelFlag, "label-source", "", "Label to parse: filename or caption (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func buildMatchReport(result matcher.Result) matchReport {
	report := matchReport{
		Pairs:             make([]matchRow, 0, len(result.Pairs)),
		UnmatchedSources:  result.UnmatchedSources,
		UnmatchedTargets:  result.UnmatchedTargets,
		DroppedDuplicates: result.DroppedDuplicates(),
	}
	for _, p := range result.Pairs {
		row := matchRow{Key: p.Key.String(), Similarity: p.TitleSimilarity}
		if p.Source != nil {
			row.Source = p.Source.Label()
		}
		if p.Target != nil {
			row.Target = p.Target.Label()
		}
		report.Pairs = append(report.Pairs, row)
	}
	return report
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
