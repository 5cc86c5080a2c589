package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mergeflow/internal/api"
	"mergeflow/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history [owner]",
		Short: "Show recent runs and statistics per owner",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				top, err := store.TopOwners(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, top)
				}
				if len(top) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				fmt.Fprintln(out, renderStatsTable(top))
				return nil
			}

			owner, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid owner %q", args[0])
			}
			runs, err := store.RecentRuns(cmd.Context(), owner, limit)
			if err != nil {
				return err
			}
			stats, found, err := store.Stats(cmd.Context(), owner)
			if err != nil {
				return err
			}
			if asJSON {
				resp := api.HistoryResponse{Runs: runs}
				if found {
					resp.Stats = &stats
				}
				if resp.Runs == nil {
					resp.Runs = []history.Run{}
				}
				return writeJSON(cmd, resp)
			}
			if !found {
				fmt.Fprintf(out, "No runs recorded for owner %d\n", owner)
				return nil
			}
			fmt.Fprintln(out, renderStatsTable([]history.Stats{stats}))
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.StartedAt.Local().Format("2006-01-02 15:04"),
					r.RunID,
					r.Outcome,
					fmt.Sprintf("%d/%d", r.Succeeded, r.Total),
					strconv.Itoa(r.Failed),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String(),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Started", "Run", "Outcome", "Merged", "Failed", "Duration"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderStatsTable(stats []history.Stats) string {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			strconv.FormatInt(s.OwnerID, 10),
			strconv.Itoa(s.Runs),
			strconv.Itoa(s.PairsMerged),
			strconv.Itoa(s.PairsFailed),
			s.LastRunAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return renderTable(
		[]string{"Owner", "Runs", "Merged", "Failed", "Last run"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}
