package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mergeflow/internal/config"
	"mergeflow/internal/history"
	"mergeflow/internal/matcher"
	"mergeflow/internal/pipeline"
	"mergeflow/internal/transport"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var sources, targets []string
	var labelFlag, outboxFlag string
	var owner int64
	var asJSON, verbose bool

	cmd := &cobra.Command{
		Use:   "run --source <file> --target <file>",
		Short: "Merge local source audio into target videos once, without the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(verbose)
			if err != nil {
				return err
			}
			labelSource, err := labelSourceFor(cfg, labelFlag)
			if err != nil {
				return err
			}
			srcFiles, err := filesFromArgs(sources, labelSource, true)
			if err != nil {
				return err
			}
			tgtFiles, err := filesFromArgs(targets, labelSource, true)
			if err != nil {
				return err
			}
			match := matcher.Match(srcFiles, tgtFiles)
			if len(match.Valid()) == 0 {
				return errors.New("no source and target share an episode key")
			}

			outbox := cfg.Paths.OutboxDir
			if outboxFlag != "" {
				if outbox, err = config.ExpandPath(outboxFlag); err != nil {
					return err
				}
			}
			local, err := transport.NewLocal(outbox, cfg.ToolTimeout(), logger)
			if err != nil {
				return err
			}
			orch, err := pipeline.NewFromConfig(cfg, local, logger)
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			console := &consoleSink{out: cmd.ErrOrStderr()}
			sink := transport.NewThrottledSink(console, time.Duration(cfg.Progress.MinIntervalMS)*time.Millisecond, cfg.Progress.Burst)
			summary := orch.Run(signalCtx, pipeline.Request{OwnerID: owner, Match: match, Sink: sink})
			recordLocalRun(cfg, summary, cmd.ErrOrStderr())

			if asJSON {
				if err := writeJSON(cmd, summary); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), renderSummary(summary, local.Outbox()))
			}
			switch {
			case summary.Cancelled:
				return context.Canceled
			case summary.Error != "":
				return errors.New(summary.Error)
			case summary.Failed > 0:
				return fmt.Errorf("%d of %d pairs failed", summary.Failed, summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "Source file providing audio and subtitles (repeatable)")
	cmd.Flags().StringArrayVarP(&targets, "target", "t", nil, "Target video file (repeatable)")
	cmd.Flags().StringVar(&labelFlag, "label-source", "", "Label to parse: filename or caption (default from config)")
	cmd.Flags().StringVar(&outboxFlag, "outbox", "", "Directory receiving merged files (default from config)")
	cmd.Flags().Int64Var(&owner, "owner", 0, "Owner id recorded in history")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run summary as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level and mirror to the log directory")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

// consoleSink prints one line per progress event.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *consoleSink) Event(e pipeline.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	line := fmt.Sprintf("[%d/%d] %s %s", e.PairIndex+1, e.PairTotal, e.Key, e.Stage)
	if e.Percent >= 0 && !e.Stage.Terminal() {
		line += fmt.Sprintf(" %.0f%%", e.Percent)
	}
	if e.Message != "" {
		line += ": " + e.Message
	}
	fmt.Fprintln(c.out, line)
}

func (c *consoleSink) Finished(pipeline.Summary) {}

func recordLocalRun(cfg *config.Config, summary pipeline.Summary, warn io.Writer) {
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		fmt.Fprintf(warn, "warn: history unavailable: %v\n", err)
		return
	}
	defer store.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.RecordRun(ctx, summary); err != nil {
		fmt.Fprintf(warn, "warn: run not recorded in history: %v\n", err)
	}
}

func renderSummary(s pipeline.Summary, outbox string) string {
	rows := make([][]string, 0, len(s.Outcomes))
	for _, o := range s.Outcomes {
		detail := o.Output
		if o.Error != "" {
			detail = o.Error
		}
		rows = append(rows, []string{
			strconv.Itoa(o.Index + 1),
			o.Key,
			string(o.Status),
			yesNo(o.AudioInjected),
			yesNo(o.SubtitleInjected),
			o.Elapsed.Round(time.Second).String(),
			dash(detail),
		})
	}
	table := renderTable(
		[]string{"#", "Key", "Status", "Audio", "Subtitles", "Elapsed", "Output / error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
	return fmt.Sprintf("%s\nRun %s %s: %d/%d succeeded, %d failed. Output in %s",
		table, s.RunID, s.Outcome(), s.Succeeded, s.Total, s.Failed, outbox)
}
