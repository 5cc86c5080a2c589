package main

import (
	"github.com/spf13/cobra"
)

const (
	groupMedia   = "media"
	groupService = "service"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	root := &cobra.Command{
		Use:           "mergeflow",
		Short:         "Pair episodes and merge dubbed audio into target videos",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	root.AddGroup(
		&cobra.Group{ID: groupMedia, Title: "Pairing and merging:"},
		&cobra.Group{ID: groupService, Title: "Daemon and state:"},
	)
	addGrouped(root, groupMedia,
		newParseCommand(),
		newSequenceCommand(),
		newMatchCommand(ctx),
		newProbeCommand(ctx),
		newRunCommand(ctx),
	)
	addGrouped(root, groupService,
		newDaemonCommand(ctx),
		newStatusCommand(ctx),
		newHistoryCommand(ctx),
		newConfigCommand(ctx),
	)
	return root
}

func addGrouped(root *cobra.Command, group string, cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.GroupID = group
		root.AddCommand(c)
	}
}
