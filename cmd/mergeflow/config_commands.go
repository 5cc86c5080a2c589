package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"mergeflow/internal/config"
	"mergeflow/internal/deps"
	"mergeflow/internal/preflight"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and scaffold configuration",
	}
	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigValidateCommand(ctx),
		newConfigShowCommand(ctx),
	)
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		path      string
		overwrite bool
		toStdout  bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if toStdout {
				_, err := fmt.Fprint(out, config.Sample())
				return err
			}
			target, err := initTarget(path)
			if err != nil {
				return err
			}
			if !overwrite {
				switch _, err := os.Stat(target); {
				case err == nil:
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				case !errors.Is(err, fs.ErrNotExist):
					return fmt.Errorf("check config path: %w", err)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set api.token (or export MERGEFLOW_API_TOKEN) before exposing the daemon beyond localhost.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "Destination for the configuration file (default ~/.config/mergeflow/config.toml)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "Print the sample instead of writing it")
	return cmd
}

func initTarget(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return config.DefaultConfigPath()
	}
	target, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return target, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and report directories and tools",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			out := cmd.OutOrStdout()
			source := path
			if !exists {
				source += " (not found, defaults used)"
			}
			fmt.Fprintf(out, "Config path: %s\n\n", source)

			rows := [][]string{
				{"work_dir", cfg.Paths.WorkDir},
				{"outbox_dir", cfg.Paths.OutboxDir},
				{"state_dir", cfg.Paths.StateDir},
				{"log_dir", cfg.Paths.LogDir},
			}
			fmt.Fprintln(out, renderTable([]string{"Directory", "Path"}, rows, nil))

			statuses := preflight.CheckSystemDeps(cmd.Context(), cfg)
			fmt.Fprintln(out, renderTable([]string{"Tool", "Available", "Version / Detail"}, toolRows(statuses), nil))

			if missing := deps.Missing(statuses); strict && len(missing) > 0 {
				names := make([]string, len(missing))
				for i, m := range missing {
					names[i] = m.Name
				}
				return fmt.Errorf("required tools unavailable: %s", strings.Join(names, ", "))
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when a required tool is unavailable")
	return cmd
}

func toolRows(statuses []deps.Status) [][]string {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		detail := s.Version
		if !s.Available {
			detail = s.Detail
		}
		rows = append(rows, []string{s.Name, yesNo(s.Available), detail})
	}
	return rows
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			shown := *cfg
			if shown.API.Token != "" {
				shown.API.Token = "<redacted>"
			}
			payload, err := toml.Marshal(shown)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(payload)
			return err
		},
	}
}
