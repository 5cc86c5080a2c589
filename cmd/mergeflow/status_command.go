package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"mergeflow/internal/api"
	"mergeflow/internal/config"
	"mergeflow/internal/preflight"
)

type statusReport struct {
	DaemonRunning bool               `json:"daemon_running"`
	Address       string             `json:"address"`
	Sessions      int                `json:"sessions"`
	Checks        []preflight.Result `json:"checks"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon reachability and dependency checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := statusReport{Address: clientAddress(cfg.API.Bind)}
			remote, err := fetchDaemonStatus(cmd.Context(), cfg)
			if err == nil {
				report.DaemonRunning = true
				report.Sessions = remote.Sessions
				report.Checks = remote.Checks
			} else {
				report.Checks = preflight.RunAll(cmd.Context(), cfg)
			}
			if asJSON {
				return writeJSON(cmd, report)
			}
			renderStatus(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func fetchDaemonStatus(ctx context.Context, cfg *config.Config) (api.StatusResponse, error) {
	var status api.StatusResponse
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	url := "http://" + clientAddress(cfg.API.Bind) + "/api/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return status, err
	}
	if cfg.API.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.API.Token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return status, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return status, fmt.Errorf("daemon status: %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&status)
	return status, err
}

// clientAddress turns a listen address into one a local client can dial.
func clientAddress(bind string) string {
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return bind
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func renderStatus(out io.Writer, report statusReport) {
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}
	paint := func(c text.Color, s string) string {
		if !color {
			return s
		}
		return c.Sprint(s)
	}

	if report.DaemonRunning {
		fmt.Fprintf(out, "Daemon: %s at %s (%d active sessions)\n", paint(text.FgGreen, "running"), report.Address, report.Sessions)
	} else {
		fmt.Fprintf(out, "Daemon: %s (checks below ran locally)\n", paint(text.FgYellow, "not running"))
	}

	rows := make([][]string, 0, len(report.Checks))
	for _, c := range report.Checks {
		state := paint(text.FgGreen, "ok")
		if !c.Passed {
			state = paint(text.FgRed, "fail")
		}
		rows = append(rows, []string{c.Name, state, dash(c.Detail)})
	}
	fmt.Fprintln(out, renderTable([]string{"Check", "State", "Detail"}, rows, nil))
	if failed := len(preflight.Failed(report.Checks)); failed > 0 {
		fmt.Fprintln(out, strconv.Itoa(failed)+" checks failed")
	}
}
