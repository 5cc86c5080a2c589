package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"mergeflow/internal/config"
	"mergeflow/internal/history"
	"mergeflow/internal/pipeline"
	"mergeflow/internal/services"
	"mergeflow/internal/testsupport"
)

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	payload, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "mergeflow.toml")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestParseCommand(t *testing.T) {
	out, _, err := runCLI(t, []string{"parse", "Show S02E05 1080p.mkv", "Show - 07.mkv"}, "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	requireContains(t, out, "S02E05")
	requireContains(t, out, "1080p")
	requireContains(t, out, "S01E07")

	out, _, err = runCLI(t, []string{"parse", "--json", "Show S02E05 720p.mkv"}, "")
	if err != nil {
		t.Fatalf("parse --json: %v", err)
	}
	var parsed []parsedLabel
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Info.Season != 2 || parsed[0].Info.Episode != 5 || parsed[0].Info.Quality != 720 {
		t.Fatalf("parsed = %+v", parsed)
	}
}

func TestSequenceCommandOrders(t *testing.T) {
	labels := []string{"S01E02 1080p", "S01E01 1080p", "S01E01 720p", "S01E02 720p"}

	out, _, err := runCLI(t, append([]string{"sequence", "--json"}, labels...), "")
	if err != nil {
		t.Fatalf("sequence: %v", err)
	}
	var got []string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"S01E01 720p", "S01E01 1080p", "S01E02 720p", "S01E02 1080p"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("episode order = %v, want %v", got, want)
	}

	out, _, err = runCLI(t, append([]string{"sequence", "--json", "--order", "quality"}, labels...), "")
	if err != nil {
		t.Fatalf("sequence quality: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want = []string{"S01E01 720p", "S01E02 720p", "S01E01 1080p", "S01E02 1080p"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("quality order = %v, want %v", got, want)
	}

	if _, _, err := runCLI(t, []string{"sequence", "--order", "bogus", "a"}, ""); err == nil {
		t.Fatal("expected unknown order to fail")
	}
}

func TestMatchCommandReportsUnmatched(t *testing.T) {
	cfgPath := writeTestConfig(t, testsupport.NewConfig(t))
	out, _, err := runCLI(t, []string{
		"match", "--json",
		"-s", "Show S01E01.mkv", "-s", "Show S01E02.mkv",
		"-t", "Show S01E02 1080p.mkv", "-t", "Show S01E03.mkv",
	}, cfgPath)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	var report matchReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Pairs) != 3 || report.UnmatchedSources != 1 || report.UnmatchedTargets != 1 {
		t.Fatalf("report = %+v", report)
	}
	if report.Pairs[1].Key != "S01E02" || report.Pairs[1].Source == "" || report.Pairs[1].Target == "" {
		t.Fatalf("middle pair = %+v", report.Pairs[1])
	}
}

func TestMatchCommandCaptionLabels(t *testing.T) {
	cfgPath := writeTestConfig(t, testsupport.NewConfig(t, testsupport.WithLabelSource("caption")))
	out, _, err := runCLI(t, []string{
		"match",
		"-s", "a.mkv::Show S01E04",
		"-t", "b.mkv::Show S01E04",
	}, cfgPath)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	requireContains(t, out, "S01E04")
	requireContains(t, out, "Unmatched: 0 source, 0 target")
}

func TestRunCommandRejectsMissingFiles(t *testing.T) {
	cfgPath := writeTestConfig(t, testsupport.NewConfig(t))
	_, _, err := runCLI(t, []string{"run", "-s", "/nonexistent/a.mkv", "-t", "/nonexistent/b.mkv"}, cfgPath)
	if err == nil || !strings.Contains(err.Error(), "inspect") {
		t.Fatalf("err = %v, want inspect failure", err)
	}
}

func TestRunCommandRequiresSharedKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfgPath := writeTestConfig(t, cfg)
	dir := t.TempDir()
	src := filepath.Join(dir, "Show S01E01.mkv")
	tgt := filepath.Join(dir, "Show S01E02.mkv")
	testsupport.WriteFile(t, src, 16)
	testsupport.WriteFile(t, tgt, 16)

	_, _, err := runCLI(t, []string{"run", "-s", src, "-t", tgt}, cfgPath)
	if err == nil || !strings.Contains(err.Error(), "episode key") {
		t.Fatalf("err = %v, want no-pairs failure", err)
	}
}

func TestHistoryCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfgPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, []string{"history"}, cfgPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No runs recorded")

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	started := time.Now().Add(-time.Minute)
	err = store.RecordRun(context.Background(), pipeline.Summary{
		RunID:      "run-a",
		OwnerID:    7,
		StartedAt:  started,
		FinishedAt: started.Add(30 * time.Second),
		Total:      2,
		Succeeded:  1,
		Failed:     1,
	})
	store.Close()
	if err != nil {
		t.Fatalf("record run: %v", err)
	}

	out, _, err = runCLI(t, []string{"history", "7"}, cfgPath)
	if err != nil {
		t.Fatalf("history 7: %v", err)
	}
	requireContains(t, out, "run-a")
	requireContains(t, out, "1/2")

	out, _, err = runCLI(t, []string{"history", "--json", "8"}, cfgPath)
	if err != nil {
		t.Fatalf("history 8: %v", err)
	}
	requireContains(t, out, `"runs": []`)

	if _, _, err := runCLI(t, []string{"history", "seven"}, cfgPath); err == nil {
		t.Fatal("expected invalid owner to fail")
	}
}

func TestStatusWithoutDaemonRunsLocalChecks(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.API.Bind = "127.0.0.1:1"
	cfgPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, []string{"status", "--json"}, cfgPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var report statusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.DaemonRunning || len(report.Checks) == 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestClientAddress(t *testing.T) {
	cases := map[string]string{
		"0.0.0.0:7487":   "127.0.0.1:7487",
		":7487":          "127.0.0.1:7487",
		"[::]:7487":      "127.0.0.1:7487",
		"10.0.0.5:80":    "10.0.0.5:80",
		"localhost:7487": "localhost:7487",
	}
	for in, want := range cases {
		if got := clientAddress(in); got != want {
			t.Errorf("clientAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConfigInitValidateShow(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("secret-token"))
	cfgPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, []string{"config", "validate"}, cfgPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	out, _, err = runCLI(t, []string{"config", "show"}, cfgPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "<redacted>")
	if strings.Contains(out, "secret-token") {
		t.Fatal("config show leaked the api token")
	}

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init without --overwrite to refuse an existing file")
	}
}

func TestConfigValidateStrict(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfgPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, []string{"config", "validate", "--strict"}, cfgPath)
	if err != nil {
		t.Fatalf("validate with stubbed tools: %v", err)
	}
	requireContains(t, out, "FFprobe")
	requireContains(t, out, "Configuration valid")

	cfg.Tools.FFmpeg = filepath.Join(t.TempDir(), "no-such-ffmpeg")
	cfgPath = writeTestConfig(t, cfg)
	if _, _, err := runCLI(t, []string{"config", "validate"}, cfgPath); err != nil {
		t.Fatalf("non-strict validate should tolerate missing tools: %v", err)
	}
	_, _, err = runCLI(t, []string{"config", "validate", "--strict"}, cfgPath)
	if err == nil || !strings.Contains(err.Error(), "FFmpeg") {
		t.Fatalf("strict validate err = %v, want FFmpeg reported", err)
	}
}

func TestExitCode(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int
	}{
		{context.Canceled, exitInterrupt},
		{services.Wrap(services.ErrConfiguration, "config", "load", "bad bind", nil), exitUsage},
		{services.Wrap(services.ErrMerge, "merging", "ffmpeg", "exit 1", nil), exitFailure},
		{errors.New("2 of 3 pairs failed"), exitFailure},
	} {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestConfigInitStdout(t *testing.T) {
	out, _, err := runCLI(t, []string{"config", "init", "--stdout"}, "")
	if err != nil {
		t.Fatalf("config init --stdout: %v", err)
	}
	if out != config.Sample() {
		t.Fatal("expected the embedded sample on stdout")
	}
}
