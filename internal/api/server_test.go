package api_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mergeflow/internal/api"
	"mergeflow/internal/history"
	"mergeflow/internal/logging"
	"mergeflow/internal/pipeline"
	"mergeflow/internal/preflight"
	"mergeflow/internal/session"
	"mergeflow/internal/transport"
)

type instantRunner struct{}

func (instantRunner) Run(_ context.Context, req pipeline.Request) pipeline.Summary {
	n := len(req.Match.Valid())
	req.Sink.Event(pipeline.Event{RunID: req.RunID, OwnerID: req.OwnerID, Stage: pipeline.StageCompleted})
	summary := pipeline.Summary{RunID: req.RunID, OwnerID: req.OwnerID, Total: n, Succeeded: n}
	req.Sink.Finished(summary)
	return summary
}

type fakeHistory struct{}

func (fakeHistory) RecentRuns(_ context.Context, owner int64, _ int) ([]history.Run, error) {
	if owner != 7 {
		return nil, nil
	}
	return []history.Run{{RunID: "r1", OwnerID: 7, Outcome: "completed", Total: 2, Succeeded: 2}}, nil
}

func (fakeHistory) Stats(_ context.Context, owner int64) (history.Stats, bool, error) {
	if owner != 7 {
		return history.Stats{}, false, nil
	}
	return history.Stats{OwnerID: 7, Runs: 1, PairsMerged: 2}, true, nil
}

func (fakeHistory) TopOwners(context.Context, int) ([]history.Stats, error) {
	return []history.Stats{{OwnerID: 7, PairsMerged: 2}}, nil
}

type fixture struct {
	srv *httptest.Server
	hub *transport.Hub
	reg *session.Registry
}

func newFixture(t *testing.T, opts api.Options) *fixture {
	t.Helper()
	hub := transport.NewHub(0)
	reg := session.NewRegistry(context.Background(), instantRunner{}, session.Options{
		Sink: func(int64, string) pipeline.Sink { return hub },
	}, logging.NewNop())
	t.Cleanup(func() { _ = reg.Shutdown(context.Background()) })

	server, err := api.New(api.Deps{
		Sessions: reg,
		Events:   hub,
		History:  fakeHistory{},
		Status: func(context.Context) []preflight.Result {
			return []preflight.Result{{Name: "Work directory", Passed: true}, {Name: "FFmpeg", Detail: "missing"}}
		},
	}, opts, logging.NewNop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, hub: hub, reg: reg}
}

func (f *fixture) do(t *testing.T, method, path, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t, api.Options{})

	resp, body := f.do(t, http.MethodPost, "/api/sessions/7", "", `{"label_source":"filename"}`)
	if resp.StatusCode != http.StatusCreated || body["phase"] != "collecting_source" {
		t.Fatalf("start = %d %v", resp.StatusCode, body)
	}
	resp, _ = f.do(t, http.MethodPost, "/api/sessions/7/files", "", `{"name":"Show S01E01.mkv","handle":"/tmp/a.mkv"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add source = %d", resp.StatusCode)
	}
	resp, body = f.do(t, http.MethodPost, "/api/sessions/7/advance", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("advance = %d %v", resp.StatusCode, body)
	}
	for _, name := range []string{"Dub S01E01.mkv", "Dub S01E02.mkv"} {
		resp, _ = f.do(t, http.MethodPost, "/api/sessions/7/files", "", `{"name":"`+name+`","handle":"/tmp/`+name+`"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("add target = %d", resp.StatusCode)
		}
	}

	resp, body = f.do(t, http.MethodPost, "/api/sessions/7/advance", "", "")
	if resp.StatusCode != http.StatusAccepted || body["warning"] == nil {
		t.Fatalf("mismatch advance = %d %v", resp.StatusCode, body)
	}
	resp, _ = f.do(t, http.MethodPost, "/api/sessions/7/confirm", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm = %d", resp.StatusCode)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, body = f.do(t, http.MethodGet, "/api/sessions/7/events", "", "")
		if body["last_summary"] != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no summary recorded: %v", body)
		}
		time.Sleep(10 * time.Millisecond)
	}
	summary := body["last_summary"].(map[string]any)
	if summary["total"].(float64) != 1 {
		t.Fatalf("summary = %v", summary)
	}
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t, api.Options{})

	resp, _ := f.do(t, http.MethodGet, "/api/sessions/9", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing session = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/api/sessions/abc", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad owner = %d", resp.StatusCode)
	}
	f.do(t, http.MethodPost, "/api/sessions/9", "", "")
	resp, body := f.do(t, http.MethodPost, "/api/sessions/9/advance", "", "")
	if resp.StatusCode != http.StatusBadRequest || body["kind"] != "validation" {
		t.Fatalf("advance empty = %d %v", resp.StatusCode, body)
	}
	resp, _ = f.do(t, http.MethodPost, "/api/sessions/9/confirm", "", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("confirm = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodPost, "/api/sessions/9/files", "", "{not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad body = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodDelete, "/api/sessions/9", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel = %d", resp.StatusCode)
	}
}

func TestBearerAuth(t *testing.T) {
	f := newFixture(t, api.Options{Token: "s3cret"})

	resp, _ := f.do(t, http.MethodGet, "/api/sessions", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/api/sessions", "wrong", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/api/sessions", "s3cret", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("good token = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/healthz", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, api.Options{RateLimitPerMinute: 2})
	for i := 0; i < 2; i++ {
		if resp, _ := f.do(t, http.MethodGet, "/api/sessions", "", ""); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d = %d", i, resp.StatusCode)
		}
	}
	resp, body := f.do(t, http.MethodGet, "/api/sessions", "", "")
	if resp.StatusCode != http.StatusTooManyRequests || body["error"] != "rate_limit_exceeded" {
		t.Fatalf("third request = %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q", resp.Header.Get("Retry-After"))
	}
}

func TestStatusAndHistory(t *testing.T) {
	f := newFixture(t, api.Options{})

	resp, body := f.do(t, http.MethodGet, "/api/status", "", "")
	if resp.StatusCode != http.StatusOK || body["ready"] != false {
		t.Fatalf("status = %d %v", resp.StatusCode, body)
	}
	if checks := body["checks"].([]any); len(checks) != 2 {
		t.Fatalf("checks = %v", checks)
	}

	resp, body = f.do(t, http.MethodGet, "/api/history/7", "", "")
	if resp.StatusCode != http.StatusOK || body["stats"] == nil || len(body["runs"].([]any)) != 1 {
		t.Fatalf("history = %d %v", resp.StatusCode, body)
	}
	_, body = f.do(t, http.MethodGet, "/api/history/8", "", "")
	if body["stats"] != nil || len(body["runs"].([]any)) != 0 {
		t.Fatalf("empty history = %v", body)
	}
	_, body = f.do(t, http.MethodGet, "/api/history", "", "")
	if len(body["owners"].([]any)) != 1 {
		t.Fatalf("leaderboard = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, api.Options{Token: "x"})
	resp, err := http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics = %d", resp.StatusCode)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	hub := transport.NewHub(0)
	reg := session.NewRegistry(context.Background(), instantRunner{}, session.Options{}, logging.NewNop())
	server, err := api.New(api.Deps{Sessions: reg, Events: hub}, api.Options{}, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := api.New(api.Deps{}, api.Options{}, nil); err == nil {
		t.Fatal("expected error without deps")
	}
}
