package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/verdict/pkg/config"
	"mercator-hq/verdict/pkg/decisionlog"
	"mercator-hq/verdict/pkg/decisionlog/recorder"
	"mercator-hq/verdict/pkg/decisionlog/storage"
	"mercator-hq/verdict/pkg/dynamic"
	"mercator-hq/verdict/pkg/tablefile"
	"mercator-hq/verdict/pkg/telemetry/metrics"
	"mercator-hq/verdict/pkg/workspace"
)

const youngApplicant = `{"age": 25, "income": 50000, "chronic": false, "deductible_preference": "high"}`

type testServer struct {
	*httptest.Server
	logs *storage.MemoryStorage
}

func newTestServer(t *testing.T, configure ...func(*config.Config)) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	logs := storage.NewMemoryStorage()
	rec := recorder.NewRecorder(logs, &recorder.Config{Enabled: true, AsyncBuffer: 100, WriteTimeout: time.Second})
	t.Cleanup(func() { rec.Close() })

	collector := metrics.NewCollector(&config.MetricsConfig{Namespace: "verdict"}, prometheus.NewRegistry())
	ws := workspace.New(dynamic.NewMemoryStore(logger),
		workspace.WithRecorder(rec),
		workspace.WithMetrics(collector),
		workspace.WithLogger(logger),
	)

	doc, err := tablefile.LoadFile("testdata/health-plans.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.LoadDocuments(ctx, []*tablefile.Document{doc}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	for _, fn := range configure {
		fn(cfg)
	}
	srv := NewServer(cfg, ws,
		WithDecisionLog(logs),
		WithMetrics(collector),
		WithLogger(logger),
		WithBuildInfo(BuildInfo{Version: "1.2.3"}),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, logs: logs}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("invalid JSON %q: %v", data, err)
	}
	return out
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	body := decode(t, data)
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestSolve(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{name: "match", path: "/v1/rules/health-plans/solve", body: youngApplicant, status: http.StatusOK},
		{name: "fallback", path: "/v1/rules/health-plans/solve", body: `{"age": 40, "income": 1, "chronic": false, "deductible_preference": "low"}`, status: http.StatusOK},
		{name: "unknown rule", path: "/v1/rules/nope/solve", body: youngApplicant, status: http.StatusNotFound, code: "rule_not_found"},
		{name: "bad json", path: "/v1/rules/health-plans/solve", body: `{"age":`, status: http.StatusBadRequest, code: "bad_request"},
		{name: "not an object", path: "/v1/rules/health-plans/solve", body: `null`, status: http.StatusBadRequest, code: "bad_request"},
		{name: "type mismatch", path: "/v1/rules/health-plans/solve", body: `{"age": "old"}`, status: http.StatusUnprocessableEntity, code: "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := ts.do(t, http.MethodPost, tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.status, data)
			}
			if tt.code != "" && errorCode(t, data) != tt.code {
				t.Errorf("error code = %q, want %q", errorCode(t, data), tt.code)
			}
			if resp.Header.Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID header")
			}
		})
	}

	_, data := ts.do(t, http.MethodPost, "/v1/rules/health-plans/solve", youngApplicant)
	d := decode(t, data)
	resp := d["response"].(map[string]any)
	if resp["recommended_plan"] != "HSA" || d["row_id"] != "hsa" {
		t.Errorf("decision = %v", d)
	}
}

func TestBulk(t *testing.T) {
	ts := newTestServer(t)

	body := `{"requests": [` + youngApplicant + `, {"age": 70, "income": 1, "chronic": true, "deductible_preference": "low"}, {"age": "x"}]}`
	resp, data := ts.do(t, http.MethodPost, "/v1/rules/health-plans/bulk", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}

	out := decode(t, data)
	results := out["results"].([]any)
	if out["batch_id"] == "" || len(results) != 3 || out["failed"] != float64(1) {
		t.Fatalf("bulk = %v", out)
	}
	second := results[1].(map[string]any)["decision"].(map[string]any)
	if second["response"].(map[string]any)["recommended_plan"] != "PPO" {
		t.Errorf("results[1] = %v", second)
	}
	if e := results[2].(map[string]any)["error"].(map[string]any); e["code"] != "invalid_request" {
		t.Errorf("results[2] error = %v", e)
	}

	if resp, _ := ts.do(t, http.MethodPost, "/v1/rules/health-plans/bulk", `{"requests": []}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty batch status = %d, want 400", resp.StatusCode)
	}
}

func TestRules(t *testing.T) {
	ts := newTestServer(t)

	_, data := ts.do(t, http.MethodGet, "/v1/rules", "")
	if list := decode(t, data); list["count"] != float64(1) {
		t.Errorf("list = %v", list)
	}
	_, data = ts.do(t, http.MethodGet, "/v1/rules?folder=other", "")
	if list := decode(t, data); list["count"] != float64(0) {
		t.Errorf("filtered list = %v", list)
	}

	_, data = ts.do(t, http.MethodGet, "/v1/rules/health-plans", "")
	rule := decode(t, data)
	rows := rule["rows"].([]any)
	if rule["status"] != "VALID" || len(rows) != 3 {
		t.Fatalf("rule = %v", rule)
	}
	if rows[1].(map[string]any)["match"] != "any" || rows[2].(map[string]any)["match"] != "fallback" {
		t.Errorf("rows = %v", rows)
	}

	_, data = ts.do(t, http.MethodGet, "/v1/rules/health-plans?format=grid", "")
	if !strings.Contains(string(data), "between 18 and 35") {
		t.Errorf("grid = %s", data)
	}
	_, data = ts.do(t, http.MethodGet, "/v1/rules/health-plans?format=yaml", "")
	if !strings.Contains(string(data), "name: Health Insurance Plans") {
		t.Errorf("yaml = %s", data)
	}
	if resp, _ := ts.do(t, http.MethodGet, "/v1/rules/health-plans?format=xml", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("format=xml status = %d", resp.StatusCode)
	}
}

func TestTestAndPublish(t *testing.T) {
	ts := newTestServer(t)

	_, data := ts.do(t, http.MethodPost, "/v1/rules/health-plans/test", "")
	if report := decode(t, data); report["passed"] != float64(2) {
		t.Errorf("report = %v", report)
	}

	resp, data := ts.do(t, http.MethodPost, "/v1/rules/health-plans/publish", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish status = %d: %s", resp.StatusCode, data)
	}
	if v := decode(t, data); v["version"] != float64(1) {
		t.Errorf("version = %v", v)
	}

	_, data = ts.do(t, http.MethodGet, "/v1/rules/health-plans/versions", "")
	versions := decode(t, data)["versions"].([]any)
	if len(versions) != 1 || versions[0].(map[string]any)["document"] != "" {
		t.Errorf("versions = %v", versions)
	}

	if resp, _ := ts.do(t, http.MethodGet, "/v1/rules/nope/versions", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown rule versions status = %d", resp.StatusCode)
	}
}

func TestValues(t *testing.T) {
	ts := newTestServer(t)

	resp, data := ts.do(t, http.MethodPut, "/v1/values/income_cap", `{"value": 10000}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", resp.StatusCode, data)
	}
	if v := decode(t, data); v["type"] != "number" {
		t.Errorf("value = %v", v)
	}

	// Lowering the cap sends the young applicant to the fallback row.
	_, data = ts.do(t, http.MethodPost, "/v1/rules/health-plans/solve", youngApplicant)
	if d := decode(t, data); d["fallback"] != true {
		t.Errorf("decision = %v", d)
	}

	resp, data = ts.do(t, http.MethodDelete, "/v1/values/income_cap", "")
	if resp.StatusCode != http.StatusConflict || errorCode(t, data) != "value_referenced" {
		t.Errorf("DELETE referenced = %d %s", resp.StatusCode, data)
	}

	ts.do(t, http.MethodPut, "/v1/values/region", `{"value": "north"}`)
	if resp, _ := ts.do(t, http.MethodDelete, "/v1/values/region", ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d", resp.StatusCode)
	}
	if resp, _ := ts.do(t, http.MethodGet, "/v1/values/region", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET deleted status = %d", resp.StatusCode)
	}

	_, data = ts.do(t, http.MethodGet, "/v1/values", "")
	if values := decode(t, data)["values"].([]any); len(values) != 1 {
		t.Errorf("values = %v", values)
	}

	if resp, _ := ts.do(t, http.MethodPut, "/v1/values/9lives", `{"value": 1}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid name status = %d", resp.StatusCode)
	}
}

func TestDecisions(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 3; i++ {
		ts.do(t, http.MethodPost, "/v1/rules/health-plans/solve", youngApplicant)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, _ := ts.logs.Count(context.Background(), &decisionlog.Query{})
		if n == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("recorded %d decisions, want 3", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	_, data := ts.do(t, http.MethodGet, "/v1/decisions?slug=health-plans&status=success", "")
	out := decode(t, data)
	if out["total"] != float64(3) || len(out["decisions"].([]any)) != 3 {
		t.Errorf("decisions = %v", out)
	}

	resp, data := ts.do(t, http.MethodGet, "/v1/decisions?format=csv", "")
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv") || !strings.Contains(string(data), "health-plans") {
		t.Errorf("csv = %s %s", resp.Header.Get("Content-Type"), data)
	}

	for _, bad := range []string{"limit=5", "status=maybe", "since=yesterday", "limit=x"} {
		if resp, _ := ts.do(t, http.MethodGet, "/v1/decisions?"+bad, ""); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", bad, resp.StatusCode)
		}
	}
}

func TestOperationalEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/v1/rules/health-plans/solve", youngApplicant)

	for _, path := range []string{"/health/live", "/health/ready", "/version"} {
		if resp, data := ts.do(t, http.MethodGet, path, ""); resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d: %s", path, resp.StatusCode, data)
		}
	}

	_, data := ts.do(t, http.MethodGet, "/metrics", "")
	if !strings.Contains(string(data), "verdict_solves_total") {
		t.Errorf("metrics missing verdict_solves_total")
	}

	resp, data := ts.do(t, http.MethodGet, "/nowhere", "")
	if resp.StatusCode != http.StatusNotFound || errorCode(t, data) != "not_found" {
		t.Errorf("unknown route = %d %s", resp.StatusCode, data)
	}
	if resp, _ := ts.do(t, http.MethodDelete, "/v1/rules", ""); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /v1/rules status = %d", resp.StatusCode)
	}
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ws := workspace.New(dynamic.NewMemoryStore(logger), workspace.WithLogger(logger))
	srv := NewServer(config.Default(), ws, WithLogger(logger))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health/live"
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !srv.IsRunning() {
		t.Error("IsRunning() = false while serving")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}
