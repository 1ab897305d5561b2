package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/factlens/internal/auth"
	"github.com/hazyhaar/factlens/internal/db"
	"github.com/hazyhaar/factlens/internal/evaluation"
	"github.com/hazyhaar/factlens/internal/llm"
	"github.com/hazyhaar/factlens/internal/metrics"
	"github.com/hazyhaar/factlens/pkg/audit"
	"github.com/hazyhaar/factlens/pkg/trace"
)

const analysisReply = `{"perspective":"Checks records","analysis":"The figures contradict the claim.",` +
	`"confidence_score":0.8,"key_findings":["figures differ"],"supporting_evidence":[],` +
	`"verdict":"FALSE","reasoning":"Official data disagrees."}`

type fakeGateway struct {
	failSynthesis atomic.Bool
}

func (g *fakeGateway) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	if len(req.Messages) > 0 && strings.HasPrefix(req.Messages[0].Content, "You synthesize") {
		if g.failSynthesis.Load() {
			return nil, llm.ErrNoProviders
		}
		return &llm.Response{Provider: "fake", Model: "f1", Content: "The statement is false."}, nil
	}
	return &llm.Response{Provider: "fake", Model: "f1", Content: analysisReply}, nil
}

type fixture struct {
	api    *API
	srv    *httptest.Server
	db     *db.DB
	gw     *fakeGateway
	ledger *db.MetricsDB
}

func newFixture(t *testing.T, opts ...func(*API)) *fixture {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Open(filepath.Join(dir, "factlens.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	ledger, err := db.OpenMetrics(filepath.Join(dir, "metrics.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ledger.Close() })

	gw := &fakeGateway{}
	roles := []evaluation.Role{
		{Name: "fact_checker", Perspective: "Checks records", System: "You check facts.", Instructions: []string{"Check the claim"}},
		{Name: "nerd", Perspective: "Reads the data", System: "You read data.", Instructions: []string{"Check the numbers"}},
	}
	orch := evaluation.NewOrchestrator(
		evaluation.NewRoleEvaluators(roles, gw, nil, evaluation.EvaluatorOptions{}),
		evaluation.NewSynthesizer(gw),
		evaluation.WithAgentTimeout(5*time.Second),
	)

	m := metrics.New()
	a := New(database, auth.New("test-secret", 60), orch, nil)
	a.SetMetrics(m)
	a.SetMetricsDB(ledger)
	a.SetRateLimiter(NewRateLimiter(3, time.Minute))
	for _, opt := range opts {
		opt(a)
	}

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return &fixture{api: a, srv: srv, db: database, gw: gw, ledger: ledger}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (f *fixture) scrape(t *testing.T) string {
	t.Helper()
	resp, err := http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	return body.String()
}

func (f *fixture) register(t *testing.T, handle string) string {
	t.Helper()
	resp, out := f.do(t, "POST", "/api/register", "", map[string]string{"handle": handle, "password": "correct-horse"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, body %v", resp.StatusCode, out)
	}
	return out["token"].(string)
}

func TestRegisterLogin(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, "alice")

	resp, out := f.do(t, "GET", "/api/me", token, nil)
	if resp.StatusCode != http.StatusOK || out["handle"] != "alice" || out["role"] != "user" {
		t.Errorf("me = %d %v", resp.StatusCode, out)
	}
	if resp, _ := f.do(t, "GET", "/api/me", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous me = %d, want 401", resp.StatusCode)
	}

	tests := []struct {
		name string
		path string
		body map[string]string
		want int
	}{
		{"duplicate", "/api/register", map[string]string{"handle": "alice", "password": "correct-horse"}, http.StatusConflict},
		{"short handle", "/api/register", map[string]string{"handle": "al", "password": "correct-horse"}, http.StatusBadRequest},
		{"bad handle", "/api/register", map[string]string{"handle": "al ice", "password": "correct-horse"}, http.StatusBadRequest},
		{"weak password", "/api/register", map[string]string{"handle": "bob", "password": "short"}, http.StatusBadRequest},
		{"login", "/api/login", map[string]string{"handle": "alice", "password": "correct-horse"}, http.StatusOK},
		{"wrong password", "/api/login", map[string]string{"handle": "alice", "password": "nope-nope"}, http.StatusUnauthorized},
		{"unknown user", "/api/login", map[string]string{"handle": "nobody", "password": "correct-horse"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := f.do(t, "POST", tt.path, "", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (body %v)", resp.StatusCode, tt.want, out)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, "alice")

	resp, _ := f.do(t, "POST", "/api/evaluate", "", map[string]string{"statement": "x"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", resp.StatusCode)
	}

	resp, _ = f.do(t, "POST", "/api/evaluate", token, map[string]string{"statement": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty statement status = %d, want 400", resp.StatusCode)
	}

	resp, _ = f.do(t, "POST", "/api/evaluate", token, EvaluateRequest{Statement: strings.Repeat("x", evaluation.MaxStatementLen+1)})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("long statement status = %d, want 400", resp.StatusCode)
	}

	resp, out := f.do(t, "POST", "/api/evaluate", token, EvaluateRequest{
		Statement: "Crime has doubled since 2010.",
		Speaker:   "Jane Doe",
		Agents:    []string{"fact_checker", "ghost"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("evaluate status = %d, body %v", resp.StatusCode, out)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	id, _ := out["id"].(string)
	perspectives, _ := out["perspectives"].(map[string]any)
	if len(perspectives) != 2 {
		t.Fatalf("perspectives = %v, want fact_checker and ghost", perspectives)
	}
	ghost, _ := perspectives["ghost"].(map[string]any)
	if ghost["error"] == nil || ghost["verdict"] != string(evaluation.VerdictUnverifiable) {
		t.Errorf("ghost = %v, want error analysis", ghost)
	}
	synthesis, _ := out["synthesis"].(map[string]any)
	if synthesis["verdict"] != string(evaluation.VerdictFalse) {
		t.Errorf("synthesis verdict = %v", synthesis["verdict"])
	}

	resp, got := f.do(t, "GET", "/api/evaluations/"+id, "", nil)
	if resp.StatusCode != http.StatusOK || got["id"] != id {
		t.Errorf("get status = %d, id = %v", resp.StatusCode, got["id"])
	}
	resp, _ = f.do(t, "GET", "/api/evaluations/missing", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", resp.StatusCode)
	}

	resp, list := f.do(t, "GET", "/api/evaluations?mine=1", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	if items, _ := list["evaluations"].([]any); len(items) != 1 {
		t.Errorf("mine = %v, want one evaluation", list["evaluations"])
	}
	resp, _ = f.do(t, "GET", "/api/evaluations?mine=1", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous mine status = %d, want 401", resp.StatusCode)
	}
	resp, _ = f.do(t, "GET", "/api/evaluations?verdict=sideways", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad verdict status = %d, want 400", resp.StatusCode)
	}
	_, list = f.do(t, "GET", "/api/evaluations?verdict=true", "", nil)
	if items, _ := list["evaluations"].([]any); len(items) != 0 {
		t.Errorf("verdict filter = %v, want none", list["evaluations"])
	}

	if body := f.scrape(t); !strings.Contains(body, `factlens_verdicts_total{verdict="FALSE"} 1`) {
		t.Errorf("verdict not counted:\n%s", body)
	}
}

func TestEvaluate_SynthesisFailure(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, "alice")
	f.gw.failSynthesis.Store(true)

	resp, out := f.do(t, "POST", "/api/evaluate", token, EvaluateRequest{Statement: "x"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 (body %v)", resp.StatusCode, out)
	}
	list, err := f.db.ListReports(context.Background(), db.ListFilter{})
	if err != nil || len(list) != 0 {
		t.Errorf("stored = %v, %v; want nothing stored", list, err)
	}
}

func TestEvaluate_RateLimited(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, "alice")

	var codes []int
	for range 4 {
		resp, _ := f.do(t, "POST", "/api/evaluate", token, EvaluateRequest{Statement: "x", Agents: []string{"nerd"}})
		codes = append(codes, resp.StatusCode)
	}
	want := []int{201, 201, 201, 429}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
}

func TestAgentsHealthMetrics(t *testing.T) {
	f := newFixture(t)

	resp, out := f.do(t, "GET", "/api/agents", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("agents status = %d", resp.StatusCode)
	}
	agents, _ := out["agents"].([]any)
	if len(agents) != 2 {
		t.Fatalf("agents = %v", agents)
	}
	first := agents[0].(map[string]any)
	if first["name"] != "fact_checker" || first["perspective"] != "Checks records" {
		t.Errorf("first agent = %v", first)
	}

	resp, out = f.do(t, "GET", "/api/health", "", nil)
	if resp.StatusCode != http.StatusOK || out["status"] != "ok" {
		t.Errorf("health = %d %v", resp.StatusCode, out)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	resp, _ = f.do(t, "GET", "/api/evaluations/x/trace", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("trace without flows db = %d, want 503", resp.StatusCode)
	}

	if body := f.scrape(t); !strings.Contains(body, `factlens_http_requests_total{code="200",route="GET /api/health"} 1`) {
		t.Errorf("metrics output missing health request:\n%s", body)
	}

	var n int
	if err := f.ledger.QueryRow(`SELECT COUNT(*) FROM http_requests WHERE path = '/api/health'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("ledger rows = %d, want 1", n)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Error("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Error("other clients are independent")
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	if got := clientIP(r); got != "10.0.0.1" {
		t.Errorf("clientIP = %q", got)
	}
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.7" {
		t.Errorf("clientIP = %q", got)
	}
}

// memAudit keeps audit entries in memory and answers Recent synchronously.
type memAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memAudit) Log(_ context.Context, e *audit.Entry) error { m.LogAsync(e); return nil }

func (m *memAudit) LogAsync(e *audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
}

func (m *memAudit) Close() error { return nil }

func (m *memAudit) Recent(_ context.Context, q audit.Query) ([]audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []audit.Entry{}
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if (q.Action == "" || e.Action == q.Action) && (q.UserID == "" || e.UserID == q.UserID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestAudit(t *testing.T) {
	f := newFixture(t, func(a *API) { a.SetAuditLogger(&memAudit{}) })
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	resp, _ := f.do(t, "GET", "/api/audit", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous audit = %d, want 401", resp.StatusCode)
	}

	resp, out := f.do(t, "POST", "/api/evaluate", alice, EvaluateRequest{Statement: "x", Agents: []string{"nerd"}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("evaluate status = %d, body %v", resp.StatusCode, out)
	}

	resp, out = f.do(t, "GET", "/api/audit", alice, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit status = %d", resp.StatusCode)
	}
	entries, _ := out["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("alice entries = %v, want 1", entries)
	}
	e := entries[0].(map[string]any)
	if e["action"] != "evaluate_statement" || e["status"] != "success" {
		t.Errorf("entry = %v", e)
	}
	if params, _ := e["parameters"].(string); !strings.Contains(params, `"statement":"x"`) {
		t.Errorf("parameters = %q, want the request body", params)
	}

	_, out = f.do(t, "GET", "/api/audit", bob, nil)
	if entries, _ := out["entries"].([]any); len(entries) != 0 {
		t.Errorf("bob sees %d entries of alice", len(entries))
	}
}

func TestAudit_Disabled(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, "carol")
	resp, _ := f.do(t, "GET", "/api/audit", token, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("audit without logger = %d, want 503", resp.StatusCode)
	}
}

func TestHealth_TraceStats(t *testing.T) {
	var store *trace.Store
	f := newFixture(t, func(a *API) {
		store = trace.NewStore(a.db.DB, nil)
		if err := store.Init(); err != nil {
			t.Fatal(err)
		}
		a.db.SetTracer(store)
		a.SetTraceStore(store)
	})
	t.Cleanup(func() { store.Close() })

	token := f.register(t, "dave")
	if resp, _ := f.do(t, "POST", "/api/evaluate", token, EvaluateRequest{Statement: "x", Agents: []string{"nerd"}}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("evaluate status = %d", resp.StatusCode)
	}

	_, out := f.do(t, "GET", "/api/health", "", nil)
	st, _ := out["store_trace"].(map[string]any)
	if st == nil || st["recorded"].(float64) < 1 || st["dropped"].(float64) != 0 {
		t.Errorf("store_trace = %v", out["store_trace"])
	}
}
