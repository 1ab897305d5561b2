package evaluation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/factlens/internal/config"
	"github.com/hazyhaar/factlens/internal/llm"
	"github.com/hazyhaar/factlens/internal/retrieval"
)

const validReply = `{"perspective":"Numbers first","analysis":"The rate was 4.1%, lowest since 1969.",` +
	`"confidence_score":0.85,"key_findings":["4.1% in 2018"],` +
	`"supporting_evidence":[{"source":"BLS","excerpt":"4.1 percent"}],` +
	`"verdict":"MOSTLY_TRUE","reasoning":"Official series agrees."}`

type searcherFunc func(ctx context.Context, q string) ([]retrieval.Result, error)

func (f searcherFunc) Search(ctx context.Context, q string) ([]retrieval.Result, error) {
	return f(ctx, q)
}

type memTracer struct {
	mu    sync.Mutex
	steps []TraceStep
}

func (m *memTracer) RecordStep(_ context.Context, s TraceStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, s)
	return nil
}

func nerdRole() Role {
	for _, r := range BuiltinRoles() {
		if r.Name == "nerd" {
			return r
		}
	}
	panic("nerd role missing")
}

func TestRoleEvaluator_Prompt(t *testing.T) {
	var got llm.Request
	gw := gatewayFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		got = req
		return &llm.Response{Content: "```json\n" + validReply + "\n```"}, nil
	})
	role := Role{
		Name:         "fact_checker",
		System:       "You check facts.",
		Instructions: []string{"Split the claims", "Check each one"},
	}
	ev := NewRoleEvaluator(role, gw, retrieval.NewToolbox(retrieval.Nop{}, 0), EvaluatorOptions{
		Generation: GenerationOptions{Model: "groq/llama", Temperature: 0.2, MaxTokens: 900},
	})

	stmt := Statement{
		Text:       "We killed Osama bin Laden.",
		Speaker:    Speaker{Name: "Barack Obama", Role: "President", Party: "Democratic"},
		Background: Background{Where: "White House", When: "2011-05-01"},
	}
	ctx := WithResearch(context.Background(), "Confirmed by DoD.")
	a, err := ev.Evaluate(ctx, stmt, "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if a.Agent != "fact_checker" || a.Verdict != VerdictTrue || a.ConfidenceScore != 0.85 {
		t.Errorf("analysis = %+v", a)
	}
	if got.Model != "groq/llama" || got.Temperature != 0.2 || got.MaxTokens != 900 {
		t.Errorf("generation options not forwarded: %+v", got)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(got.Messages))
	}
	system, user := got.Messages[0].Content, got.Messages[1].Content
	if !strings.HasPrefix(system, "You check facts.") || !strings.Contains(system, `"confidence_score"`) {
		t.Errorf("system prompt:\n%s", system)
	}
	if strings.Contains(system, "Available tools") {
		t.Error("tool instructions rendered for a role without tools")
	}
	for _, want := range []string{
		`Statement: "We killed Osama bin Laden."`,
		"Speaker: Barack Obama (President, Democratic)",
		"Where: White House",
		"When: 2011-05-01",
		"Context: None provided",
		"Research Summary:\nConfirmed by DoD.",
		"1. Split the claims\n2. Check each one",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}
}

func TestRoleEvaluator_ToolLoop(t *testing.T) {
	var queries []string
	searcher := searcherFunc(func(_ context.Context, q string) ([]retrieval.Result, error) {
		queries = append(queries, q)
		return []retrieval.Result{{Title: "BLS", URL: "https://bls.gov/x", Snippet: "4.1%"}}, nil
	})

	var requests []llm.Request
	gw := gatewayFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		requests = append(requests, req)
		switch len(requests) {
		case 1:
			return &llm.Response{Content: "Let me check.\nACTION: web_search: unemployment 2018"}, nil
		case 2:
			return &llm.Response{Content: "ACTION: teleport: anywhere"}, nil
		default:
			return &llm.Response{Content: validReply}, nil
		}
	})
	tracer := &memTracer{}
	ev := NewRoleEvaluator(nerdRole(), gw, retrieval.NewToolbox(searcher, 0), EvaluatorOptions{
		MaxToolSteps: 3,
		Tracer:       tracer,
	})

	ctx := WithFlowID(context.Background(), "flow-1")
	a, err := ev.Evaluate(ctx, testStatement, "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !a.Usable() || a.Verdict != VerdictTrue {
		t.Errorf("analysis = %+v", a)
	}
	if len(requests) != 3 {
		t.Fatalf("gateway calls = %d, want 3", len(requests))
	}
	if len(queries) != 1 || queries[0] != "unemployment 2018" {
		t.Errorf("queries = %v", queries)
	}

	if !strings.Contains(requests[0].Messages[0].Content, "academic_search: ") {
		t.Errorf("system prompt does not list tools:\n%s", requests[0].Messages[0].Content)
	}
	obs := requests[1].Messages[len(requests[1].Messages)-1].Content
	if !strings.HasPrefix(obs, "OBSERVATION: 1. BLS") {
		t.Errorf("first observation = %q", obs)
	}
	obs = requests[2].Messages[len(requests[2].Messages)-1].Content
	if obs != `OBSERVATION: tool error: unknown tool "teleport"` {
		t.Errorf("second observation = %q", obs)
	}

	if len(tracer.steps) != 3 {
		t.Fatalf("trace steps = %d, want 3", len(tracer.steps))
	}
	for i, s := range tracer.steps {
		if s.FlowID != "flow-1" || s.StepIndex != i || s.Agent != "nerd" {
			t.Errorf("step %d = %+v", i, s)
		}
	}
}

func TestRoleEvaluator_ToolBudget(t *testing.T) {
	searches := 0
	searcher := searcherFunc(func(context.Context, string) ([]retrieval.Result, error) {
		searches++
		return nil, errors.New("search backend down")
	})
	calls := 0
	var last string
	gw := gatewayFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		calls++
		last = req.Messages[len(req.Messages)-1].Content
		if last == toolBudgetExhausted {
			return &llm.Response{Content: validReply}, nil
		}
		return &llm.Response{Content: "ACTION: web_search: again"}, nil
	})
	ev := NewRoleEvaluator(nerdRole(), gw, retrieval.NewToolbox(searcher, 0), EvaluatorOptions{MaxToolSteps: 2})

	a, err := ev.Evaluate(context.Background(), testStatement, "ctx")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if searches != 2 {
		t.Errorf("searches = %d, want 2", searches)
	}
	if calls != 4 {
		t.Errorf("gateway calls = %d, want 4", calls)
	}
	if a.ConfidenceScore != 0.85 {
		t.Errorf("final reply not used: %+v", a)
	}
}

func TestRoleEvaluator_GatewayError(t *testing.T) {
	gw := gatewayFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, &llm.ProviderError{Provider: "groq", Err: llm.ErrRateLimited}
	})
	ev := NewRoleEvaluator(nerdRole(), gw, retrieval.NewToolbox(retrieval.Nop{}, 0), EvaluatorOptions{})

	_, err := ev.Evaluate(context.Background(), testStatement, "")
	var ef *EvaluatorFailure
	if !errors.As(err, &ef) || ef.Agent != "nerd" {
		t.Fatalf("err = %v, want *EvaluatorFailure for nerd", err)
	}
	if !errors.Is(err, llm.ErrRateLimited) {
		t.Errorf("err = %v, want to wrap ErrRateLimited", err)
	}
}

func TestRoleEvaluator_UnstructuredReply(t *testing.T) {
	ev := NewRoleEvaluator(Role{Name: "simple_joe", System: "s"},
		reply("Honestly, sounds about right to me."),
		retrieval.NewToolbox(retrieval.Nop{}, 0), EvaluatorOptions{})

	a, err := ev.Evaluate(context.Background(), testStatement, "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !a.Usable() {
		t.Error("unstructured reply should still be a usable analysis")
	}
	if a.Analysis != "Honestly, sounds about right to me." || a.Verdict != VerdictUnverifiable || a.ConfidenceScore != 0.5 {
		t.Errorf("analysis = %+v", a)
	}
}

func TestNewRoleEvaluator_DropsUnknownTools(t *testing.T) {
	role := Role{Name: "x", System: "s", Tools: []string{"web_search", "crystal_ball"}}
	ev := NewRoleEvaluator(role, reply("{}"), retrieval.NewToolbox(retrieval.Nop{}, 0), EvaluatorOptions{})
	if len(ev.tools) != 1 {
		t.Errorf("tools = %v, want only web_search", ev.tools)
	}
}

func TestRolesFromConfig(t *testing.T) {
	roles := RolesFromConfig([]config.CustomAgent{{Name: "historian", Task: "Compare with historical record", Tools: []string{"web_search"}}})
	if len(roles) != 5 {
		t.Fatalf("roles = %d, want 5", len(roles))
	}
	h := roles[4]
	if h.Name != "historian" || h.Perspective != "historian perspective" || len(h.Instructions) != 1 {
		t.Errorf("custom role = %+v", h)
	}
	want := []string{"fact_checker", "conspirator", "simple_joe", "nerd"}
	for i, n := range want {
		if roles[i].Name != n {
			t.Errorf("roles[%d] = %q, want %q", i, roles[i].Name, n)
		}
	}
}

func TestFilterRoles(t *testing.T) {
	roles := BuiltinRoles()
	kept, unknown := FilterRoles(roles, []string{"nerd", "ghost", "fact_checker", "nerd"})
	var names []string
	for _, r := range kept {
		names = append(names, r.Name)
	}
	if diff := cmp.Diff([]string{"nerd", "fact_checker"}, names); diff != "" {
		t.Errorf("kept mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"ghost"}, unknown); diff != "" {
		t.Errorf("unknown mismatch (-want +got):\n%s", diff)
	}
	if all, _ := FilterRoles(roles, nil); len(all) != len(roles) {
		t.Errorf("empty filter kept %d roles", len(all))
	}
}
