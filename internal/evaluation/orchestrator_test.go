package evaluation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/factlens/internal/llm"
)

type gatewayFunc func(ctx context.Context, req llm.Request) (*llm.Response, error)

func (f gatewayFunc) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return f(ctx, req)
}

func reply(content string) gatewayFunc {
	return func(context.Context, llm.Request) (*llm.Response, error) {
		return &llm.Response{Provider: "fake", Model: "fake-1", Content: content}, nil
	}
}

type stubEvaluator struct {
	name string
	fn   func(ctx context.Context) (AgentAnalysis, error)
}

func (s stubEvaluator) Name() string { return s.name }

func (s stubEvaluator) Evaluate(ctx context.Context, _ Statement, _ string) (AgentAnalysis, error) {
	return s.fn(ctx)
}

func succeed(name string, conf float64, text string) Evaluator {
	return stubEvaluator{name: name, fn: func(context.Context) (AgentAnalysis, error) {
		return AgentAnalysis{
			Perspective:     name + " view",
			Analysis:        text,
			ConfidenceScore: conf,
			Verdict:         VerdictUnverifiable,
			Reasoning:       "r",
		}, nil
	}}
}

func fail(name string, err error) Evaluator {
	return stubEvaluator{name: name, fn: func(context.Context) (AgentAnalysis, error) {
		return AgentAnalysis{}, err
	}}
}

type recordingObserver struct {
	mu         sync.Mutex
	evaluators map[string]string
	evaluation string
}

func (r *recordingObserver) EvaluatorDone(agent, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evaluators == nil {
		r.evaluators = map[string]string{}
	}
	r.evaluators[agent] = outcome
}

func (r *recordingObserver) EvaluationDone(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluation = outcome
}

var testStatement = Statement{
	Text:    "Unemployment is at its lowest level in 40 years.",
	Speaker: Speaker{Name: "Jane Doe", Role: "Senator"},
}

func TestEvaluateStatement_PartialFailure(t *testing.T) {
	obs := &recordingObserver{}
	o := NewOrchestrator([]Evaluator{
		succeed("fact_checker", 0.9, "inconclusive"),
		succeed("conspirator", 0.6, "inconclusive"),
		succeed("simple_joe", 0.3, "inconclusive"),
		fail("nerd", errors.New("rate limited")),
	}, NewSynthesizer(reply("The claim is largely accurate.")),
		WithIDFunc(func() string { return "eval-1" }),
		WithObserver(obs),
	)

	r, err := o.EvaluateStatement(context.Background(), testStatement, "", nil)
	if err != nil {
		t.Fatalf("EvaluateStatement: %v", err)
	}
	if r.ID != "eval-1" {
		t.Errorf("id = %q", r.ID)
	}
	if len(r.Perspectives) != 4 {
		t.Fatalf("perspectives = %d, want 4", len(r.Perspectives))
	}
	if diff := cmp.Diff([]string{"nerd"}, r.Failed()); diff != "" {
		t.Errorf("failed mismatch (-want +got):\n%s", diff)
	}
	if got := r.Perspectives["nerd"].Error; got != "rate limited" {
		t.Errorf("nerd error = %q", got)
	}
	for name, a := range r.Perspectives {
		if a.Agent != name {
			t.Errorf("entry %q has agent %q", name, a.Agent)
		}
	}

	// Only the three successes contribute: mean 0.6 at full consensus.
	if r.ConsensusLevel != 1.0 {
		t.Errorf("consensus = %v, want 1.0", r.ConsensusLevel)
	}
	if r.Synthesis.Confidence != 0.6 {
		t.Errorf("confidence = %v, want 0.6", r.Synthesis.Confidence)
	}
	if r.Synthesis.Verdict != VerdictTrue {
		t.Errorf("verdict = %v, want TRUE", r.Synthesis.Verdict)
	}
	if r.Digest.QuickSummary == "" {
		t.Error("digest not built")
	}

	want := map[string]string{"fact_checker": "ok", "conspirator": "ok", "simple_joe": "ok", "nerd": "error"}
	if diff := cmp.Diff(want, obs.evaluators); diff != "" {
		t.Errorf("observer mismatch (-want +got):\n%s", diff)
	}
	if obs.evaluation != "partial" {
		t.Errorf("evaluation outcome = %q, want partial", obs.evaluation)
	}
}

func TestEvaluateStatement_AllFail(t *testing.T) {
	names := []string{"fact_checker", "conspirator", "simple_joe", "nerd"}
	var evs []Evaluator
	for _, n := range names {
		evs = append(evs, fail(n, errors.New("provider down")))
	}
	o := NewOrchestrator(evs, NewSynthesizer(reply("Nothing to go on.")))

	r, err := o.EvaluateStatement(context.Background(), testStatement, "", nil)
	if err != nil {
		t.Fatalf("EvaluateStatement: %v", err)
	}
	if diff := cmp.Diff(names, r.Failed()); diff != "" {
		t.Errorf("failed mismatch (-want +got):\n%s", diff)
	}
	if r.ConsensusLevel != 0.5 {
		t.Errorf("consensus = %v, want 0.5", r.ConsensusLevel)
	}
	if r.Synthesis.Confidence != 0.38 {
		t.Errorf("confidence = %v, want 0.38", r.Synthesis.Confidence)
	}
	if len(r.Synthesis.ActionItems) != 0 {
		t.Errorf("action items from error entries: %v", r.Synthesis.ActionItems)
	}
}

func TestEvaluateStatement_Selection(t *testing.T) {
	o := NewOrchestrator([]Evaluator{
		succeed("a", 0.5, "x"),
		succeed("b", 0.5, "y"),
		succeed("a", 0.9, "shadowed"),
	}, NewSynthesizer(reply("ok")))

	if diff := cmp.Diff([]string{"a", "b"}, o.Agents()); diff != "" {
		t.Errorf("agents mismatch (-want +got):\n%s", diff)
	}

	r, err := o.EvaluateStatement(context.Background(), testStatement, "", []string{"a", "ghost", "a"})
	if err != nil {
		t.Fatalf("EvaluateStatement: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "ghost"}, r.Agents); diff != "" {
		t.Errorf("report agents mismatch (-want +got):\n%s", diff)
	}
	if len(r.Perspectives) != 2 {
		t.Errorf("perspectives = %d, want 2", len(r.Perspectives))
	}
	if got := r.Perspectives["ghost"].Error; got != ErrUnknownEvaluator.Error() {
		t.Errorf("ghost error = %q", got)
	}
	if got := r.Perspectives["a"].ConfidenceScore; got != 0.5 {
		t.Errorf("duplicate registration replaced the first: confidence %v", got)
	}

	r, err = o.EvaluateStatement(context.Background(), testStatement, "", nil)
	if err != nil {
		t.Fatalf("EvaluateStatement: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, r.Agents); diff != "" {
		t.Errorf("default selection mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateStatement_TimeoutAndPanic(t *testing.T) {
	obs := &recordingObserver{}
	slow := stubEvaluator{name: "slow", fn: func(ctx context.Context) (AgentAnalysis, error) {
		<-ctx.Done()
		return AgentAnalysis{}, ctx.Err()
	}}
	broken := stubEvaluator{name: "broken", fn: func(context.Context) (AgentAnalysis, error) {
		panic("boom")
	}}
	o := NewOrchestrator([]Evaluator{slow, broken, succeed("fine", 0.8, "accurate")},
		NewSynthesizer(reply("ok")),
		WithAgentTimeout(20*time.Millisecond),
		WithObserver(obs),
	)

	r, err := o.EvaluateStatement(context.Background(), testStatement, "", nil)
	if err != nil {
		t.Fatalf("EvaluateStatement: %v", err)
	}
	if got := r.Perspectives["slow"].Error; !strings.Contains(got, "deadline exceeded") {
		t.Errorf("slow error = %q, want deadline exceeded", got)
	}
	if got := r.Perspectives["broken"].Error; got != "panic: boom" {
		t.Errorf("broken error = %q, want panic: boom", got)
	}
	if !r.Perspectives["fine"].Usable() {
		t.Error("healthy evaluator affected by its siblings")
	}
	if obs.evaluators["broken"] != "panic" || obs.evaluators["slow"] != "error" {
		t.Errorf("observer outcomes = %v", obs.evaluators)
	}
}

func TestEvaluateStatement_RunsConcurrently(t *testing.T) {
	const n = 4
	var arrived sync.WaitGroup
	arrived.Add(n)
	all := make(chan struct{})
	go func() {
		arrived.Wait()
		close(all)
	}()

	var evs []Evaluator
	for _, name := range []string{"a", "b", "c", "d"} {
		evs = append(evs, stubEvaluator{name: name, fn: func(ctx context.Context) (AgentAnalysis, error) {
			arrived.Done()
			select {
			case <-all:
				return AgentAnalysis{Analysis: "x", Perspective: "p", Reasoning: "r"}, nil
			case <-ctx.Done():
				return AgentAnalysis{}, ctx.Err()
			}
		}})
	}
	o := NewOrchestrator(evs, NewSynthesizer(reply("ok")), WithAgentTimeout(5*time.Second))

	r, err := o.EvaluateStatement(context.Background(), testStatement, "", nil)
	if err != nil {
		t.Fatalf("EvaluateStatement: %v", err)
	}
	if failed := r.Failed(); len(failed) != 0 {
		t.Errorf("evaluators did not overlap, failed: %v", failed)
	}
}

func TestEvaluateStatement_SynthesisFailure(t *testing.T) {
	gw := gatewayFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, llm.ErrUnauthorized
	})
	obs := &recordingObserver{}
	o := NewOrchestrator([]Evaluator{succeed("a", 0.5, "x")}, NewSynthesizer(gw), WithObserver(obs))

	r, err := o.EvaluateStatement(context.Background(), testStatement, "", nil)
	if r != nil {
		t.Errorf("report = %+v, want nil", r)
	}
	var sf *SynthesisFailure
	if !errors.As(err, &sf) {
		t.Fatalf("err = %v, want *SynthesisFailure", err)
	}
	if !errors.Is(err, llm.ErrUnauthorized) {
		t.Errorf("err = %v, want to wrap ErrUnauthorized", err)
	}
	if obs.evaluation != "failed" {
		t.Errorf("evaluation outcome = %q", obs.evaluation)
	}
}

type fixedResearcher struct{ brief ResearchBrief }

func (f fixedResearcher) Research(context.Context, Statement) ResearchBrief { return f.brief }

func TestEvaluateStatement_Research(t *testing.T) {
	var seen string
	ev := stubEvaluator{name: "a", fn: func(ctx context.Context) (AgentAnalysis, error) {
		seen = researchFrom(ctx)
		return AgentAnalysis{Analysis: "x"}, nil
	}}
	brief := ResearchBrief{Summary: "Prior fact-checks rate this mostly true.", Findings: map[string]string{}}
	o := NewOrchestrator([]Evaluator{ev}, NewSynthesizer(reply("ok")), WithResearcher(fixedResearcher{brief}))

	r, err := o.EvaluateStatement(context.Background(), testStatement, "", nil)
	if err != nil {
		t.Fatalf("EvaluateStatement: %v", err)
	}
	if r.Research == nil || r.Research.Summary != brief.Summary {
		t.Errorf("research = %+v", r.Research)
	}
	if seen != brief.Summary {
		t.Errorf("evaluator saw research %q", seen)
	}
}

func TestEvaluateStatement_FailedResearchSummaryStaysOutOfPrompts(t *testing.T) {
	seen := "unset"
	ev := stubEvaluator{name: "a", fn: func(ctx context.Context) (AgentAnalysis, error) {
		seen = researchFrom(ctx)
		return AgentAnalysis{Analysis: "x"}, nil
	}}
	brief := ResearchBrief{
		Summary:      "Failed to generate summary: no providers",
		SummaryError: "no providers",
		Findings:     map[string]string{},
	}
	o := NewOrchestrator([]Evaluator{ev}, NewSynthesizer(reply("ok")), WithResearcher(fixedResearcher{brief}))

	r, err := o.EvaluateStatement(context.Background(), testStatement, "", nil)
	if err != nil {
		t.Fatalf("EvaluateStatement: %v", err)
	}
	if r.Research == nil || r.Research.SummaryError != "no providers" {
		t.Errorf("research = %+v, want the failure recorded", r.Research)
	}
	if seen != "" {
		t.Errorf("evaluator saw research %q, want none", seen)
	}
}

func TestEvaluateStatement_EvaluatorNameIsAuthoritative(t *testing.T) {
	ev := stubEvaluator{name: "nerd", fn: func(context.Context) (AgentAnalysis, error) {
		return AgentAnalysis{Agent: "impostor", Analysis: "x", Perspective: "p", Reasoning: "r"}, nil
	}}
	o := NewOrchestrator([]Evaluator{ev}, NewSynthesizer(reply("ok")))

	r, err := o.EvaluateStatement(context.Background(), testStatement, "", nil)
	if err != nil {
		t.Fatalf("EvaluateStatement: %v", err)
	}
	if got := r.Perspectives["nerd"].Agent; got != "nerd" {
		t.Errorf("Perspectives[nerd].Agent = %q, want nerd", got)
	}
}
