// CLAUDE:SUMMARY Orchestrator — concurrent evaluator fan-out with per-agent timeout, failure isolation and a barrier before synthesis
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Researcher runs the optional pre-pass. It must not fail; problems are
// reported inside the brief.
type Researcher interface {
	Research(ctx context.Context, stmt Statement) ResearchBrief
}

// Observer receives outcome events, e.g. for Prometheus.
type Observer interface {
	EvaluatorDone(agent, outcome string, elapsed time.Duration)
	EvaluationDone(outcome string, elapsed time.Duration)
}

// Orchestrator owns the registered evaluators and the synthesizer.
type Orchestrator struct {
	evaluators []Evaluator
	byName     map[string]Evaluator
	synth      *Synthesizer
	research   Researcher
	observer   Observer
	timeout    time.Duration
	newID      func() string
	logger     *slog.Logger
}

type OrchestratorOption func(*Orchestrator)

// WithAgentTimeout bounds each evaluator call. Expiry is an ordinary
// evaluator failure.
func WithAgentTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.timeout = d }
}

func WithResearcher(r Researcher) OrchestratorOption {
	return func(o *Orchestrator) { o.research = r }
}

func WithObserver(obs Observer) OrchestratorOption {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithIDFunc sets the report ID generator.
func WithIDFunc(f func() string) OrchestratorOption {
	return func(o *Orchestrator) { o.newID = f }
}

func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator registers evaluators in order. A later evaluator with a
// name already taken is ignored.
func NewOrchestrator(evaluators []Evaluator, synth *Synthesizer, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		byName:  map[string]Evaluator{},
		synth:   synth,
		timeout: 90 * time.Second,
		newID:   uuid.NewString,
		logger:  slog.Default(),
	}
	for _, ev := range evaluators {
		if _, dup := o.byName[ev.Name()]; dup {
			continue
		}
		o.byName[ev.Name()] = ev
		o.evaluators = append(o.evaluators, ev)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Agents lists registered evaluator names in registration order.
func (o *Orchestrator) Agents() []string {
	names := make([]string, len(o.evaluators))
	for i, ev := range o.evaluators {
		names[i] = ev.Name()
	}
	return names
}

// Evaluator returns the registered evaluator with the given name.
func (o *Orchestrator) Evaluator(name string) (Evaluator, bool) {
	ev, ok := o.byName[name]
	return ev, ok
}

func (o *Orchestrator) selected(agentsToUse []string) []string {
	if len(agentsToUse) == 0 {
		return o.Agents()
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(agentsToUse))
	for _, n := range agentsToUse {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// EvaluateStatement runs the selected evaluators concurrently, waits for all
// of them, then synthesizes. The perspectives map has exactly one entry per
// selected name whatever happens to individual evaluators. Only a synthesis
// failure fails the call.
func (o *Orchestrator) EvaluateStatement(ctx context.Context, stmt Statement, contextText string, agentsToUse []string) (*Report, error) {
	start := time.Now()
	report := &Report{
		ID:        o.newID(),
		Statement: stmt,
		Context:   contextText,
		Agents:    o.selected(agentsToUse),
		CreatedAt: start.UTC(),
	}
	ctx = WithFlowID(ctx, report.ID)
	log := o.logger.With("evaluation", report.ID)

	if o.research != nil {
		brief := o.research.Research(ctx, stmt)
		report.Research = &brief
		if s := brief.PromptSummary(); s != "" {
			ctx = WithResearch(ctx, s)
		}
	}

	slots := make([]AgentAnalysis, len(report.Agents))
	var g errgroup.Group
	for i, name := range report.Agents {
		ev, ok := o.byName[name]
		if !ok {
			log.Warn("unknown evaluator requested", "agent", name)
			slots[i] = ErrorAnalysis(name, ErrUnknownEvaluator)
			continue
		}
		g.Go(func() error {
			slots[i] = o.runOne(ctx, ev, stmt, contextText, log)
			return nil
		})
	}
	_ = g.Wait()

	report.Perspectives = make(map[string]AgentAnalysis, len(slots))
	for i, name := range report.Agents {
		report.Perspectives[name] = slots[i]
	}

	syn, consensus, err := o.synth.Synthesize(ctx, stmt, report.Agents, report.Perspectives)
	if err != nil {
		o.observeEvaluation("failed", time.Since(start))
		log.Error("synthesis failed", "error", err)
		return nil, err
	}
	report.Synthesis = syn
	report.ConsensusLevel = consensus
	report.Assessment = Assess(report.Ordered())
	report.Digest = BuildDigest(report.Agents, report.Perspectives, syn, consensus)
	report.DurationMs = time.Since(start).Milliseconds()

	outcome := "ok"
	if failed := report.Failed(); len(failed) > 0 {
		outcome = "partial"
		log.Warn("evaluation completed with failed agents", "failed", failed)
	}
	o.observeEvaluation(outcome, time.Since(start))
	log.Info("evaluation complete",
		"verdict", syn.Verdict, "confidence", syn.Confidence,
		"consensus", consensus, "duration_ms", report.DurationMs)
	return report, nil
}

func (o *Orchestrator) runOne(ctx context.Context, ev Evaluator, stmt Statement, contextText string, log *slog.Logger) (out AgentAnalysis) {
	name := ev.Name()
	start := time.Now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			log.Error("evaluator panicked", "agent", name, "panic", r)
			out = ErrorAnalysis(name, &EvaluatorFailure{Agent: name, Err: fmt.Errorf("panic: %v", r)})
		}
		o.observeEvaluator(name, outcome, time.Since(start))
	}()

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	a, err := ev.Evaluate(callCtx, stmt, contextText)
	if err != nil {
		outcome = "error"
		log.Warn("evaluator failed", "agent", name, "error", err)
		return ErrorAnalysis(name, err)
	}
	a = normalize(a, name)
	if !a.Usable() {
		outcome = "error"
	}
	return a
}

func (o *Orchestrator) observeEvaluator(agent, outcome string, d time.Duration) {
	if o.observer != nil {
		o.observer.EvaluatorDone(agent, outcome, d)
	}
}

func (o *Orchestrator) observeEvaluation(outcome string, d time.Duration) {
	if o.observer != nil {
		o.observer.EvaluationDone(outcome, d)
	}
}
