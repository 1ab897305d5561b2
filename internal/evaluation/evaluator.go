// CLAUDE:SUMMARY Evaluator contract and the role-parameterized evaluator (prompt, tool loop, payload shaping)
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"text/template"

	"github.com/hazyhaar/factlens/internal/retrieval"
)

// Evaluator produces one perspective on a statement. A returned error means
// the evaluation could not be carried out; the orchestrator owns recovery.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, stmt Statement, context string) (AgentAnalysis, error)
}

// EvaluatorOptions configure a RoleEvaluator.
type EvaluatorOptions struct {
	Generation   GenerationOptions
	MaxToolSteps int
	Tracer       Tracer
	Logger       *slog.Logger
}

// RoleEvaluator wraps the gateway with a fixed role. Safe for concurrent use.
type RoleEvaluator struct {
	role    Role
	gw      Gateway
	tools   map[string]retrieval.Tool
	opts    EvaluatorOptions
	logger  *slog.Logger
	once    sync.Once
	tmpl    *template.Template
	system  string
	tmplErr error
}

// NewRoleEvaluator resolves the role's tools from the toolbox. Tools the
// toolbox does not know are dropped with a warning.
func NewRoleEvaluator(role Role, gw Gateway, toolbox *retrieval.Toolbox, opts EvaluatorOptions) *RoleEvaluator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tools := map[string]retrieval.Tool{}
	for _, name := range role.Tools {
		t, ok := toolbox.Get(name)
		if !ok {
			logger.Warn("evaluator tool unavailable", "agent", role.Name, "tool", name)
			continue
		}
		tools[name] = t
	}
	return &RoleEvaluator{role: role, gw: gw, tools: tools, opts: opts, logger: logger}
}

// NewRoleEvaluators builds one evaluator per role, sharing gateway, toolbox
// and options.
func NewRoleEvaluators(roles []Role, gw Gateway, toolbox *retrieval.Toolbox, opts EvaluatorOptions) []Evaluator {
	out := make([]Evaluator, 0, len(roles))
	for _, r := range roles {
		out = append(out, NewRoleEvaluator(r, gw, toolbox, opts))
	}
	return out
}

func (e *RoleEvaluator) Name() string { return e.role.Name }

// Role returns the evaluator's role definition.
func (e *RoleEvaluator) Role() Role { return e.role }

func (e *RoleEvaluator) prepare() {
	e.once.Do(func() {
		var lines []string
		for _, name := range e.role.Tools {
			if t, ok := e.tools[name]; ok {
				lines = append(lines, fmt.Sprintf("%s: %s", t.Name, t.Description))
			}
		}
		e.system = renderSystem(e.role, lines)
		e.tmpl, e.tmplErr = parseUserTemplate()
	})
}

func (e *RoleEvaluator) Evaluate(ctx context.Context, stmt Statement, contextText string) (AgentAnalysis, error) {
	e.prepare()
	if e.tmplErr != nil {
		return AgentAnalysis{}, &EvaluatorFailure{Agent: e.role.Name, Err: e.tmplErr}
	}

	var user strings.Builder
	err := e.tmpl.Execute(&user, promptData{
		Statement:    stmt,
		Speaker:      stmt.SpeakerLine(),
		Context:      contextText,
		Research:     researchFrom(ctx),
		Instructions: e.role.Instructions,
	})
	if err != nil {
		return AgentAnalysis{}, &EvaluatorFailure{Agent: e.role.Name, Err: fmt.Errorf("rendering prompt: %w", err)}
	}

	x := &executor{
		agent:    e.role.Name,
		gw:       e.gw,
		gen:      e.opts.Generation,
		tools:    e.tools,
		maxSteps: e.opts.MaxToolSteps,
		tracer:   e.opts.Tracer,
		logger:   e.logger,
	}
	text, err := x.run(ctx, e.system, user.String())
	if err != nil {
		return AgentAnalysis{}, &EvaluatorFailure{Agent: e.role.Name, Err: err}
	}

	payload, structured := ParsePayload(text, e.role.Name)
	if !structured {
		e.logger.Warn("unstructured evaluator reply", "agent", e.role.Name)
	}
	res := BuildAnalysis(payload, e.role.Name)
	if res.Kind == ResultDefaulted {
		e.logger.Debug("analysis fields defaulted", "agent", e.role.Name, "fields", res.Defaulted)
	}
	return res.Analysis, nil
}
