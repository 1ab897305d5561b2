package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/factlens/internal/config"
	"github.com/hazyhaar/factlens/internal/db"
	"github.com/hazyhaar/factlens/internal/evaluation"
	"github.com/hazyhaar/factlens/internal/llm"
	"github.com/hazyhaar/factlens/internal/logging"
	"github.com/hazyhaar/factlens/internal/metrics"
	"github.com/hazyhaar/factlens/internal/research"
	"github.com/hazyhaar/factlens/internal/retrieval"
	"github.com/hazyhaar/factlens/pkg/audit"
	"github.com/hazyhaar/factlens/pkg/trace"
)

// app holds the wired components shared by serve, evaluate and mcp.
type app struct {
	cfg       *config.Config
	db        *db.DB
	flows     *db.FlowsDB
	metricsDB *db.MetricsDB
	traces    *trace.Store
	auditLog  *audit.SQLiteLogger
	metrics   *metrics.Metrics
	gateway   *llm.Client
	orch      *evaluation.Orchestrator
	logger    *slog.Logger

	closers []func() error
}

func openApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: logging.New("factlens")}
	if err := a.open(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// open acquires every resource in order, registering a closer for each one
// as soon as it is held.
func (a *app) open() error {
	cfg := a.cfg
	var err error
	if a.db, err = db.Open(cfg.Database.Path); err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.closers = append(a.closers, a.db.Close)

	a.traces = trace.NewStore(a.db.DB, logging.New("trace"))
	if err = a.traces.Init(); err != nil {
		return fmt.Errorf("trace store: %w", err)
	}
	a.db.SetTracer(a.traces)
	a.closers = append(a.closers, a.traces.Close)

	a.auditLog = audit.NewSQLiteLogger(a.db.DB, logging.New("audit"))
	if err = a.auditLog.Init(); err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	a.closers = append(a.closers, a.auditLog.Close)

	if a.flows, err = db.OpenFlows(cfg.Database.FlowsPath); err != nil {
		return fmt.Errorf("opening flows database: %w", err)
	}
	a.closers = append(a.closers, a.flows.Close)

	if a.metricsDB, err = db.OpenMetrics(cfg.Database.MetricsPath); err != nil {
		return fmt.Errorf("opening metrics database: %w", err)
	}
	a.closers = append(a.closers, a.metricsDB.Close)

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
	}

	if !cfg.LLM.HasAnyKey() {
		a.logger.Warn("no LLM API key configured; every evaluation will fail at synthesis")
	}
	llmOpts := []llm.Option{llm.WithRecorder(a.metricsDB), llm.WithLogger(logging.New("llm"))}
	if a.metrics != nil {
		llmOpts = append(llmOpts, llm.WithRecorder(a.metrics))
	}
	a.gateway = llm.NewFromConfig(cfg.LLM, llmOpts...)
	for _, model := range []string{cfg.LLM.Model, cfg.Evaluation.SynthesisModel} {
		if err = a.gateway.CheckModel(model); err != nil {
			return fmt.Errorf("llm config: %w", err)
		}
	}

	a.orch, err = a.buildOrchestrator(cfg.Evaluation.Research)
	return err
}

// buildOrchestrator wires roles, tools and the synthesizer. withResearch
// enables the research pre-pass.
func (a *app) buildOrchestrator(withResearch bool) (*evaluation.Orchestrator, error) {
	cfg := a.cfg
	searcher := retrieval.NewFromConfig(cfg.Retrieval)
	toolbox := retrieval.NewToolbox(searcher, cfg.Retrieval.MaxResultChars)

	roles, unknown := evaluation.FilterRoles(evaluation.RolesFromConfig(cfg.Evaluation.CustomAgents), cfg.Evaluation.Agents)
	if len(unknown) > 0 {
		a.logger.Warn("configured agents not defined", "agents", unknown)
	}
	if len(roles) == 0 {
		return nil, errors.New("no evaluator roles configured")
	}

	gen := evaluation.GenerationOptions{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}
	evaluators := evaluation.NewRoleEvaluators(roles, a.gateway, toolbox, evaluation.EvaluatorOptions{
		Generation:   gen,
		MaxToolSteps: cfg.Evaluation.MaxToolSteps,
		Tracer:       a.flows,
		Logger:       logging.New("evaluator"),
	})

	synthGen := gen
	if cfg.Evaluation.SynthesisModel != "" {
		synthGen.Model = cfg.Evaluation.SynthesisModel
	}
	synthOpts, err := evaluation.SynthesisOptionsFromConfig(cfg.Evaluation)
	if err != nil {
		return nil, err
	}
	synthOpts = append(synthOpts,
		evaluation.WithSynthesisGeneration(synthGen),
		evaluation.WithSynthesisTracer(a.flows),
		evaluation.WithSynthesisLogger(logging.New("synthesizer")),
	)
	synth := evaluation.NewSynthesizer(a.gateway, synthOpts...)

	opts := []evaluation.OrchestratorOption{
		evaluation.WithAgentTimeout(time.Duration(cfg.Evaluation.AgentTimeoutSec) * time.Second),
		evaluation.WithIDFunc(db.NewID),
		evaluation.WithLogger(logging.New("orchestrator")),
	}
	if a.metrics != nil {
		opts = append(opts, evaluation.WithObserver(a.metrics))
	}
	if withResearch {
		r := research.New(searcher, a.gateway, cfg.Retrieval.MaxResultChars, logging.New("research")).WithGeneration(gen)
		opts = append(opts, evaluation.WithResearcher(r))
	}
	return evaluation.NewOrchestrator(evaluators, synth, opts...), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("closing", "error", err)
		}
	}
	a.closers = nil
}
