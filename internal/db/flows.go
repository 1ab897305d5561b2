// CLAUDE:SUMMARY FlowsDB — separate SQLite database holding the forensic trace of every gateway call
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/factlens/internal/evaluation"
)

// FlowsDB wraps the flows.db SQLite database for LLM forensic traces.
type FlowsDB struct {
	*sql.DB
}

func OpenFlows(path string) (*FlowsDB, error) {
	sqlDB, err := openSQLite(path, "journal_mode(WAL)", "busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	db := &FlowsDB{sqlDB}
	if err := db.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating flows database: %w", err)
	}

	return db, nil
}

func (db *FlowsDB) migrate() error {
	_, err := db.Exec(flowsSchema)
	return err
}

const flowsSchema = `
-- flow_steps: forensic trace for every LLM call; flow_id is the evaluation ID
CREATE TABLE IF NOT EXISTS flow_steps (
    id              TEXT PRIMARY KEY,
    flow_id         TEXT NOT NULL,
    step_index      INTEGER NOT NULL,
    agent           TEXT NOT NULL,
    model_id        TEXT,
    provider        TEXT,
    prompt          TEXT NOT NULL,
    system_prompt   TEXT,
    response_raw    TEXT,
    tokens_in       INTEGER,
    tokens_out      INTEGER,
    latency_ms      INTEGER,
    finish_reason   TEXT,
    error           TEXT,
    created_at      DATETIME DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_flow_steps_flow ON flow_steps(flow_id);
CREATE INDEX IF NOT EXISTS idx_flow_steps_agent ON flow_steps(agent);
CREATE INDEX IF NOT EXISTS idx_flow_steps_time ON flow_steps(created_at);
`

// RecordStep implements evaluation.Tracer.
func (db *FlowsDB) RecordStep(ctx context.Context, s evaluation.TraceStep) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO flow_steps (id, flow_id, step_index, agent, model_id, provider,
			prompt, system_prompt, response_raw, tokens_in, tokens_out, latency_ms,
			finish_reason, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		NewID(), s.FlowID, s.StepIndex, s.Agent, nilIfEmpty(s.Model), nilIfEmpty(s.Provider),
		s.Prompt, nilIfEmpty(s.SystemPrompt), nilIfEmpty(s.Response),
		s.TokensIn, s.TokensOut, s.LatencyMs, nilIfEmpty(s.FinishReason), nilIfEmpty(s.Error))
	if err != nil {
		return fmt.Errorf("recording flow step: %w", err)
	}
	return nil
}

// FlowSteps returns the trace of one evaluation, grouped by agent.
func (db *FlowsDB) FlowSteps(ctx context.Context, flowID string) ([]evaluation.TraceStep, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT flow_id, step_index, agent, COALESCE(model_id, ''), COALESCE(provider, ''),
		       prompt, COALESCE(system_prompt, ''), COALESCE(response_raw, ''),
		       COALESCE(tokens_in, 0), COALESCE(tokens_out, 0), COALESCE(latency_ms, 0),
		       COALESCE(finish_reason, ''), COALESCE(error, '')
		FROM flow_steps WHERE flow_id = ?
		ORDER BY agent, step_index`, flowID)
	if err != nil {
		return nil, fmt.Errorf("loading flow %s: %w", flowID, err)
	}
	defer rows.Close()

	var out []evaluation.TraceStep
	for rows.Next() {
		var s evaluation.TraceStep
		if err := rows.Scan(&s.FlowID, &s.StepIndex, &s.Agent, &s.Model, &s.Provider,
			&s.Prompt, &s.SystemPrompt, &s.Response, &s.TokensIn, &s.TokensOut,
			&s.LatencyMs, &s.FinishReason, &s.Error); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var _ evaluation.Tracer = (*FlowsDB)(nil)
