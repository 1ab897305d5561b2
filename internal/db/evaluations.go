// CLAUDE:SUMMARY Evaluation persistence — reports stored whole as JSON plus queryable verdict columns and per-agent rows
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/factlens/internal/evaluation"
	"github.com/hazyhaar/factlens/pkg/trace"
)

// ReportSummary is the list view of a stored evaluation.
type ReportSummary struct {
	ID           string             `json:"id"`
	Statement    string             `json:"statement"`
	Speaker      string             `json:"speaker,omitempty"`
	Verdict      evaluation.Verdict `json:"verdict"`
	Confidence   float64            `json:"confidence"`
	Consensus    float64            `json:"consensus"`
	FailedAgents int                `json:"failed_agents"`
	CreatedAt    time.Time          `json:"created_at"`
}

func (db *DB) timed(ctx context.Context, name, subject, query string, start time.Time, err error) {
	if db.tracer != nil {
		db.tracer.Record(ctx, trace.Op{Name: name, Subject: subject, Query: query, Elapsed: time.Since(start), Err: err})
	}
}

const insertEvaluation = `
	INSERT INTO evaluations (id, user_id, statement, speaker, speaker_role, speaker_party,
		location, occurred_at, context, verdict, confidence, consensus, failed_agents,
		duration_ms, report_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertAgentAnalysis = `
	INSERT INTO agent_analyses (id, evaluation_id, agent, position, verdict, confidence, error)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// SaveReport stores a completed report. userID may be empty for CLI and
// MCP evaluations.
func (db *DB) SaveReport(ctx context.Context, userID string, r *evaluation.Report) (err error) {
	start := time.Now()
	defer func() { db.timed(ctx, "save_report", r.ID, insertEvaluation, start, err) }()

	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	s := r.Statement
	_, err = tx.ExecContext(ctx, insertEvaluation,
		r.ID, nilIfEmpty(userID), s.Text, nilIfEmpty(s.Speaker.Name),
		nilIfEmpty(s.Speaker.Role), nilIfEmpty(s.Speaker.Party),
		nilIfEmpty(s.Background.Where), nilIfEmpty(s.Background.When),
		nilIfEmpty(r.Context), string(r.Synthesis.Verdict), r.Synthesis.Confidence,
		r.ConsensusLevel, len(r.Failed()), r.DurationMs, string(raw), r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting evaluation: %w", err)
	}

	for i, a := range r.Ordered() {
		_, err = tx.ExecContext(ctx, insertAgentAnalysis,
			NewID(), r.ID, a.Agent, i, string(a.Verdict), a.ConfidenceScore, nilIfEmpty(a.Error))
		if err != nil {
			return fmt.Errorf("inserting analysis %s: %w", a.Agent, err)
		}
	}
	return tx.Commit()
}

const selectReport = `SELECT report_json FROM evaluations WHERE id = ?`

// GetReport loads a stored report by ID.
func (db *DB) GetReport(ctx context.Context, id string) (r *evaluation.Report, err error) {
	start := time.Now()
	defer func() { db.timed(ctx, "get_report", id, selectReport, start, err) }()

	var raw string
	err = db.QueryRowContext(ctx, selectReport, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeReport(raw)
}

func decodeReport(raw string) (*evaluation.Report, error) {
	r := &evaluation.Report{}
	if err := json.Unmarshal([]byte(raw), r); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return r, nil
}

// ListFilter narrows ListReports. Zero values match everything.
type ListFilter struct {
	UserID  string
	Verdict evaluation.Verdict
	Limit   int
	Offset  int
}

const selectSummaries = `
	SELECT id, statement, COALESCE(speaker, ''), verdict, confidence, consensus, failed_agents, created_at
	FROM evaluations
	WHERE (? = '' OR user_id = ?) AND (? = '' OR verdict = ?)
	ORDER BY created_at DESC, id
	LIMIT ? OFFSET ?`

// ListReports returns summaries, newest first.
func (db *DB) ListReports(ctx context.Context, f ListFilter) (out []ReportSummary, err error) {
	start := time.Now()
	defer func() { db.timed(ctx, "list_reports", "", selectSummaries, start, err) }()

	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	rows, err := db.QueryContext(ctx, selectSummaries,
		f.UserID, f.UserID, string(f.Verdict), string(f.Verdict), f.Limit, max(f.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("listing evaluations: %w", err)
	}
	defer rows.Close()

	out = []ReportSummary{}
	for rows.Next() {
		var s ReportSummary
		var verdict string
		if err := rows.Scan(&s.ID, &s.Statement, &s.Speaker, &verdict, &s.Confidence,
			&s.Consensus, &s.FailedAgents, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Verdict = evaluation.Verdict(verdict)
		out = append(out, s)
	}
	return out, rows.Err()
}

// EachReport streams every stored report in creation order.
func (db *DB) EachReport(ctx context.Context, fn func(*evaluation.Report) error) error {
	rows, err := db.QueryContext(ctx, `SELECT report_json FROM evaluations ORDER BY created_at, id`)
	if err != nil {
		return fmt.Errorf("scanning evaluations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		r, err := decodeReport(raw)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// AgentStats aggregates stored per-agent outcomes.
type AgentStats struct {
	Agent          string  `json:"agent"`
	Evaluations    int     `json:"evaluations"`
	Failures       int     `json:"failures"`
	MeanConfidence float64 `json:"mean_confidence"`
}

func (db *DB) AgentStats(ctx context.Context) ([]AgentStats, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT agent, COUNT(*), SUM(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END),
		       COALESCE(AVG(CASE WHEN error IS NULL THEN confidence END), 0)
		FROM agent_analyses GROUP BY agent ORDER BY agent`)
	if err != nil {
		return nil, fmt.Errorf("agent stats: %w", err)
	}
	defer rows.Close()

	out := []AgentStats{}
	for rows.Next() {
		var s AgentStats
		if err := rows.Scan(&s.Agent, &s.Evaluations, &s.Failures, &s.MeanConfidence); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
