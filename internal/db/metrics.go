// CLAUDE:SUMMARY MetricsDB — separate SQLite ledger of HTTP requests, MCP tool calls and LLM provider calls
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/factlens/internal/llm"
)

// MetricsDB wraps the metrics.db SQLite database. Writes are best effort.
type MetricsDB struct {
	*sql.DB
}

func OpenMetrics(path string) (*MetricsDB, error) {
	sqlDB, err := openSQLite(path, "journal_mode(WAL)", "busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	db := &MetricsDB{sqlDB}
	if err := db.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating metrics database: %w", err)
	}

	return db, nil
}

func (db *MetricsDB) migrate() error {
	_, err := db.Exec(metricsSchema)
	return err
}

const metricsSchema = `
-- HTTP request metrics
CREATE TABLE IF NOT EXISTS http_requests (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    method      TEXT NOT NULL,
    path        TEXT NOT NULL,
    status_code INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    user_id     TEXT,
    timestamp   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_http_req_ts ON http_requests(timestamp);
CREATE INDEX IF NOT EXISTS idx_http_req_path ON http_requests(path);

-- MCP tool call metrics
CREATE TABLE IF NOT EXISTS mcp_calls (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    tool_name   TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    success     INTEGER NOT NULL DEFAULT 1,
    user_id     TEXT,
    transport   TEXT NOT NULL DEFAULT 'stdio',
    timestamp   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_mcp_calls_ts ON mcp_calls(timestamp);
CREATE INDEX IF NOT EXISTS idx_mcp_calls_tool ON mcp_calls(tool_name);

-- LLM provider call metrics
CREATE TABLE IF NOT EXISTS llm_calls (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    provider    TEXT NOT NULL,
    model       TEXT NOT NULL,
    tokens_in   INTEGER,
    tokens_out  INTEGER,
    latency_ms  INTEGER NOT NULL,
    success     INTEGER NOT NULL DEFAULT 1,
    error       TEXT,
    timestamp   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_llm_calls_ts ON llm_calls(timestamp);
CREATE INDEX IF NOT EXISTS idx_llm_calls_provider ON llm_calls(provider);
`

// RecordHTTPRequest logs an HTTP request metric.
func (db *MetricsDB) RecordHTTPRequest(method, path string, statusCode, durationMs int, userID string) {
	_, _ = db.Exec(`INSERT INTO http_requests (method, path, status_code, duration_ms, user_id)
		VALUES (?, ?, ?, ?, ?)`, method, path, statusCode, durationMs, userID)
}

// RecordLLMCall logs an LLM provider call metric.
func (db *MetricsDB) RecordLLMCall(provider, model string, tokensIn, tokensOut, latencyMs int, success bool, errMsg string) {
	s := 1
	if !success {
		s = 0
	}
	_, _ = db.Exec(`INSERT INTO llm_calls (provider, model, tokens_in, tokens_out, latency_ms, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, provider, model, tokensIn, tokensOut, latencyMs, s, errMsg)
}

// RecordMCPCall logs an MCP tool invocation.
func (db *MetricsDB) RecordMCPCall(tool string, durationMs int, success bool, userID, transport string) {
	s := 1
	if !success {
		s = 0
	}
	_, _ = db.Exec(`INSERT INTO mcp_calls (tool_name, duration_ms, success, user_id, transport)
		VALUES (?, ?, ?, ?, ?)`, tool, durationMs, s, nilIfEmpty(userID), transport)
}

// ProviderStats summarizes llm_calls for one provider.
type ProviderStats struct {
	Provider     string  `json:"provider"`
	Calls        int     `json:"calls"`
	Failures     int     `json:"failures"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	TokensIn     int64   `json:"tokens_in"`
	TokensOut    int64   `json:"tokens_out"`
}

// ProviderStatsSince aggregates provider calls newer than since.
func (db *MetricsDB) ProviderStatsSince(since time.Time) ([]ProviderStats, error) {
	rows, err := db.Query(`
		SELECT provider, COUNT(*), SUM(1 - success), AVG(latency_ms),
		       COALESCE(SUM(tokens_in), 0), COALESCE(SUM(tokens_out), 0)
		FROM llm_calls WHERE timestamp >= ?
		GROUP BY provider ORDER BY provider`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("provider stats: %w", err)
	}
	defer rows.Close()

	out := []ProviderStats{}
	for rows.Next() {
		var s ProviderStats
		if err := rows.Scan(&s.Provider, &s.Calls, &s.Failures, &s.AvgLatencyMs, &s.TokensIn, &s.TokensOut); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var _ llm.CallRecorder = (*MetricsDB)(nil)
