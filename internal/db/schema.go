package db

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id              TEXT PRIMARY KEY,
    handle          TEXT UNIQUE NOT NULL,
    email           TEXT UNIQUE,
    password_hash   TEXT NOT NULL,
    role            TEXT DEFAULT 'user' CHECK(role IN ('user','admin')),
    created_at      DATETIME DEFAULT (datetime('now')),
    last_seen_at    DATETIME
);

-- evaluations: one row per report; report_json is the full report
CREATE TABLE IF NOT EXISTS evaluations (
    id              TEXT PRIMARY KEY,
    user_id         TEXT REFERENCES users(id),
    statement       TEXT NOT NULL,
    speaker         TEXT,
    speaker_role    TEXT,
    speaker_party   TEXT,
    location        TEXT,
    occurred_at     TEXT,
    context         TEXT,
    verdict         TEXT NOT NULL CHECK(verdict IN ('TRUE','MISLEADING','FALSE','UNVERIFIABLE')),
    confidence      REAL NOT NULL,
    consensus       REAL NOT NULL,
    failed_agents   INTEGER NOT NULL DEFAULT 0,
    duration_ms     INTEGER,
    report_json     TEXT NOT NULL,
    created_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evaluations_time ON evaluations(created_at);
CREATE INDEX IF NOT EXISTS idx_evaluations_user ON evaluations(user_id) WHERE user_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_evaluations_verdict ON evaluations(verdict);

-- agent_analyses: per-agent entries, error entries included
CREATE TABLE IF NOT EXISTS agent_analyses (
    id              TEXT PRIMARY KEY,
    evaluation_id   TEXT NOT NULL REFERENCES evaluations(id) ON DELETE CASCADE,
    agent           TEXT NOT NULL,
    position        INTEGER NOT NULL,
    verdict         TEXT NOT NULL,
    confidence      REAL NOT NULL,
    error           TEXT,
    UNIQUE(evaluation_id, agent)
);
CREATE INDEX IF NOT EXISTS idx_agent_analyses_agent ON agent_analyses(agent);
`
