package store

import (
	"context"
	"fmt"
)

// Schema is applied by the migrate command. Kept inline so a fresh
// deployment needs nothing beyond the binary and a database URL.
const Schema = `
CREATE TABLE IF NOT EXISTS agents (
	id            UUID PRIMARY KEY,
	user_id       UUID NOT NULL,
	name          TEXT NOT NULL,
	system_prompt TEXT NOT NULL DEFAULT '',
	llm_model     TEXT NOT NULL,
	tools         TEXT[] NOT NULL DEFAULT '{}',
	a2a_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversations (
	id         UUID PRIMARY KEY,
	agent_id   UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	user_id    UUID NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id              UUID PRIMARY KEY,
	conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	tool_call_id    TEXT,
	tool_calls      JSONB,
	a2a_source      TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at);

CREATE TABLE IF NOT EXISTS workflows (
	id         UUID PRIMARY KEY,
	user_id    UUID NOT NULL,
	name       TEXT NOT NULL,
	nodes      JSONB NOT NULL DEFAULT '[]',
	edges      JSONB NOT NULL DEFAULT '[]',
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflow_executions (
	id           UUID PRIMARY KEY,
	workflow_id  UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	status       TEXT NOT NULL,
	trigger_data JSONB,
	node_results JSONB,
	error        TEXT,
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_executions_workflow ON workflow_executions (workflow_id, created_at);

CREATE TABLE IF NOT EXISTS schedule_triggers (
	id              UUID PRIMARY KEY,
	workflow_id     UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	cron_expression TEXT NOT NULL,
	timezone        TEXT NOT NULL DEFAULT 'UTC',
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	last_run_at     TIMESTAMPTZ,
	next_run_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS webhook_triggers (
	id                UUID PRIMARY KEY,
	workflow_id       UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	webhook_path      TEXT NOT NULL,
	secret            TEXT,
	is_active         BOOLEAN NOT NULL DEFAULT TRUE,
	last_triggered_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_webhook_path_active ON webhook_triggers (webhook_path) WHERE is_active;

CREATE TABLE IF NOT EXISTS api_keys (
	id           UUID PRIMARY KEY,
	user_id      UUID NOT NULL,
	name         TEXT NOT NULL,
	key_hash     CHAR(64) NOT NULL UNIQUE,
	key_prefix   VARCHAR(12) NOT NULL,
	scopes       TEXT[] NOT NULL DEFAULT '{}',
	rate_limit   INTEGER NOT NULL DEFAULT 1000,
	expires_at   TIMESTAMPTZ,
	last_used_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate applies the schema idempotently.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
