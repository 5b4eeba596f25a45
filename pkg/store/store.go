package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// Store is the Postgres persistence layer. Consumers depend on the narrow
// interfaces they declare; Store satisfies all of them.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}

func mapRowErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrConflict
	}
	return err
}

// ---------------------------------------------------------------------------
// Agents

func (s *Store) GetAgent(ctx context.Context, id string) (*Agent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, system_prompt, llm_model, tools, a2a_enabled, created_at
		FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

// GetAgentForUser scopes the lookup to an owner; rows belonging to other
// users are reported as not found.
func (s *Store) GetAgentForUser(ctx context.Context, id, userID string) (*Agent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, system_prompt, llm_model, tools, a2a_enabled, created_at
		FROM agents WHERE id = $1 AND user_id = $2`, id, userID)
	return scanAgent(row)
}

func scanAgent(row pgx.Row) (*Agent, error) {
	var a Agent
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Prompt, &a.LLMModel, &a.Tools, &a.A2AEnabled, &a.CreatedAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &a, nil
}

// ---------------------------------------------------------------------------
// Conversations

func (s *Store) CreateConversation(ctx context.Context, agentID, userID string) (*Conversation, error) {
	conv := &Conversation{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, agent_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		conv.ID, conv.AgentID, conv.UserID, conv.CreatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, agent_id, user_id, created_at
		FROM conversations WHERE id = $1`, id).
		Scan(&c.ID, &c.AgentID, &c.UserID, &c.CreatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &c, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, tool_call_id, tool_calls, a2a_source, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.ToolCallID, nullableJSON(msg.ToolCalls), msg.A2ASource, msg.CreatedAt)
	return mapRowErr(err)
}

// ListMessages returns a conversation's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, COALESCE(tool_call_id, ''), tool_calls, COALESCE(a2a_source, ''), created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ToolCallID, &m.ToolCalls, &m.A2ASource, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Workflows

func (s *Store) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, nodes, edges, is_active, created_at
		FROM workflows WHERE id = $1`, id)
	return scanWorkflow(row)
}

func (s *Store) GetWorkflowForUser(ctx context.Context, id, userID string) (*Workflow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, nodes, edges, is_active, created_at
		FROM workflows WHERE id = $1 AND user_id = $2`, id, userID)
	return scanWorkflow(row)
}

func scanWorkflow(row pgx.Row) (*Workflow, error) {
	var w Workflow
	if err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.Nodes, &w.Edges, &w.IsActive, &w.CreatedAt); err != nil {
		return nil, mapRowErr(err)
	}
	return &w, nil
}

// ---------------------------------------------------------------------------
// Workflow executions

func (s *Store) CreateExecution(ctx context.Context, workflowID string, triggerData json.RawMessage) (*WorkflowExecution, error) {
	exec := &WorkflowExecution{
		ID:          uuid.NewString(),
		WorkflowID:  workflowID,
		Status:      ExecutionPending,
		TriggerData: triggerData,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_executions (id, workflow_id, status, trigger_data, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		exec.ID, exec.WorkflowID, exec.Status, nullableJSON(exec.TriggerData), exec.CreatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return exec, nil
}

func (s *Store) MarkExecutionRunning(ctx context.Context, id string, startedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_executions SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4`,
		id, ExecutionRunning, startedAt, ExecutionPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishExecution records the terminal outcome of a run. Rows still in
// pending can be finished too, so a run abandoned before it started is
// closed out; terminal rows are never updated again.
func (s *Store) FinishExecution(ctx context.Context, id, status string, nodeResults json.RawMessage, execErr string, completedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_executions
		SET status = $2, node_results = $3, error = NULLIF($4, ''), completed_at = $5
		WHERE id = $1 AND status IN ($6, $7)`,
		id, status, nullableJSON(nodeResults), execErr, completedAt, ExecutionPending, ExecutionRunning)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*WorkflowExecution, error) {
	var e WorkflowExecution
	err := s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, status, trigger_data, node_results, COALESCE(error, ''), started_at, completed_at, created_at
		FROM workflow_executions WHERE id = $1`, id).
		Scan(&e.ID, &e.WorkflowID, &e.Status, &e.TriggerData, &e.NodeResults, &e.Error, &e.StartedAt, &e.CompletedAt, &e.CreatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &e, nil
}

// ---------------------------------------------------------------------------
// Triggers

func (s *Store) CreateScheduleTrigger(ctx context.Context, t *ScheduleTrigger) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timezone == "" {
		t.Timezone = "UTC"
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO schedule_triggers (id, workflow_id, cron_expression, timezone, is_active)
		VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.WorkflowID, t.CronExpression, t.Timezone, t.IsActive)
	return mapRowErr(err)
}

func (s *Store) ListActiveScheduleTriggers(ctx context.Context) ([]ScheduleTrigger, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, cron_expression, COALESCE(timezone, 'UTC'), is_active, last_run_at, next_run_at
		FROM schedule_triggers WHERE is_active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduleTrigger
	for rows.Next() {
		var t ScheduleTrigger
		if err := rows.Scan(&t.ID, &t.WorkflowID, &t.CronExpression, &t.Timezone, &t.IsActive, &t.LastRunAt, &t.NextRunAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateScheduleRun(ctx context.Context, id string, lastRun, nextRun time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE schedule_triggers SET last_run_at = $2, next_run_at = $3 WHERE id = $1`,
		id, lastRun, nextRun)
	return err
}

func (s *Store) CreateWebhookTrigger(ctx context.Context, t *WebhookTrigger) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_triggers (id, workflow_id, webhook_path, secret, is_active)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
		t.ID, t.WorkflowID, t.WebhookPath, t.Secret, t.IsActive)
	return mapRowErr(err)
}

func (s *Store) GetWebhookTriggerByPath(ctx context.Context, path string) (*WebhookTrigger, error) {
	var t WebhookTrigger
	err := s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, webhook_path, COALESCE(secret, ''), is_active, last_triggered_at
		FROM webhook_triggers WHERE webhook_path = $1 AND is_active`, path).
		Scan(&t.ID, &t.WorkflowID, &t.WebhookPath, &t.Secret, &t.IsActive, &t.LastTriggeredAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &t, nil
}

func (s *Store) UpdateWebhookLastTriggered(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_triggers SET last_triggered_at = $2 WHERE id = $1`, id, at)
	return err
}

// ---------------------------------------------------------------------------
// API keys

func (s *Store) InsertAPIKey(ctx context.Context, key *APIKey) error {
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, rate_limit, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.RateLimit, key.ExpiresAt, key.CreatedAt)
	return mapRowErr(err)
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	var k APIKey
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, key_hash, key_prefix, scopes, rate_limit, expires_at, last_used_at, created_at
		FROM api_keys WHERE key_hash = $1`, hash).
		Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes, &k.RateLimit, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &k, nil
}

func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]APIKey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, name, key_hash, key_prefix, scopes, rate_limit, expires_at, last_used_at, created_at
		FROM api_keys WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes, &k.RateLimit, &k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAPIKey(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM api_keys WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
