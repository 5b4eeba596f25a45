package store

import (
	"encoding/json"
	"time"
)

// Agent is a user-owned configuration bundling a system prompt, a model
// identifier, and an allow-list of tool names.
type Agent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Prompt     string    `json:"system_prompt"`
	LLMModel   string    `json:"llm_model"`
	Tools      []string  `json:"tools"`
	A2AEnabled bool      `json:"a2a_enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

// AgentID, SystemPrompt, Model and ToolNames make Agent satisfy the chat
// service's agent contract.
func (a *Agent) AgentID() string      { return a.ID }
func (a *Agent) SystemPrompt() string { return a.Prompt }
func (a *Agent) Model() string        { return a.LLMModel }
func (a *Agent) ToolNames() []string  { return a.Tools }

type Conversation struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	ToolCallID     string          `json:"tool_call_id,omitempty"`
	ToolCalls      json.RawMessage `json:"tool_calls,omitempty"`
	A2ASource      string          `json:"a2a_source,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Workflow struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Nodes     json.RawMessage `json:"nodes"`
	Edges     json.RawMessage `json:"edges"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
}

// Workflow execution statuses.
const (
	ExecutionPending   = "pending"
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

type WorkflowExecution struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	Status      string          `json:"status"`
	TriggerData json.RawMessage `json:"trigger_data,omitempty"`
	NodeResults json.RawMessage `json:"node_results,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ScheduleTrigger struct {
	ID             string     `json:"id"`
	WorkflowID     string     `json:"workflow_id"`
	CronExpression string     `json:"cron_expression"`
	Timezone       string     `json:"timezone"`
	IsActive       bool       `json:"is_active"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
}

type WebhookTrigger struct {
	ID              string     `json:"id"`
	WorkflowID      string     `json:"workflow_id"`
	WebhookPath     string     `json:"webhook_path"`
	Secret          string     `json:"secret,omitempty"`
	IsActive        bool       `json:"is_active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
}

// APIKey holds only the SHA-256 digest of an issued key. The raw key is
// returned to the caller once at creation and never persisted.
type APIKey struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"`
	Scopes     []string   `json:"scopes"`
	RateLimit  int        `json:"rate_limit"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
