package llms

import (
	"context"
	"encoding/json"
)

// Message is one turn handed to a provider. Role follows the OpenAI
// convention: system, user, assistant, tool.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a provider-emitted request to invoke a tool. Arguments are
// already parsed; payloads that were not valid JSON arrive as {"raw": s}.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolDefinition describes a callable tool to the model.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Tools       []ToolDefinition
}

// Response is the uniform completion shape. When ToolCalls is non-empty,
// Content may be empty.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Model     string
	Usage     *Usage
}

// Provider is the uniform chat interface over heterogeneous back-ends.
type Provider interface {
	// Chat performs a non-streaming completion.
	Chat(ctx context.Context, req *Request) (*Response, error)

	// ChatWithTools is Chat with the caller signalling a tool loop; the
	// request's Tools must be forwarded to the model.
	ChatWithTools(ctx context.Context, req *Request) (*Response, error)

	// ChatStream returns a finite sequence of content chunks. The channel
	// closes when the upstream stream completes; it is not restartable.
	ChatStream(ctx context.Context, req *Request) (<-chan string, error)

	Name() string
}

// ParseToolArguments decodes a provider's raw argument JSON. Payloads that
// fail to parse are surfaced as {"raw": <string>} rather than aborted.
func ParseToolArguments(raw string) map[string]interface{} {
	if raw == "" {
		return map[string]interface{}{}
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]interface{}{"raw": raw}
	}
	return args
}
