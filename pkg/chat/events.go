package chat

// EventType tags entries in a chat stream.
type EventType string

const (
	EventStart      EventType = "start"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventContent    EventType = "content"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

type ToolCallEvent struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

type ToolResultEvent struct {
	ID      string      `json:"id"`
	Success bool        `json:"success"`
	Output  interface{} `json:"output,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StreamEvent is one entry in a chat stream. Exactly one terminal event
// (done or error) is emitted, after which the channel closes. A tool_call
// always precedes its matching tool_result, and content never precedes an
// unresolved tool_call.
type StreamEvent struct {
	Type           EventType        `json:"type"`
	ConversationID string           `json:"conversation_id,omitempty"`
	ToolCall       *ToolCallEvent   `json:"tool_call,omitempty"`
	ToolResult     *ToolResultEvent `json:"tool_result,omitempty"`
	Content        string           `json:"content,omitempty"`
	Error          string           `json:"error,omitempty"`
}
