package a2a

import "time"

// ProtocolVersion is the A2A protocol revision this server speaks.
const ProtocolVersion = "0.3.0"

// TaskStatus is the lifecycle state of an A2A task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
// Cancelled is terminal too, but completed/failed are additionally
// immune to cancellation.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Message struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type TaskResult struct {
	Message Message `json:"message"`
}

type Task struct {
	ID             string      `json:"id"`
	AgentID        string      `json:"agent_id"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Status         TaskStatus  `json:"status"`
	Result         *TaskResult `json:"result,omitempty"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// TaskRequest is the wire shape of a task submission.
type TaskRequest struct {
	ID      string  `json:"id,omitempty"`
	Message Message `json:"message"`
}

// Text concatenates the request's text parts.
func (r *TaskRequest) Text() string {
	var out string
	for _, p := range r.Message.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

type Capabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

type CardProvider struct {
	Organization string `json:"organization"`
}

// AgentCard is the discovery document served at
// /.well-known/agent.json for each A2A-enabled agent.
type AgentCard struct {
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	URL                string       `json:"url"`
	Version            string       `json:"version"`
	ProtocolVersion    string       `json:"protocolVersion"`
	Capabilities       Capabilities `json:"capabilities"`
	Skills             []Skill      `json:"skills"`
	DefaultInputModes  []string     `json:"defaultInputModes"`
	DefaultOutputModes []string     `json:"defaultOutputModes"`
	Provider           CardProvider `json:"provider"`
}
