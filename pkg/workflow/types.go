package workflow

// Node is one step of a workflow graph. Data carries the type-specific
// configuration exactly as stored in the workflow definition.
type Node struct {
	ID   string                 `json:"id"`
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// Edge is a directed dependency: Target runs after Source.
type Edge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
}

const (
	NodeTrigger   = "trigger"
	NodeAgent     = "agent"
	NodeTool      = "tool"
	NodeCondition = "condition"
	NodeTransform = "transform"
	NodeOutput    = "output"
)

const (
	NodeStatusCompleted = "completed"
	NodeStatusFailed    = "failed"
)

// NodeResult records one node's outcome inside an execution.
type NodeResult struct {
	Status string      `json:"status"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}
