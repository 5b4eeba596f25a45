package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeExecuteWorkflow is the only task type the worker plane handles.
const TypeExecuteWorkflow = "workflow:execute"

const (
	// DefaultMaxRetry bounds redelivery of crashed jobs before they
	// move to the archive.
	DefaultMaxRetry = 3

	// DefaultTaskTimeout abandons jobs exceeding this wall-clock bound
	// so the broker can redeliver them.
	DefaultTaskTimeout = 300 * time.Second
)

// Trigger types carried in the job payload.
const (
	TriggerAPI      = "api"
	TriggerWebhook  = "webhook"
	TriggerSchedule = "schedule"
)

// ExecuteWorkflowPayload is the job body for one workflow run.
type ExecuteWorkflowPayload struct {
	WorkflowID  string                 `json:"workflow_id"`
	TriggerType string                 `json:"trigger_type"`
	TriggerData map[string]interface{} `json:"trigger_data,omitempty"`
}

// NewExecuteWorkflowTask builds the asynq task for one workflow run
// with the retry and timeout policy attached.
func NewExecuteWorkflowTask(payload ExecuteWorkflowPayload, timeout time.Duration) (*asynq.Task, error) {
	if payload.WorkflowID == "" {
		return nil, fmt.Errorf("workflow id is required")
	}
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow job: %w", err)
	}
	return asynq.NewTask(TypeExecuteWorkflow, body,
		asynq.MaxRetry(DefaultMaxRetry),
		asynq.Timeout(timeout),
	), nil
}
