package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aviary-ai/aviary/pkg/store"
	"github.com/aviary-ai/aviary/pkg/workflow"
)

// ExecutionStore is the slice of the database store the worker needs.
type ExecutionStore interface {
	GetWorkflow(ctx context.Context, id string) (*store.Workflow, error)
	CreateExecution(ctx context.Context, workflowID string, triggerData json.RawMessage) (*store.WorkflowExecution, error)
	MarkExecutionRunning(ctx context.Context, id string, startedAt time.Time) error
	FinishExecution(ctx context.Context, id, status string, nodeResults json.RawMessage, execErr string, completedAt time.Time) error
}

// Engine runs one workflow graph; the workflow engine implements it.
type Engine interface {
	Execute(ctx context.Context, nodes []workflow.Node, edges []workflow.Edge, triggerType string, triggerData map[string]interface{}) (map[string]workflow.NodeResult, error)
}

// Handler consumes workflow jobs. Infrastructure failures are returned
// so asynq retries the job; workflow failures are terminal outcomes
// recorded on the execution row and never retried.
type Handler struct {
	store  ExecutionStore
	engine Engine
}

func NewHandler(executionStore ExecutionStore, engine Engine) *Handler {
	return &Handler{store: executionStore, engine: engine}
}

func (h *Handler) HandleExecuteWorkflow(ctx context.Context, task *asynq.Task) error {
	var payload ExecuteWorkflowPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("malformed workflow job: %v: %w", err, asynq.SkipRetry)
	}

	wf, err := h.store.GetWorkflow(ctx, payload.WorkflowID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("workflow %s no longer exists: %w", payload.WorkflowID, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to load workflow %s: %w", payload.WorkflowID, err)
	}
	if !wf.IsActive {
		return fmt.Errorf("workflow %s is inactive: %w", wf.ID, asynq.SkipRetry)
	}

	var nodes []workflow.Node
	var edges []workflow.Edge
	if err := json.Unmarshal(wf.Nodes, &nodes); err != nil {
		return fmt.Errorf("workflow %s has malformed nodes: %v: %w", wf.ID, err, asynq.SkipRetry)
	}
	if len(wf.Edges) > 0 {
		if err := json.Unmarshal(wf.Edges, &edges); err != nil {
			return fmt.Errorf("workflow %s has malformed edges: %v: %w", wf.ID, err, asynq.SkipRetry)
		}
	}

	triggerJSON, err := json.Marshal(payload.TriggerData)
	if err != nil {
		return fmt.Errorf("malformed trigger data: %v: %w", err, asynq.SkipRetry)
	}

	exec, err := h.store.CreateExecution(ctx, wf.ID, triggerJSON)
	if err != nil {
		return fmt.Errorf("failed to create execution record: %w", err)
	}
	if err := h.store.MarkExecutionRunning(ctx, exec.ID, time.Now().UTC()); err != nil {
		h.abandonExecution(ctx, exec.ID, err)
		return fmt.Errorf("failed to start execution %s: %w", exec.ID, err)
	}

	results, runErr := h.engine.Execute(ctx, nodes, edges, payload.TriggerType, payload.TriggerData)

	resultsJSON, err := json.Marshal(results)
	if err != nil {
		resultsJSON = nil
	}

	if runErr != nil {
		slog.Warn("workflow execution failed",
			"workflow_id", wf.ID,
			"execution_id", exec.ID,
			"error", runErr)
		if err := h.store.FinishExecution(ctx, exec.ID, store.ExecutionFailed, resultsJSON, runErr.Error(), time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to record execution failure: %w", err)
		}
		return nil
	}

	if err := h.store.FinishExecution(ctx, exec.ID, store.ExecutionCompleted, resultsJSON, "", time.Now().UTC()); err != nil {
		h.abandonExecution(ctx, exec.ID, err)
		return fmt.Errorf("failed to record execution result: %w", err)
	}
	slog.Info("workflow execution completed",
		"workflow_id", wf.ID,
		"execution_id", exec.ID,
		"nodes", len(results))
	return nil
}

// abandonExecution closes out an execution row this attempt can no
// longer drive. A retry enqueues against a fresh row, so the old one
// must not linger as pending or running.
func (h *Handler) abandonExecution(ctx context.Context, executionID string, cause error) {
	err := h.store.FinishExecution(ctx, executionID, store.ExecutionFailed, nil,
		fmt.Sprintf("abandoned: %v", cause), time.Now().UTC())
	if err != nil {
		slog.Warn("failed to abandon execution", "execution_id", executionID, "error", err)
	}
}

// Worker is the consumer plane: an asynq server bound to the workflow
// handler. Acknowledgement follows completion, so crashed workers cause
// redelivery.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(redisURL string, concurrency int, handler *Handler) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeExecuteWorkflow, handler.HandleExecuteWorkflow)

	return &Worker{server: server, mux: mux}, nil
}

// Run blocks until Shutdown is called or the server fails.
func (w *Worker) Run() error {
	return w.server.Run(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}
