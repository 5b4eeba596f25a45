package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer is the producer-side surface; HTTP handlers and the
// scheduler depend on it rather than on the concrete client.
type Enqueuer interface {
	EnqueueWorkflow(ctx context.Context, payload ExecuteWorkflowPayload) (string, error)
}

// Client enqueues workflow jobs into the Redis-backed queue.
type Client struct {
	inner   *asynq.Client
	timeout time.Duration
}

func NewClient(redisURL string, taskTimeout time.Duration) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if taskTimeout <= 0 {
		taskTimeout = DefaultTaskTimeout
	}
	return &Client{
		inner:   asynq.NewClient(opt),
		timeout: taskTimeout,
	}, nil
}

// EnqueueWorkflow accepts a job durably and returns its queue id, which
// is opaque but surfaceable to clients for polling.
func (c *Client) EnqueueWorkflow(ctx context.Context, payload ExecuteWorkflowPayload) (string, error) {
	task, err := NewExecuteWorkflowTask(payload, c.timeout)
	if err != nil {
		return "", err
	}
	info, err := c.inner.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue workflow %s: %w", payload.WorkflowID, err)
	}
	slog.Debug("workflow job enqueued",
		"task_id", info.ID,
		"workflow_id", payload.WorkflowID,
		"trigger_type", payload.TriggerType)
	return info.ID, nil
}

func (c *Client) Close() error {
	return c.inner.Close()
}
