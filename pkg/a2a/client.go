package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultPollInterval = time.Second

// Client talks to a remote A2A agent endpoint: submit once, then poll
// the idempotent GET until the task reaches a terminal state.
type Client struct {
	agentURL     string
	httpClient   *http.Client
	pollInterval time.Duration
}

func NewClient(agentURL string) *Client {
	return &Client{
		agentURL:     strings.TrimRight(agentURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: defaultPollInterval,
	}
}

// GetCard fetches the remote agent's discovery document.
func (c *Client) GetCard(ctx context.Context) (*AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.agentURL+"/.well-known/agent.json", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("a2a: card fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("a2a: card fetch returned status %d", resp.StatusCode)
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("a2a: failed to decode card: %w", err)
	}
	return &card, nil
}

// SubmitTask sends one task. Submissions are not retried; only the
// polling GETs are safe to repeat.
func (c *Client) SubmitTask(ctx context.Context, text string) (*Task, error) {
	payload, err := json.Marshal(TaskRequest{
		Message: Message{Role: "user", Parts: []Part{{Type: "text", Text: text}}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.agentURL+"/tasks", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("a2a: task submission failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("a2a: task submission returned status %d: %s", resp.StatusCode, string(detail))
	}

	var task Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("a2a: failed to decode task: %w", err)
	}
	return &task, nil
}

func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.agentURL+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("a2a: task poll failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("a2a: task poll returned status %d", resp.StatusCode)
	}

	var task Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("a2a: failed to decode task: %w", err)
	}
	return &task, nil
}

// Execute submits a task and polls until it reaches a terminal state or
// the context deadline expires.
func (c *Client) Execute(ctx context.Context, text string) (*Task, error) {
	task, err := c.SubmitTask(ctx, text)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for !task.Status.IsTerminal() {
		select {
		case <-ctx.Done():
			return task, fmt.Errorf("a2a: task %s did not finish: %w", task.ID, ctx.Err())
		case <-ticker.C:
		}

		polled, err := c.GetTask(ctx, task.ID)
		if err != nil {
			// Poll GETs are idempotent; transient failures just retry.
			continue
		}
		task = polled
	}
	return task, nil
}

// ResultText extracts the concatenated text parts of a completed task.
func ResultText(task *Task) string {
	if task == nil || task.Result == nil {
		return ""
	}
	var out string
	for _, p := range task.Result.Message.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}
