package a2a

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aviary-ai/aviary/pkg/chat"
	"github.com/aviary-ai/aviary/pkg/store"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrEmptyMessage = errors.New("task message has no text")
)

// Runner executes one chat turn; the chat service implements it.
type Runner interface {
	Chat(ctx context.Context, agent chat.Agent, userID, conversationID, userMessage string) (string, string, error)
}

// Server owns the task lifecycle of A2A-enabled agents: submissions run
// asynchronously through the chat service, with state in the injected
// TaskStoreManager.
type Server struct {
	stores      *TaskStoreManager
	runner      Runner
	taskTimeout time.Duration
}

func NewServer(stores *TaskStoreManager, runner Runner, taskTimeout time.Duration) *Server {
	if taskTimeout <= 0 {
		taskTimeout = 300 * time.Second
	}
	return &Server{
		stores:      stores,
		runner:      runner,
		taskTimeout: taskTimeout,
	}
}

// SubmitTask registers a pending task and launches its execution. The
// returned record reflects the state at submission time.
func (s *Server) SubmitTask(agent *store.Agent, req *TaskRequest) (*Task, error) {
	text := req.Text()
	if text == "" {
		return nil, ErrEmptyMessage
	}

	taskID := req.ID
	if taskID == "" {
		taskID = uuid.NewString()
	}

	task := &Task{
		ID:        taskID,
		AgentID:   agent.ID,
		Status:    TaskPending,
		CreatedAt: time.Now().UTC(),
	}

	taskStore := s.stores.StoreFor(agent.ID)
	taskStore.SaveTask(task)
	taskStore.SaveContext(taskID, map[string]interface{}{
		"input": text,
	})

	go s.run(taskStore, agent, taskID, text)

	snapshot, _ := taskStore.GetTask(taskID)
	return snapshot, nil
}

// run drives one task to a terminal state. Cancellation is cooperative:
// a task cancelled mid-flight keeps running but its outcome is discarded
// by the terminal-state guard in UpdateStatus.
func (s *Server) run(taskStore *TaskStore, agent *store.Agent, taskID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.taskTimeout)
	defer cancel()

	if _, ok := taskStore.UpdateStatus(taskID, TaskRunning, nil, ""); !ok {
		return
	}

	conversationID, content, err := s.runner.Chat(ctx, agent, agent.UserID, "", text)
	if conversationID != "" {
		taskStore.SetConversationID(taskID, conversationID)
	}

	if err != nil {
		slog.Warn("A2A task failed", "task_id", taskID, "agent_id", agent.ID, "error", err)
		taskStore.UpdateStatus(taskID, TaskFailed, nil, err.Error())
		return
	}

	taskStore.UpdateStatus(taskID, TaskCompleted, &TaskResult{
		Message: Message{
			Role:  "agent",
			Parts: []Part{{Type: "text", Text: content}},
		},
	}, "")
}

func (s *Server) GetTask(agentID, taskID string) (*Task, error) {
	taskStore, ok := s.stores.lookup(agentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	task, ok := taskStore.GetTask(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task, nil
}

// CancelTask flips a task to cancelled. Cancelling a completed or failed
// task is a no-op returning the terminal record.
func (s *Server) CancelTask(agentID, taskID string) (*Task, error) {
	taskStore, ok := s.stores.lookup(agentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	task, ok := taskStore.Cancel(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task, nil
}

func (s *Server) ListTasks(agentID string) []*Task {
	return s.stores.ListTasksByAgent(agentID)
}
