package a2a

import (
	"sync"
	"time"
)

// DefaultTaskRetention is how long terminal tasks linger before the
// per-store sweep drops them.
const DefaultTaskRetention = time.Hour

// TaskStore holds one agent's tasks and their execution contexts under a
// single mutex. State is in-memory only; the A2A server treats it as opaque.
type TaskStore struct {
	mu        sync.Mutex
	tasks     map[string]*Task
	contexts  map[string]map[string]interface{}
	retention time.Duration
}

func NewTaskStore(retention time.Duration) *TaskStore {
	if retention <= 0 {
		retention = DefaultTaskRetention
	}
	return &TaskStore{
		tasks:     make(map[string]*Task),
		contexts:  make(map[string]map[string]interface{}),
		retention: retention,
	}
}

func (s *TaskStore) SaveTask(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.UpdatedAt = time.Now().UTC()
	s.tasks[task.ID] = task
	s.sweepLocked()
}

func (s *TaskStore) GetTask(taskID string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	copied := *task
	return &copied, true
}

func (s *TaskStore) DeleteTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
	delete(s.contexts, taskID)
}

func (s *TaskStore) SaveContext(taskID string, ctx map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[taskID] = ctx
}

func (s *TaskStore) GetContext(taskID string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.contexts[taskID]
	return ctx, ok
}

// UpdateStatus transitions a task and records its outcome. Updates to
// unknown tasks are dropped, and terminal tasks never transition again:
// a run cancelled mid-flight keeps executing but its outcome is
// discarded here.
func (s *TaskStore) UpdateStatus(taskID string, status TaskStatus, result *TaskResult, errMsg string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	if task.Status.IsTerminal() {
		return nil, false
	}
	task.Status = status
	task.Result = result
	task.Error = errMsg
	task.UpdatedAt = time.Now().UTC()
	copied := *task
	return &copied, true
}

func (s *TaskStore) SetConversationID(taskID, conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[taskID]; ok {
		task.ConversationID = conversationID
	}
}

// Cancel flips a task to cancelled. Completed and failed tasks are left
// untouched and returned as-is; in-flight work is not interrupted.
func (s *TaskStore) Cancel(taskID string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	if task.Status == TaskCompleted || task.Status == TaskFailed {
		copied := *task
		return &copied, true
	}
	task.Status = TaskCancelled
	task.UpdatedAt = time.Now().UTC()
	copied := *task
	return &copied, true
}

func (s *TaskStore) ListTasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		copied := *task
		out = append(out, &copied)
	}
	return out
}

// sweepLocked drops terminal tasks older than the retention bound.
// Caller holds the mutex.
func (s *TaskStore) sweepLocked() {
	cutoff := time.Now().UTC().Add(-s.retention)
	for id, task := range s.tasks {
		if task.Status.IsTerminal() && task.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			delete(s.contexts, id)
		}
	}
}

// TaskStoreManager is the per-agent store directory. The directory mutex
// guards inserts so the first access for an agent publishes its store
// exactly once; each store then serialises its own operations.
type TaskStoreManager struct {
	mu        sync.Mutex
	stores    map[string]*TaskStore
	retention time.Duration
}

func NewTaskStoreManager(retention time.Duration) *TaskStoreManager {
	if retention <= 0 {
		retention = DefaultTaskRetention
	}
	return &TaskStoreManager{
		stores:    make(map[string]*TaskStore),
		retention: retention,
	}
}

// StoreFor returns the agent's task store, creating it on first use.
func (m *TaskStoreManager) StoreFor(agentID string) *TaskStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	store, ok := m.stores[agentID]
	if !ok {
		store = NewTaskStore(m.retention)
		m.stores[agentID] = store
	}
	return store
}

// lookup returns the agent's store without creating one, so read paths
// probed with arbitrary agent ids leave the directory untouched.
func (m *TaskStoreManager) lookup(agentID string) (*TaskStore, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	store, ok := m.stores[agentID]
	return store, ok
}

// ListTasksByAgent returns the tasks of one agent; agents without a
// store yet have none.
func (m *TaskStoreManager) ListTasksByAgent(agentID string) []*Task {
	store, ok := m.lookup(agentID)
	if !ok {
		return nil
	}
	return store.ListTasks()
}
