package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aviary-ai/aviary/pkg/a2a"
	"github.com/aviary-ai/aviary/pkg/auth"
	"github.com/aviary-ai/aviary/pkg/chat"
	"github.com/aviary-ai/aviary/pkg/queue"
	"github.com/aviary-ai/aviary/pkg/ratelimit"
	"github.com/aviary-ai/aviary/pkg/store"
)

type fakeStore struct {
	agents     map[string]*store.Agent
	workflows  map[string]*store.Workflow
	executions map[string]*store.WorkflowExecution
	webhooks   map[string]*store.WebhookTrigger
	apiKeys    map[string]*store.APIKey

	webhookTouched []string
	insertedKeys   []*store.APIKey
	schedules      []*store.ScheduleTrigger
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		agents:     make(map[string]*store.Agent),
		workflows:  make(map[string]*store.Workflow),
		executions: make(map[string]*store.WorkflowExecution),
		webhooks:   make(map[string]*store.WebhookTrigger),
		apiKeys:    make(map[string]*store.APIKey),
	}
}

func (f *fakeStore) GetAgent(ctx context.Context, id string) (*store.Agent, error) {
	agent, ok := f.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return agent, nil
}

func (f *fakeStore) GetWorkflowForUser(ctx context.Context, id, userID string) (*store.Workflow, error) {
	wf, ok := f.workflows[id]
	if !ok || wf.UserID != userID {
		return nil, store.ErrNotFound
	}
	return wf, nil
}

func (f *fakeStore) GetExecution(ctx context.Context, id string) (*store.WorkflowExecution, error) {
	exec, ok := f.executions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return exec, nil
}

func (f *fakeStore) GetWebhookTriggerByPath(ctx context.Context, path string) (*store.WebhookTrigger, error) {
	trigger, ok := f.webhooks[path]
	if !ok || !trigger.IsActive {
		return nil, store.ErrNotFound
	}
	return trigger, nil
}

func (f *fakeStore) UpdateWebhookLastTriggered(ctx context.Context, id string, at time.Time) error {
	f.webhookTouched = append(f.webhookTouched, id)
	return nil
}

func (f *fakeStore) CreateScheduleTrigger(ctx context.Context, t *store.ScheduleTrigger) error {
	if t.ID == "" {
		t.ID = "sched-1"
	}
	f.schedules = append(f.schedules, t)
	return nil
}

func (f *fakeStore) CreateWebhookTrigger(ctx context.Context, t *store.WebhookTrigger) error {
	if existing, ok := f.webhooks[t.WebhookPath]; ok && existing.IsActive {
		return store.ErrConflict
	}
	if t.ID == "" {
		t.ID = "wh-" + t.WebhookPath
	}
	f.webhooks[t.WebhookPath] = t
	return nil
}

func (f *fakeStore) InsertAPIKey(ctx context.Context, key *store.APIKey) error {
	if key.ID == "" {
		key.ID = "key-" + key.Name
	}
	key.CreatedAt = time.Now().UTC()
	f.apiKeys[key.KeyHash] = key
	f.insertedKeys = append(f.insertedKeys, key)
	return nil
}

func (f *fakeStore) ListAPIKeys(ctx context.Context, userID string) ([]store.APIKey, error) {
	var out []store.APIKey
	for _, key := range f.apiKeys {
		if key.UserID == userID {
			out = append(out, *key)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteAPIKey(ctx context.Context, id, userID string) error {
	for hash, key := range f.apiKeys {
		if key.ID == id && key.UserID == userID {
			delete(f.apiKeys, hash)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) GetAPIKeyByHash(ctx context.Context, hash string) (*store.APIKey, error) {
	key, ok := f.apiKeys[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return key, nil
}

func (f *fakeStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	return nil
}

type fakeEnqueuer struct {
	payloads []queue.ExecuteWorkflowPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueWorkflow(ctx context.Context, payload queue.ExecuteWorkflowPayload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, payload)
	return "task-1", nil
}

// countingLimiter is a process-local stand-in for the Redis limiter
// with the same admission semantics.
type countingLimiter struct {
	used map[string]int
	err  error
}

func newCountingLimiter() *countingLimiter {
	return &countingLimiter{used: make(map[string]int)}
}

func (l *countingLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Result, error) {
	if l.err != nil {
		return ratelimit.Result{}, l.err
	}
	if l.used[key] >= limit {
		return ratelimit.Result{}, nil
	}
	l.used[key]++
	return ratelimit.Result{Allowed: true, Remaining: limit - l.used[key]}, nil
}

func (l *countingLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	remaining := limit - l.used[key]
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

type echoRunner struct{}

func (echoRunner) Chat(ctx context.Context, agent chat.Agent, userID, conversationID, userMessage string) (string, string, error) {
	return "conv-1", "echo: " + userMessage, nil
}

type testHarness struct {
	store    *fakeStore
	enqueuer *fakeEnqueuer
	limiter  *countingLimiter
	server   *httptest.Server
	rawKey   string
	key      *store.APIKey
}

// newHarness builds a full router over fakes, seeded with one tenant
// holding an API key, a workflow, and an A2A-enabled agent.
func newHarness(t *testing.T) *testHarness {
	t.Helper()

	fs := newFakeStore()
	enqueuer := &fakeEnqueuer{}
	limiter := newCountingLimiter()

	generated, err := auth.GenerateKey()
	require.NoError(t, err)
	key := &store.APIKey{
		ID:        "key-1",
		UserID:    "user-1",
		Name:      "ci",
		KeyHash:   generated.Hash,
		KeyPrefix: generated.Display,
		Scopes:    []string{auth.ScopeExecuteWorkflows},
		RateLimit: 3,
		CreatedAt: time.Now().UTC(),
	}
	fs.apiKeys[key.KeyHash] = key

	fs.workflows["wf-1"] = &store.Workflow{
		ID:       "wf-1",
		UserID:   "user-1",
		Name:     "deploy",
		Nodes:    []byte(`[{"id":"t","type":"trigger"}]`),
		Edges:    []byte(`[]`),
		IsActive: true,
	}
	fs.agents["agent-1"] = &store.Agent{
		ID:         "agent-1",
		UserID:     "user-1",
		Name:       "helper",
		LLMModel:   "gpt-4o",
		Tools:      []string{"web_search"},
		A2AEnabled: true,
	}

	a2aServer := a2a.NewServer(a2a.NewTaskStoreManager(0), echoRunner{}, time.Second)
	server := NewServer(Config{
		AppName: "aviary",
		BaseURL: "http://localhost:8080",
	}, fs, enqueuer, limiter, auth.NewValidator(fs), a2aServer)

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &testHarness{
		store:    fs,
		enqueuer: enqueuer,
		limiter:  limiter,
		server:   ts,
		rawKey:   generated.Raw,
		key:      key,
	}
}

func (h *testHarness) request(t *testing.T, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (h *testHarness) authed(t *testing.T, method, path, body string) *http.Response {
	return h.request(t, method, path, body, map[string]string{auth.HeaderAPIKey: h.rawKey})
}
