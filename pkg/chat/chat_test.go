package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aviary-ai/aviary/pkg/llms"
	"github.com/aviary-ai/aviary/pkg/store"
	"github.com/aviary-ai/aviary/pkg/tools"
)

// ---------------------------------------------------------------------------
// Fakes

type fakeStore struct {
	conversations map[string]*store.Conversation
	messages      map[string][]store.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*store.Conversation),
		messages:      make(map[string][]store.Message),
	}
}

func (f *fakeStore) CreateConversation(ctx context.Context, agentID, userID string) (*store.Conversation, error) {
	conv := &store.Conversation{ID: uuid.NewString(), AgentID: agentID, UserID: userID}
	f.conversations[conv.ID] = conv
	return conv, nil
}

func (f *fakeStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now()
	f.messages[msg.ConversationID] = append(f.messages[msg.ConversationID], *msg)
	return nil
}

func (f *fakeStore) ListMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	return f.messages[conversationID], nil
}

type fakeAgentStore struct {
	agents map[string]*store.Agent
}

func (f *fakeAgentStore) GetAgent(ctx context.Context, id string) (*store.Agent, error) {
	agent, ok := f.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return agent, nil
}

// scriptedProvider returns canned responses in sequence; the last one
// repeats forever.
type scriptedProvider struct {
	responses []*llms.Response
	failAfter int
	calls     int
}

func (p *scriptedProvider) Name() string { return "openai" }

func (p *scriptedProvider) Chat(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	p.calls++
	if p.failAfter > 0 && p.calls > p.failAfter {
		return nil, fmt.Errorf("provider unavailable")
	}
	idx := p.calls - 1
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

func (p *scriptedProvider) ChatWithTools(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	return p.Chat(ctx, req)
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req *llms.Request) (<-chan string, error) {
	ch := make(chan string)
	close(ch)
	return ch, nil
}

type countingTool struct {
	calls int
}

func (c *countingTool) GetName() string        { return "probe" }
func (c *countingTool) GetDescription() string { return "probe" }
func (c *countingTool) GetInfo() tools.ToolInfo {
	return tools.ToolInfo{Name: "probe", Description: "probe"}
}
func (c *countingTool) Execute(ctx context.Context, args map[string]interface{}) (tools.ToolResult, error) {
	c.calls++
	return tools.ToolResult{Success: true, Output: map[string]interface{}{"n": c.calls}}, nil
}

func newTestService(t *testing.T, provider llms.Provider, toolset ...tools.Tool) (*Service, *fakeStore) {
	t.Helper()

	providers := llms.NewRegistry()
	require.NoError(t, providers.RegisterProvider("openai", provider))

	toolRegistry := tools.NewRegistry()
	for _, tool := range toolset {
		require.NoError(t, toolRegistry.RegisterTool(tool))
	}

	st := newFakeStore()
	agents := &fakeAgentStore{agents: map[string]*store.Agent{}}
	return NewService(st, agents, providers, toolRegistry), st
}

func testAgent() *store.Agent {
	return &store.Agent{
		ID:       "agent-1",
		UserID:   "user-1",
		Name:     "helper",
		Prompt:   "You are helpful.",
		LLMModel: "gpt-4o",
		Tools:    []string{"probe"},
	}
}

// ---------------------------------------------------------------------------

func TestChat_NoTools(t *testing.T) {
	provider := &scriptedProvider{responses: []*llms.Response{{Content: "hi there"}}}
	svc, st := newTestService(t, provider)

	convID, content, err := svc.Chat(context.Background(), testAgent(), "user-1", "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", content)

	msgs := st.messages[convID]
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hi there", msgs[1].Content)
	assert.Equal(t, 1, provider.calls)
}

func TestChat_SingleToolRound(t *testing.T) {
	provider := &scriptedProvider{responses: []*llms.Response{
		{ToolCalls: []llms.ToolCall{{ID: "call_1", Name: "probe", Arguments: map[string]interface{}{}}}},
		{Content: "done with tools"},
	}}
	tool := &countingTool{}
	svc, st := newTestService(t, provider, tool)

	convID, content, err := svc.Chat(context.Background(), testAgent(), "user-1", "", "go")
	require.NoError(t, err)
	assert.Equal(t, "done with tools", content)
	assert.Equal(t, 1, tool.calls)
	assert.Equal(t, 2, provider.calls)

	// user, assistant marker, tool result, final assistant.
	msgs := st.messages[convID]
	require.Len(t, msgs, 4)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	assert.NotEmpty(t, msgs[1].ToolCalls)
	assert.Equal(t, store.RoleTool, msgs[2].Role)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
	assert.Contains(t, msgs[2].Content, `"success":true`)
}

func TestChat_IterationCap(t *testing.T) {
	// The model asks for a tool on every round; the loop must stop after
	// exactly MaxToolIterations LLM calls.
	provider := &scriptedProvider{responses: []*llms.Response{
		{ToolCalls: []llms.ToolCall{{ID: "call_x", Name: "probe", Arguments: map[string]interface{}{}}}},
	}}
	tool := &countingTool{}
	svc, st := newTestService(t, provider, tool)

	convID, content, err := svc.Chat(context.Background(), testAgent(), "user-1", "", "loop forever")
	require.NoError(t, err)

	assert.Equal(t, MaxToolIterations, provider.calls)
	assert.Equal(t, MaxToolIterations, tool.calls)
	assert.Empty(t, content)

	// initial user message plus one assistant marker and one tool message
	// per iteration.
	msgs := st.messages[convID]
	assert.Len(t, msgs, 1+2*MaxToolIterations)
}

func TestChat_ContinuesConversation(t *testing.T) {
	provider := &scriptedProvider{responses: []*llms.Response{{Content: "again"}}}
	svc, st := newTestService(t, provider)
	agent := testAgent()

	convID, _, err := svc.Chat(context.Background(), agent, "user-1", "", "first")
	require.NoError(t, err)
	convID2, _, err := svc.Chat(context.Background(), agent, "user-1", convID, "second")
	require.NoError(t, err)

	assert.Equal(t, convID, convID2)
	assert.Len(t, st.messages[convID], 4)
}

func TestChat_UnknownConversation(t *testing.T) {
	provider := &scriptedProvider{responses: []*llms.Response{{Content: "x"}}}
	svc, _ := newTestService(t, provider)

	_, _, err := svc.Chat(context.Background(), testAgent(), "user-1", "missing-conv", "hello")
	require.Error(t, err)
}

func TestChat_EmptyMessage(t *testing.T) {
	provider := &scriptedProvider{responses: []*llms.Response{{Content: "x"}}}
	svc, _ := newTestService(t, provider)

	_, _, err := svc.Chat(context.Background(), testAgent(), "user-1", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestChatStream_EventOrdering(t *testing.T) {
	provider := &scriptedProvider{responses: []*llms.Response{
		{ToolCalls: []llms.ToolCall{
			{ID: "call_a", Name: "probe", Arguments: map[string]interface{}{}},
			{ID: "call_b", Name: "probe", Arguments: map[string]interface{}{}},
		}},
		{Content: "final answer"},
	}}
	svc, _ := newTestService(t, provider, &countingTool{})

	var events []StreamEvent
	for ev := range svc.ChatStreamWithTools(context.Background(), testAgent(), "user-1", "", "go") {
		events = append(events, ev)
	}

	require.NotEmpty(t, events)
	assert.Equal(t, EventStart, events[0].Type)
	assert.NotEmpty(t, events[0].ConversationID)
	assert.Equal(t, EventDone, events[len(events)-1].Type)

	// Every tool_call has exactly one matching tool_result after it, and
	// content never precedes an unresolved tool_call.
	callIdx := map[string]int{}
	resultIdx := map[string]int{}
	contentIdx := -1
	for i, ev := range events {
		switch ev.Type {
		case EventToolCall:
			require.NotNil(t, ev.ToolCall)
			_, dup := callIdx[ev.ToolCall.ID]
			require.False(t, dup)
			callIdx[ev.ToolCall.ID] = i
		case EventToolResult:
			require.NotNil(t, ev.ToolResult)
			_, dup := resultIdx[ev.ToolResult.ID]
			require.False(t, dup)
			resultIdx[ev.ToolResult.ID] = i
		case EventContent:
			contentIdx = i
			assert.Equal(t, "final answer", ev.Content)
		}
	}

	require.Equal(t, len(callIdx), len(resultIdx))
	for id, ci := range callIdx {
		ri, ok := resultIdx[id]
		require.True(t, ok, "tool_call %s has no tool_result", id)
		assert.Greater(t, ri, ci, "tool_result %s emitted before its tool_call", id)
		if contentIdx >= 0 {
			assert.Less(t, ri, contentIdx, "content emitted before tool_result %s", id)
		}
	}
	require.GreaterOrEqual(t, contentIdx, 0)
}

func TestChatStream_LLMFailureEmitsError(t *testing.T) {
	provider := &scriptedProvider{
		responses: []*llms.Response{
			{ToolCalls: []llms.ToolCall{{ID: "call_1", Name: "probe", Arguments: map[string]interface{}{}}}},
		},
		failAfter: 1,
	}
	svc, st := newTestService(t, provider, &countingTool{})

	var events []StreamEvent
	for ev := range svc.ChatStreamWithTools(context.Background(), testAgent(), "user-1", "", "go") {
		events = append(events, ev)
	}

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Error, "provider unavailable")

	// Partial durability: the messages persisted before the failure stay.
	convID := events[0].ConversationID
	msgs := st.messages[convID]
	assert.Len(t, msgs, 3)
}

func TestRunAgent(t *testing.T) {
	provider := &scriptedProvider{responses: []*llms.Response{{Content: "delegated result"}}}
	svc, st := newTestService(t, provider)

	agents := svc.agents.(*fakeAgentStore)
	agents.agents["agent-2"] = &store.Agent{
		ID: "agent-2", UserID: "user-9", Prompt: "sub agent", LLMModel: "gpt-4o",
	}

	out, err := svc.RunAgent(context.Background(), "agent-2", "do the thing")
	require.NoError(t, err)
	assert.Equal(t, "delegated result", out)

	// A fresh conversation was created for the delegated run.
	assert.Len(t, st.conversations, 1)

	_, err = svc.RunAgent(context.Background(), "missing", "x")
	require.Error(t, err)
}
