package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aviary-ai/aviary/pkg/llms"
	"github.com/aviary-ai/aviary/pkg/store"
	"github.com/aviary-ai/aviary/pkg/tools"
)

// MaxToolIterations bounds the LLM round-trips within one chat turn.
const MaxToolIterations = 5

// Agent is anything the chat loop can drive: a full agent entity or a
// stripped adapter. Implementations are value objects; the loop never
// probes beyond these four accessors.
type Agent interface {
	AgentID() string
	SystemPrompt() string
	Model() string
	ToolNames() []string
}

// Store is the slice of the persistence layer the chat loop needs.
type Store interface {
	CreateConversation(ctx context.Context, agentID, userID string) (*store.Conversation, error)
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	AppendMessage(ctx context.Context, msg *store.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]store.Message, error)
}

// AgentStore resolves agent ids for delegated runs.
type AgentStore interface {
	GetAgent(ctx context.Context, id string) (*store.Agent, error)
}

// Service drives agent turns: history injection, bounded tool dispatch,
// and streaming event emission.
type Service struct {
	store     Store
	agents    AgentStore
	providers *llms.Registry
	tools     *tools.Registry

	maxIterations int
	maxToolCalls  int
	toolTimeout   time.Duration
}

type Option func(*Service)

func WithLimits(maxIterations, maxToolCalls int, toolTimeout time.Duration) Option {
	return func(s *Service) {
		if maxIterations > 0 {
			s.maxIterations = maxIterations
		}
		if maxToolCalls > 0 {
			s.maxToolCalls = maxToolCalls
		}
		if toolTimeout > 0 {
			s.toolTimeout = toolTimeout
		}
	}
}

func NewService(st Store, agents AgentStore, providers *llms.Registry, toolRegistry *tools.Registry, opts ...Option) *Service {
	s := &Service{
		store:         st,
		agents:        agents,
		providers:     providers,
		tools:         toolRegistry,
		maxIterations: MaxToolIterations,
		maxToolCalls:  tools.DefaultMaxCallsPerTurn,
		toolTimeout:   tools.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chat runs one non-streaming turn and returns the conversation id and
// the final assistant content.
func (s *Service) Chat(ctx context.Context, agent Agent, userID, conversationID, userMessage string) (string, string, error) {
	turn, err := s.beginTurn(ctx, agent, userID, conversationID, userMessage)
	if err != nil {
		return "", "", err
	}

	content, _, err := s.runLoop(ctx, agent, turn, nil)
	if err != nil {
		return turn.conversationID, "", err
	}
	return turn.conversationID, content, nil
}

// ChatStreamWithTools runs one turn emitting typed events. The channel
// closes after the terminal done or error event.
func (s *Service) ChatStreamWithTools(ctx context.Context, agent Agent, userID, conversationID, userMessage string) <-chan StreamEvent {
	events := make(chan StreamEvent)

	go func() {
		defer close(events)

		emit := func(ev StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		turn, err := s.beginTurn(ctx, agent, userID, conversationID, userMessage)
		if err != nil {
			emit(StreamEvent{Type: EventError, Error: err.Error()})
			return
		}
		if !emit(StreamEvent{Type: EventStart, ConversationID: turn.conversationID}) {
			return
		}

		content, _, err := s.runLoop(ctx, agent, turn, emit)
		if err != nil {
			emit(StreamEvent{Type: EventError, Error: err.Error()})
			return
		}
		if content != "" {
			if !emit(StreamEvent{Type: EventContent, Content: content}) {
				return
			}
		}
		emit(StreamEvent{Type: EventDone})
	}()

	return events
}

// RunAgent executes a one-shot delegated task against a stored agent in a
// fresh conversation. It backs the invoke_agent tool and in-process A2A
// dispatch.
func (s *Service) RunAgent(ctx context.Context, agentID, input string) (string, error) {
	agent, err := s.agents.GetAgent(ctx, agentID)
	if err != nil {
		return "", fmt.Errorf("failed to load agent %s: %w", agentID, err)
	}
	_, content, err := s.Chat(ctx, agent, agent.UserID, "", input)
	return content, err
}

type turnState struct {
	conversationID string
	messages       []llms.Message
}

// beginTurn resolves the conversation, persists the user message, and
// builds the outbound prompt: system prompt, then the full history in
// creation order.
func (s *Service) beginTurn(ctx context.Context, agent Agent, userID, conversationID, userMessage string) (*turnState, error) {
	if userMessage == "" {
		return nil, fmt.Errorf("message cannot be empty")
	}

	if conversationID == "" {
		conv, err := s.store.CreateConversation(ctx, agent.AgentID(), userID)
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		conversationID = conv.ID
	} else {
		if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
	}

	if err := s.store.AppendMessage(ctx, &store.Message{
		ConversationID: conversationID,
		Role:           store.RoleUser,
		Content:        userMessage,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	history, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	messages := make([]llms.Message, 0, len(history)+1)
	messages = append(messages, llms.Message{Role: store.RoleSystem, Content: agent.SystemPrompt()})
	for _, m := range history {
		msg := llms.Message{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		if len(m.ToolCalls) > 0 {
			if err := json.Unmarshal(m.ToolCalls, &msg.ToolCalls); err != nil {
				slog.Warn("Skipping undecodable tool_calls attachment", "message_id", m.ID, "error", err)
			}
		}
		messages = append(messages, msg)
	}

	return &turnState{conversationID: conversationID, messages: messages}, nil
}

// runLoop is the bounded tool-use loop. emit is nil in the non-streaming
// path. The returned content is the final assistant text, already
// persisted when non-empty.
func (s *Service) runLoop(ctx context.Context, agent Agent, turn *turnState, emit func(StreamEvent) bool) (string, int, error) {
	provider, err := s.providers.ForModel(agent.Model())
	if err != nil {
		return "", 0, err
	}

	defs := s.tools.Definitions(agent.ToolNames())
	executor := tools.NewExecutor(s.tools, s.maxToolCalls, s.toolTimeout)
	executor.ResetTurn()

	var content string
	llmCalls := 0
	for iteration := 0; iteration < s.maxIterations; iteration++ {
		resp, err := provider.ChatWithTools(ctx, &llms.Request{
			Model:    agent.Model(),
			Messages: turn.messages,
			Tools:    defs,
		})
		llmCalls++
		if err != nil {
			return "", llmCalls, fmt.Errorf("LLM call failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			content = resp.Content
			break
		}

		if emit != nil {
			for _, tc := range resp.ToolCalls {
				if !emit(StreamEvent{Type: EventToolCall, ToolCall: &ToolCallEvent{ID: tc.ID, Name: tc.Name, Args: tc.Arguments}}) {
					return "", llmCalls, ctx.Err()
				}
			}
		}

		results := executor.ExecuteParallel(ctx, resp.ToolCalls)

		if emit != nil {
			for i, result := range results {
				if !emit(StreamEvent{Type: EventToolResult, ToolResult: &ToolResultEvent{
					ID:      resp.ToolCalls[i].ID,
					Success: result.Success,
					Output:  result.Output,
					Error:   result.Error,
				}}) {
					return "", llmCalls, ctx.Err()
				}
			}
		}

		if err := s.appendToolRound(ctx, turn, resp, results); err != nil {
			return "", llmCalls, err
		}
	}

	if content != "" {
		if err := s.store.AppendMessage(ctx, &store.Message{
			ConversationID: turn.conversationID,
			Role:           store.RoleAssistant,
			Content:        content,
		}); err != nil {
			return "", llmCalls, fmt.Errorf("failed to persist assistant message: %w", err)
		}
	}
	return content, llmCalls, nil
}

// appendToolRound persists the assistant's tool-call marker and one tool
// message per result, and mirrors both into the outbound prompt.
func (s *Service) appendToolRound(ctx context.Context, turn *turnState, resp *llms.Response, results []tools.ToolResult) error {
	attachment, err := json.Marshal(resp.ToolCalls)
	if err != nil {
		return fmt.Errorf("failed to encode tool calls: %w", err)
	}

	assistantMsg := &store.Message{
		ConversationID: turn.conversationID,
		Role:           store.RoleAssistant,
		Content:        resp.Content,
		ToolCalls:      attachment,
	}
	if err := s.store.AppendMessage(ctx, assistantMsg); err != nil {
		return fmt.Errorf("failed to persist tool-call marker: %w", err)
	}
	turn.messages = append(turn.messages, llms.Message{
		Role:      store.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})

	for i, result := range results {
		payload, err := json.Marshal(result)
		if err != nil {
			payload = []byte(fmt.Sprintf(`{"success":false,"error":%q}`, err.Error()))
		}
		toolMsg := &store.Message{
			ConversationID: turn.conversationID,
			Role:           store.RoleTool,
			Content:        string(payload),
			ToolCallID:     resp.ToolCalls[i].ID,
		}
		if err := s.store.AppendMessage(ctx, toolMsg); err != nil {
			return fmt.Errorf("failed to persist tool result: %w", err)
		}
		turn.messages = append(turn.messages, llms.Message{
			Role:       store.RoleTool,
			Content:    string(payload),
			ToolCallID: resp.ToolCalls[i].ID,
		})
	}
	return nil
}

var _ tools.AgentRunner = (*Service)(nil)
