package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aviary-ai/aviary/pkg/a2a"
	"github.com/aviary-ai/aviary/pkg/tools"
)

type fakeAgentRunner struct {
	calls  []string
	output string
	err    error
}

func (f *fakeAgentRunner) RunAgent(ctx context.Context, agentID, input string) (string, error) {
	f.calls = append(f.calls, agentID+":"+input)
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

type stubEngineTool struct {
	name    string
	content string
	fail    bool
	args    map[string]interface{}
}

func (s *stubEngineTool) GetInfo() tools.ToolInfo { return tools.ToolInfo{Name: s.name} }
func (s *stubEngineTool) GetName() string         { return s.name }
func (s *stubEngineTool) GetDescription() string  { return "" }
func (s *stubEngineTool) Execute(ctx context.Context, args map[string]interface{}) (tools.ToolResult, error) {
	s.args = args
	if s.fail {
		return tools.ToolResult{Success: false, Error: "boom", ToolName: s.name}, nil
	}
	return tools.ToolResult{Success: true, Content: s.content, ToolName: s.name}, nil
}

type fakeToolSource map[string]tools.Tool

func (f fakeToolSource) GetTool(name string) (tools.Tool, bool) {
	tool, ok := f[name]
	return tool, ok
}

func newTestEngine(agents AgentRunner, toolSource ToolSource) *Engine {
	if agents == nil {
		agents = &fakeAgentRunner{}
	}
	if toolSource == nil {
		toolSource = fakeToolSource{}
	}
	return NewEngine(agents, toolSource)
}

func TestEngine_CycleRejectedBeforeAnyNode(t *testing.T) {
	engine := newTestEngine(nil, nil)

	nodes := []Node{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	edges := []Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "c"},
		{Source: "c", Target: "a"},
	}

	results, err := engine.Execute(context.Background(), nodes, edges, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircularDependency)
	assert.Contains(t, err.Error(), "circular")
	assert.Empty(t, results)
}

func TestEngine_TrivialDAG(t *testing.T) {
	engine := newTestEngine(nil, nil)

	nodes := []Node{
		{ID: "t", Type: NodeTrigger, Data: map[string]interface{}{}},
		{ID: "o", Type: NodeOutput, Data: map[string]interface{}{"output_type": "return"}},
	}
	edges := []Edge{{Source: "t", Target: "o"}}

	results, err := engine.Execute(context.Background(), nodes, edges, "", map[string]interface{}{"x": 1})
	require.NoError(t, err)

	trigger := results["t"].Result.(map[string]interface{})
	assert.Equal(t, "manual", trigger["trigger_type"])
	assert.Equal(t, map[string]interface{}{"x": 1}, trigger["trigger_data"])

	output := results["o"].Result.(map[string]interface{})
	assert.Equal(t, "return", output["type"])
	data := output["data"].(map[string]interface{})
	assert.Equal(t, 1, data["trigger"].(map[string]interface{})["x"])
}

func TestEngine_TopologicalOrder(t *testing.T) {
	// Diamond plus a tail; ready-queue ties break by declaration order.
	nodes := []Node{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"}}
	edges := []Edge{
		{Source: "a", Target: "b"},
		{Source: "a", Target: "c"},
		{Source: "b", Target: "d"},
		{Source: "c", Target: "d"},
		{Source: "d", Target: "e"},
		{Source: "b", Target: "d"},     // duplicate, collapses
		{Source: "ghost", Target: "d"}, // unknown endpoint, ignored
	}

	order, err := topologicalOrder(nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, order)
}

func TestEngine_FailFastStopsDownstreamNodes(t *testing.T) {
	agents := &fakeAgentRunner{err: errors.New("model unavailable")}
	engine := newTestEngine(agents, nil)

	nodes := []Node{
		{ID: "t", Type: NodeTrigger},
		{ID: "a", Type: NodeAgent, Data: map[string]interface{}{"agent_id": "agent-1"}},
		{ID: "o", Type: NodeOutput},
	}
	edges := []Edge{{Source: "t", Target: "a"}, {Source: "a", Target: "o"}}

	results, err := engine.Execute(context.Background(), nodes, edges, "api", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")

	assert.Equal(t, NodeStatusCompleted, results["t"].Status)
	assert.Equal(t, NodeStatusFailed, results["a"].Status)
	assert.Contains(t, results["a"].Error, "model unavailable")
	_, ran := results["o"]
	assert.False(t, ran, "nodes after the failure must not run")
}

func TestEngine_UnknownNodeTypeContinues(t *testing.T) {
	engine := newTestEngine(nil, nil)

	nodes := []Node{
		{ID: "x", Type: "hologram"},
		{ID: "o", Type: NodeOutput},
	}
	edges := []Edge{{Source: "x", Target: "o"}}

	results, err := engine.Execute(context.Background(), nodes, edges, "", nil)
	require.NoError(t, err)

	marker := results["x"].Result.(map[string]interface{})
	assert.Equal(t, "Unknown node type: hologram", marker["message"])
	assert.Equal(t, NodeStatusCompleted, results["o"].Status)
}

func TestEngine_AgentNodeResolvesInputMapping(t *testing.T) {
	agents := &fakeAgentRunner{output: "report ready"}
	engine := newTestEngine(agents, nil)

	nodes := []Node{
		{ID: "t", Type: NodeTrigger},
		{ID: "a", Type: NodeAgent, Data: map[string]interface{}{
			"agent_id": "agent-1",
			"input_mapping": map[string]interface{}{
				"input": "Summarise {{trigger.topic}}",
			},
		}},
	}
	edges := []Edge{{Source: "t", Target: "a"}}

	results, err := engine.Execute(context.Background(), nodes, edges, "api", map[string]interface{}{"topic": "Q3"})
	require.NoError(t, err)

	require.Len(t, agents.calls, 1)
	assert.Equal(t, "agent-1:Summarise Q3", agents.calls[0])

	result := results["a"].Result.(map[string]interface{})
	assert.Equal(t, "report ready", result["output"])
	assert.Equal(t, map[string]interface{}{"input": "Summarise Q3"}, result["inputs"])
}

func TestEngine_AgentNodeRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_ = json.NewEncoder(w).Encode(a2a.Task{ID: "t1", Status: a2a.TaskCompleted, Result: &a2a.TaskResult{
				Message: a2a.Message{Role: "agent", Parts: []a2a.Part{{Type: "text", Text: "remote output"}}},
			}})
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	engine := newTestEngine(nil, nil)

	nodes := []Node{{ID: "a", Type: NodeAgent, Data: map[string]interface{}{
		"agent_url": srv.URL,
		"input_mapping": map[string]interface{}{
			"input": "hello",
		},
	}}}

	results, err := engine.Execute(context.Background(), nodes, nil, "", nil)
	require.NoError(t, err)
	result := results["a"].Result.(map[string]interface{})
	assert.Equal(t, "remote output", result["output"])
}

func TestEngine_ToolNode(t *testing.T) {
	tool := &stubEngineTool{name: "http_request", content: "200 OK"}
	engine := newTestEngine(nil, fakeToolSource{"http_request": tool})

	nodes := []Node{
		{ID: "t", Type: NodeTrigger},
		{ID: "call", Type: NodeTool, Data: map[string]interface{}{
			"tool_name": "http_request",
			"tool_config": map[string]interface{}{
				"url":     "https://example.com/{{trigger.path}}",
				"retries": 2,
			},
		}},
	}
	edges := []Edge{{Source: "t", Target: "call"}}

	results, err := engine.Execute(context.Background(), nodes, edges, "", map[string]interface{}{"path": "ping"})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/ping", tool.args["url"])
	assert.Equal(t, 2, tool.args["retries"], "non-string config values pass through unresolved")

	result := results["call"].Result.(map[string]interface{})
	assert.Equal(t, "200 OK", result["output"])
}

func TestEngine_ToolNodeFailureFailsExecution(t *testing.T) {
	tool := &stubEngineTool{name: "flaky", fail: true}
	engine := newTestEngine(nil, fakeToolSource{"flaky": tool})

	nodes := []Node{{ID: "call", Type: NodeTool, Data: map[string]interface{}{"tool_name": "flaky"}}}

	results, err := engine.Execute(context.Background(), nodes, nil, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, NodeStatusFailed, results["call"].Status)
}

func TestEngine_UnknownToolFailsNode(t *testing.T) {
	engine := newTestEngine(nil, nil)

	nodes := []Node{{ID: "call", Type: NodeTool, Data: map[string]interface{}{"tool_name": "missing"}}}

	_, err := engine.Execute(context.Background(), nodes, nil, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool not found: missing")
}

func TestEngine_ConditionNode(t *testing.T) {
	engine := newTestEngine(nil, nil)

	nodes := []Node{
		{ID: "t", Type: NodeTrigger},
		{ID: "gate", Type: NodeCondition, Data: map[string]interface{}{
			"logic": "and",
			"conditions": []interface{}{
				map[string]interface{}{"field": "trigger.event", "operator": "eq", "value": "push"},
				map[string]interface{}{"field": "trigger.count", "operator": "gt", "value": 1},
			},
		}},
	}
	edges := []Edge{{Source: "t", Target: "gate"}}

	results, err := engine.Execute(context.Background(), nodes, edges, "", map[string]interface{}{
		"event": "push",
		"count": 3,
	})
	require.NoError(t, err)

	result := results["gate"].Result.(map[string]interface{})
	assert.Equal(t, true, result["result"])
	assert.Equal(t, []bool{true, true}, result["conditions_evaluated"])
}

func TestEngine_ConditionNodeBareFieldPath(t *testing.T) {
	engine := newTestEngine(nil, nil)

	nodes := []Node{
		{ID: "t", Type: NodeTrigger},
		{ID: "gate", Type: NodeCondition, Data: map[string]interface{}{
			"conditions": []interface{}{
				map[string]interface{}{"field": "trigger.event", "operator": "eq", "value": "push"},
			},
		}},
	}
	edges := []Edge{{Source: "t", Target: "gate"}}

	results, err := engine.Execute(context.Background(), nodes, edges, "", map[string]interface{}{
		"event": "push",
	})
	require.NoError(t, err)

	result := results["gate"].Result.(map[string]interface{})
	assert.Equal(t, true, result["result"], "a bare JMESPath field must resolve, not compare literally")
}

func TestEngine_TransformNode(t *testing.T) {
	engine := newTestEngine(nil, nil)

	nodes := []Node{
		{ID: "t", Type: NodeTrigger},
		{ID: "pick", Type: NodeTransform, Data: map[string]interface{}{
			"transform_type": "jmespath",
			"expression":     "trigger.n",
		}},
		{ID: "greet", Type: NodeTransform, Data: map[string]interface{}{
			"transform_type": "template",
			"expression":     "Hello, {{trigger.name}}!",
		}},
	}
	edges := []Edge{{Source: "t", Target: "pick"}, {Source: "pick", Target: "greet"}}

	results, err := engine.Execute(context.Background(), nodes, edges, "", map[string]interface{}{
		"n":    42,
		"name": "Ada",
	})
	require.NoError(t, err)

	assert.Equal(t, 42, results["pick"].Result, "jmespath transform preserves the value type")
	assert.Equal(t, "Hello, Ada!", results["greet"].Result)
}

func TestEngine_UnknownTransformTypeContinues(t *testing.T) {
	engine := newTestEngine(nil, nil)

	nodes := []Node{
		{ID: "x", Type: NodeTransform, Data: map[string]interface{}{"transform_type": "xslt"}},
		{ID: "o", Type: NodeOutput},
	}
	edges := []Edge{{Source: "x", Target: "o"}}

	results, err := engine.Execute(context.Background(), nodes, edges, "", nil)
	require.NoError(t, err)

	marker := results["x"].Result.(map[string]interface{})
	assert.Equal(t, "Unknown transform type: xslt", marker["error"])
	assert.Equal(t, NodeStatusCompleted, results["o"].Status)
}

func TestEngine_UnknownOutputTypeContinues(t *testing.T) {
	engine := newTestEngine(nil, nil)

	nodes := []Node{{ID: "o", Type: NodeOutput, Data: map[string]interface{}{"output_type": "carrier-pigeon"}}}

	results, err := engine.Execute(context.Background(), nodes, nil, "", nil)
	require.NoError(t, err)

	result := results["o"].Result.(map[string]interface{})
	assert.Equal(t, "carrier-pigeon", result["type"])
	assert.Equal(t, "unknown", result["status"])
}

func TestEngine_NodeResultsFeedDownstreamTemplates(t *testing.T) {
	engine := newTestEngine(nil, nil)

	nodes := []Node{
		{ID: "t", Type: NodeTrigger},
		{ID: "first", Type: NodeTransform, Data: map[string]interface{}{
			"transform_type": "template",
			"expression":     "{{trigger.who}}",
		}},
		{ID: "second", Type: NodeTransform, Data: map[string]interface{}{
			"transform_type": "template",
			"expression":     "again: {{first}}",
		}},
	}
	edges := []Edge{{Source: "t", Target: "first"}, {Source: "first", Target: "second"}}

	results, err := engine.Execute(context.Background(), nodes, edges, "", map[string]interface{}{"who": "world"})
	require.NoError(t, err)
	assert.Equal(t, "again: world", results["second"].Result)
}

func TestEngine_OutputWebhookIsReserved(t *testing.T) {
	engine := newTestEngine(nil, nil)

	nodes := []Node{{ID: "o", Type: NodeOutput, Data: map[string]interface{}{"output_type": "webhook"}}}

	results, err := engine.Execute(context.Background(), nodes, nil, "", nil)
	require.NoError(t, err)
	result := results["o"].Result.(map[string]interface{})
	assert.Equal(t, "not_implemented", result["status"])
}

func TestEngine_LargeFanOutStaysOrdered(t *testing.T) {
	engine := newTestEngine(nil, nil)

	var nodes []Node
	var edges []Edge
	nodes = append(nodes, Node{ID: "root", Type: NodeTrigger})
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("n%02d", i)
		nodes = append(nodes, Node{ID: id, Type: NodeTransform, Data: map[string]interface{}{
			"transform_type": "template",
			"expression":     "ok",
		}})
		edges = append(edges, Edge{Source: "root", Target: id})
	}

	order, err := topologicalOrder(nodes, edges)
	require.NoError(t, err)
	require.Len(t, order, 21)
	assert.Equal(t, "root", order[0])
	for i := 0; i < 20; i++ {
		assert.Equal(t, fmt.Sprintf("n%02d", i), order[i+1])
	}

	results, err := engine.Execute(context.Background(), nodes, edges, "", nil)
	require.NoError(t, err)
	require.Len(t, results, 21)
	for id, result := range results {
		assert.Equal(t, NodeStatusCompleted, result.Status, id)
	}
}
