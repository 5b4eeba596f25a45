package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aviary-ai/aviary/pkg/a2a"
	"github.com/aviary-ai/aviary/pkg/tools"
)

// ErrCircularDependency fails an execution during graph validation,
// before any node has run.
var ErrCircularDependency = errors.New("circular dependency detected")

// AgentRunner executes one agent turn; the chat service implements it.
type AgentRunner interface {
	RunAgent(ctx context.Context, agentID, input string) (string, error)
}

// ToolSource resolves tool names; the tool registry implements it.
type ToolSource interface {
	GetTool(name string) (tools.Tool, bool)
}

// Engine runs a workflow graph to completion. It is stateless across
// executions; persistence of the execution record belongs to the
// caller.
type Engine struct {
	agents AgentRunner
	tools  ToolSource

	// dialRemote builds the client for agent nodes carrying an
	// agent_url. Overridable in tests.
	dialRemote func(agentURL string) *a2a.Client
}

func NewEngine(agents AgentRunner, toolSource ToolSource) *Engine {
	return &Engine{
		agents:     agents,
		tools:      toolSource,
		dialRemote: a2a.NewClient,
	}
}

// Execute runs the nodes of one workflow in topological order and
// returns the per-node results. A non-nil error means the execution
// failed: on a cycle the result map is empty, on a node failure it
// holds every node up to and including the failed one. Later nodes are
// neither executed nor recorded.
func (e *Engine) Execute(ctx context.Context, nodes []Node, edges []Edge, triggerType string, triggerData map[string]interface{}) (map[string]NodeResult, error) {
	results := make(map[string]NodeResult)

	order, err := topologicalOrder(nodes, edges)
	if err != nil {
		return results, err
	}

	if triggerType == "" {
		triggerType = "manual"
	}
	if triggerData == nil {
		triggerData = map[string]interface{}{}
	}

	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	wfCtx := map[string]interface{}{"trigger": triggerData}

	for _, id := range order {
		node := byID[id]
		value, err := e.runNode(ctx, node, triggerType, triggerData, wfCtx)
		if err != nil {
			results[id] = NodeResult{Status: NodeStatusFailed, Error: err.Error()}
			return results, fmt.Errorf("node %s: %w", id, err)
		}
		results[id] = NodeResult{Status: NodeStatusCompleted, Result: value}
		wfCtx[id] = value
	}
	return results, nil
}

// topologicalOrder runs Kahn's algorithm over the graph. Edges with
// unknown endpoints are dropped and duplicates collapse; ties among
// simultaneously ready nodes follow node declaration order.
func topologicalOrder(nodes []Node, edges []Edge) ([]string, error) {
	predecessors := make(map[string]map[string]bool, len(nodes))
	for _, n := range nodes {
		predecessors[n.ID] = make(map[string]bool)
	}
	for _, edge := range edges {
		if _, ok := predecessors[edge.Source]; !ok {
			continue
		}
		if _, ok := predecessors[edge.Target]; !ok {
			continue
		}
		predecessors[edge.Target][edge.Source] = true
	}

	inDegree := make(map[string]int, len(nodes))
	queue := make([]string, 0, len(nodes))
	for _, n := range nodes {
		inDegree[n.ID] = len(predecessors[n.ID])
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)
		for _, n := range nodes {
			if !predecessors[n.ID][current] {
				continue
			}
			inDegree[n.ID]--
			if inDegree[n.ID] == 0 {
				queue = append(queue, n.ID)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, ErrCircularDependency
	}
	return order, nil
}

func (e *Engine) runNode(ctx context.Context, node Node, triggerType string, triggerData, wfCtx map[string]interface{}) (interface{}, error) {
	switch node.Type {
	case NodeTrigger:
		return e.runTriggerNode(node, triggerType, triggerData), nil
	case NodeAgent:
		return e.runAgentNode(ctx, node, wfCtx)
	case NodeTool:
		return e.runToolNode(ctx, node, wfCtx)
	case NodeCondition:
		return e.runConditionNode(node, wfCtx)
	case NodeTransform:
		return e.runTransformNode(node, wfCtx)
	case NodeOutput:
		return e.runOutputNode(node, wfCtx)
	default:
		slog.Warn("skipping unknown workflow node type", "node_id", node.ID, "type", node.Type)
		return map[string]interface{}{
			"message": fmt.Sprintf("Unknown node type: %s", node.Type),
		}, nil
	}
}

func (e *Engine) runTriggerNode(node Node, triggerType string, triggerData map[string]interface{}) interface{} {
	if declared, _ := node.Data["trigger_type"].(string); declared != "" {
		triggerType = declared
	}
	return map[string]interface{}{
		"trigger_type": triggerType,
		"trigger_data": triggerData,
	}
}

func (e *Engine) runAgentNode(ctx context.Context, node Node, wfCtx map[string]interface{}) (interface{}, error) {
	agentID, _ := node.Data["agent_id"].(string)
	agentURL, _ := node.Data["agent_url"].(string)
	if agentID == "" && agentURL == "" {
		return nil, errors.New("agent node requires agent_id or agent_url")
	}

	inputs := map[string]interface{}{}
	if mapping, ok := node.Data["input_mapping"].(map[string]interface{}); ok {
		for key, tmpl := range mapping {
			inputs[key] = ResolveTemplate(tmpl, wfCtx)
		}
	}

	input := agentInputText(inputs)

	var output string
	if agentURL != "" {
		task, err := e.dialRemote(agentURL).Execute(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("remote agent call failed: %w", err)
		}
		if task.Status != a2a.TaskCompleted {
			return nil, fmt.Errorf("remote agent task %s: %s", task.Status, task.Error)
		}
		output = a2a.ResultText(task)
	} else {
		var err error
		output, err = e.agents.RunAgent(ctx, agentID, input)
		if err != nil {
			return nil, fmt.Errorf("agent call failed: %w", err)
		}
	}

	return map[string]interface{}{
		"agent_id": agentID,
		"inputs":   inputs,
		"output":   output,
	}, nil
}

// agentInputText flattens the resolved input mapping into the message
// handed to the agent: a lone string under "input" is passed through,
// anything else is serialised.
func agentInputText(inputs map[string]interface{}) string {
	if s, ok := inputs["input"].(string); ok && len(inputs) == 1 {
		return s
	}
	if len(inputs) == 0 {
		return ""
	}
	encoded, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Sprint(inputs)
	}
	return string(encoded)
}

func (e *Engine) runToolNode(ctx context.Context, node Node, wfCtx map[string]interface{}) (interface{}, error) {
	toolName, _ := node.Data["tool_name"].(string)
	if toolName == "" {
		return nil, errors.New("tool node requires tool_name")
	}
	tool, ok := e.tools.GetTool(toolName)
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", toolName)
	}

	config := map[string]interface{}{}
	if raw, ok := node.Data["tool_config"].(map[string]interface{}); ok {
		for key, value := range raw {
			config[key] = ResolveTemplate(value, wfCtx)
		}
	}

	result, err := tool.Execute(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("tool %s failed: %w", toolName, err)
	}
	if !result.Success {
		return nil, fmt.Errorf("tool %s failed: %s", toolName, result.Error)
	}

	return map[string]interface{}{
		"tool_name": toolName,
		"config":    config,
		"output":    result.Content,
	}, nil
}

func (e *Engine) runConditionNode(node Node, wfCtx map[string]interface{}) (interface{}, error) {
	conditions, err := parseConditions(node.Data["conditions"])
	if err != nil {
		return nil, err
	}
	logic, _ := node.Data["logic"].(string)
	if logic == "" {
		logic = "and"
	}

	clauses := evaluateClauses(conditions, wfCtx)
	return map[string]interface{}{
		"result":               combineClauses(clauses, logic),
		"conditions_evaluated": clauses,
	}, nil
}

func parseConditions(raw interface{}) ([]Condition, error) {
	if raw == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid conditions: %w", err)
	}
	var conditions []Condition
	if err := json.Unmarshal(encoded, &conditions); err != nil {
		return nil, fmt.Errorf("invalid conditions: %w", err)
	}
	return conditions, nil
}

func (e *Engine) runTransformNode(node Node, wfCtx map[string]interface{}) (interface{}, error) {
	transformType, _ := node.Data["transform_type"].(string)
	expression, _ := node.Data["expression"].(string)

	switch transformType {
	case "jmespath":
		return searchPath(expression, wfCtx), nil
	case "template":
		return ResolveTemplate(expression, wfCtx), nil
	default:
		// An unrecognised transform marks its result and lets the run
		// continue.
		return map[string]interface{}{
			"error": fmt.Sprintf("Unknown transform type: %s", transformType),
		}, nil
	}
}

func (e *Engine) runOutputNode(node Node, wfCtx map[string]interface{}) (interface{}, error) {
	outputType, _ := node.Data["output_type"].(string)
	if outputType == "" {
		outputType = "return"
	}

	switch outputType {
	case "return":
		data := make(map[string]interface{}, len(wfCtx))
		for key, value := range wfCtx {
			data[key] = value
		}
		return map[string]interface{}{
			"type": "return",
			"data": data,
		}, nil
	case "webhook", "store":
		return map[string]interface{}{
			"type":   outputType,
			"status": "not_implemented",
		}, nil
	default:
		return map[string]interface{}{
			"type":   outputType,
			"status": "unknown",
		}, nil
	}
}
