package tools

import (
	"context"
	"fmt"
	"time"
)

// AgentRunner dispatches a one-shot task to a local agent and returns its
// final text output. The chat service provides the implementation; the
// indirection keeps the tool catalog free of a dependency on it.
type AgentRunner interface {
	RunAgent(ctx context.Context, agentID, input string) (string, error)
}

// InvokeAgentTool lets one agent delegate a sub-task to another local
// agent, the in-process short circuit of an A2A dispatch.
type InvokeAgentTool struct {
	runner AgentRunner
}

func NewInvokeAgentTool(runner AgentRunner) *InvokeAgentTool {
	return &InvokeAgentTool{runner: runner}
}

func (t *InvokeAgentTool) GetName() string { return "invoke_agent" }

func (t *InvokeAgentTool) GetDescription() string {
	return "Delegate a task to another agent and return its response"
}

func (t *InvokeAgentTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		Parameters: []ToolParameter{
			{
				Name:        "agent_id",
				Type:        "string",
				Description: "Identifier of the agent to invoke",
				Required:    true,
			},
			{
				Name:        "input",
				Type:        "string",
				Description: "Task description handed to the agent",
				Required:    true,
			},
		},
	}
}

func (t *InvokeAgentTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	agentID, ok := args["agent_id"].(string)
	if !ok || agentID == "" {
		return errorResult(t.GetName(), "invalid arguments: agent_id parameter is required"), nil
	}
	input, ok := args["input"].(string)
	if !ok || input == "" {
		return errorResult(t.GetName(), "invalid arguments: input parameter is required"), nil
	}

	start := time.Now()
	output, err := t.runner.RunAgent(ctx, agentID, input)
	if err != nil {
		return errorResult(t.GetName(), fmt.Sprintf("agent invocation failed: %v", err)), nil
	}

	return successResult(t.GetName(), output, map[string]interface{}{
		"agent_id": agentID,
		"output":   output,
	}, time.Since(start)), nil
}

var _ Tool = (*InvokeAgentTool)(nil)
