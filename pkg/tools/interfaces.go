package tools

import (
	"context"
	"time"

	"github.com/aviary-ai/aviary/pkg/llms"
)

type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`
}

type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
}

type ToolResult struct {
	Success       bool          `json:"success"`
	Content       string        `json:"content,omitempty"`
	Output        interface{}   `json:"output,omitempty"`
	Error         string        `json:"error,omitempty"`
	ToolName      string        `json:"tool_name"`
	ExecutionTime time.Duration `json:"execution_time,omitempty"`
}

type Tool interface {
	GetInfo() ToolInfo

	Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error)

	GetName() string

	GetDescription() string
}

// ToDefinition converts the tool description to the LLM wire schema.
func (ti ToolInfo) ToDefinition() llms.ToolDefinition {
	properties := make(map[string]interface{}, len(ti.Parameters))
	required := []string{}
	for _, p := range ti.Parameters {
		prop := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return llms.ToolDefinition{
		Name:        ti.Name,
		Description: ti.Description,
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

func successResult(name, content string, output interface{}, elapsed time.Duration) ToolResult {
	return ToolResult{
		Success:       true,
		Content:       content,
		Output:        output,
		ToolName:      name,
		ExecutionTime: elapsed,
	}
}

func errorResult(name, message string) ToolResult {
	return ToolResult{
		Success:  false,
		Error:    message,
		ToolName: name,
	}
}
