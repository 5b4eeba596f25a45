package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const defaultCommandTimeout = 30 * time.Second

// CommandTool executes shell commands restricted to an allow-list.
type CommandTool struct {
	allowedCommands []string
	workingDir      string
	maxExecution    time.Duration
}

func NewCommandTool(allowedCommands []string, workingDir string, maxExecution time.Duration) *CommandTool {
	if workingDir == "" {
		workingDir = "./"
	}
	if maxExecution <= 0 {
		maxExecution = defaultCommandTimeout
	}
	return &CommandTool{
		allowedCommands: allowedCommands,
		workingDir:      workingDir,
		maxExecution:    maxExecution,
	}
}

func (t *CommandTool) GetName() string { return "execute_command" }

func (t *CommandTool) GetDescription() string {
	return "Execute an allow-listed shell command and return its combined output"
}

func (t *CommandTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		Parameters: []ToolParameter{
			{
				Name:        "command",
				Type:        "string",
				Description: "Shell command to execute",
				Required:    true,
			},
			{
				Name:        "working_dir",
				Type:        "string",
				Description: "Working directory (optional)",
				Required:    false,
			},
		},
	}
}

func (t *CommandTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return errorResult(t.GetName(), "invalid arguments: command parameter is required"), nil
	}

	workingDir, _ := args["working_dir"].(string)
	if workingDir == "" {
		workingDir = t.workingDir
	}

	if err := t.validateCommand(command); err != nil {
		return errorResult(t.GetName(), err.Error()), nil
	}

	execCtx, cancel := context.WithTimeout(ctx, t.maxExecution)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	cmd.Dir = workingDir

	start := time.Now()
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if err != nil {
		result := errorResult(t.GetName(), err.Error())
		result.Content = string(output)
		result.ExecutionTime = elapsed
		return result, nil
	}

	return successResult(t.GetName(), string(output), nil, elapsed), nil
}

func (t *CommandTool) validateCommand(command string) error {
	baseCmd := extractBaseCommand(command)
	if baseCmd == "" {
		return fmt.Errorf("invalid arguments: empty command")
	}
	for _, allowed := range t.allowedCommands {
		if baseCmd == allowed {
			return nil
		}
	}
	return fmt.Errorf("command not allowed: %s (allowed: %v)", baseCmd, t.allowedCommands)
}

func extractBaseCommand(command string) string {
	parts := strings.FieldsFunc(command, func(r rune) bool {
		return r == '|' || r == '>' || r == '<' || r == ';'
	})
	if len(parts) == 0 {
		return ""
	}
	cmdParts := strings.Fields(strings.TrimSpace(parts[0]))
	if len(cmdParts) == 0 {
		return ""
	}
	return cmdParts[0]
}

var _ Tool = (*CommandTool)(nil)
