package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aviary-ai/aviary/pkg/llms"
)

const (
	// DefaultMaxCallsPerTurn bounds tool dispatches within one agent turn.
	DefaultMaxCallsPerTurn = 5

	// DefaultTimeout caps a single tool execution.
	DefaultTimeout = 60 * time.Second
)

// Executor dispatches tool calls with a per-turn call budget and a
// per-call timeout. One Executor serves one agent turn; the chat loop
// constructs a fresh one (or calls ResetTurn) at turn start.
type Executor struct {
	registry *Registry
	maxCalls int
	timeout  time.Duration

	mu    sync.Mutex
	calls int
}

func NewExecutor(registry *Registry, maxCalls int, timeout time.Duration) *Executor {
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCallsPerTurn
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		registry: registry,
		maxCalls: maxCalls,
		timeout:  timeout,
	}
}

// ResetTurn zeroes the per-turn counter.
func (e *Executor) ResetTurn() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = 0
}

func (e *Executor) CallsRemaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	remaining := e.maxCalls - e.calls
	if remaining < 0 {
		return 0
	}
	return remaining
}

// reserve claims n slots from the turn budget and reports how many were
// granted.
func (e *Executor) reserve(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	remaining := e.maxCalls - e.calls
	if remaining <= 0 {
		return 0
	}
	if n > remaining {
		n = remaining
	}
	e.calls += n
	return n
}

// Execute runs one tool call. The budget is charged before dispatch;
// over-budget calls return a non-ok Result without invoking the tool.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]interface{}) ToolResult {
	if e.reserve(1) == 0 {
		return errorResult(name, fmt.Sprintf("Tool call limit reached, %s not executed", name))
	}
	return e.dispatch(ctx, name, args)
}

// ExecuteParallel runs a batch of tool calls concurrently. Results match
// the request order; calls past the remaining budget get over-limit
// Results at their index positions.
func (e *Executor) ExecuteParallel(ctx context.Context, calls []llms.ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	granted := e.reserve(len(calls))

	var g errgroup.Group
	for i, call := range calls {
		if i >= granted {
			results[i] = errorResult(call.Name, fmt.Sprintf("Tool call limit reached, %s not executed", call.Name))
			continue
		}
		i, call := i, call
		g.Go(func() error {
			results[i] = e.dispatch(ctx, call.Name, call.Arguments)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Executor) dispatch(ctx context.Context, name string, args map[string]interface{}) ToolResult {
	tool, ok := e.registry.Get(name)
	if !ok {
		return errorResult(name, fmt.Sprintf("Tool not found: %s", name))
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		result ToolResult
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		result, err := tool.Execute(execCtx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			// Tool failures are structured Results, never propagated faults.
			return errorResult(name, out.err.Error())
		}
		out.result.ToolName = name
		if out.result.ExecutionTime == 0 {
			out.result.ExecutionTime = time.Since(start)
		}
		return out.result
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return errorResult(name, fmt.Sprintf("Tool execution cancelled: %s", name))
		}
		return errorResult(name, fmt.Sprintf("Tool execution timed out after %s: %s", e.timeout, name))
	}
}
