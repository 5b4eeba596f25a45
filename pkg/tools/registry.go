package tools

import (
	"fmt"

	"github.com/aviary-ai/aviary/pkg/llms"
	"github.com/aviary-ai/aviary/pkg/registry"
)

// Registry is the process-wide tool catalog. It is populated during
// startup wiring and read-only afterwards.
type Registry struct {
	*registry.BaseRegistry[Tool]
}

func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Tool](),
	}
}

func (r *Registry) RegisterTool(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	return r.Register(tool.GetName(), tool)
}

func (r *Registry) GetTool(name string) (Tool, bool) {
	return r.Get(name)
}

// Definitions resolves an agent's tool allow-list against the registry.
// Unknown names are skipped; they surface later as execution failures,
// not as crashes.
func (r *Registry) Definitions(names []string) []llms.ToolDefinition {
	defs := make([]llms.ToolDefinition, 0, len(names))
	for _, name := range names {
		if tool, ok := r.Get(name); ok {
			defs = append(defs, tool.GetInfo().ToDefinition())
		}
	}
	return defs
}
