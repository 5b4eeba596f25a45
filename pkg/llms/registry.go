package llms

import (
	"fmt"
	"strings"

	"github.com/aviary-ai/aviary/pkg/registry"
)

type Registry struct {
	*registry.BaseRegistry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
	}
}

func (r *Registry) RegisterProvider(name string, provider Provider) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	return r.Register(name, provider)
}

func (r *Registry) GetProvider(name string) (Provider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("LLM provider '%s' not found", name)
	}
	return provider, nil
}

// ForModel resolves the provider responsible for a model identifier.
// Claude models route to anthropic; everything else defaults to openai.
func (r *Registry) ForModel(model string) (Provider, error) {
	name := "openai"
	if strings.HasPrefix(strings.ToLower(model), "claude") {
		name = "anthropic"
	}
	return r.GetProvider(name)
}
