package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/captainphantasy/floyd-core/pkg/model"
)

// Facade is the LLM Client Facade (spec §4.2): the only boundary at which
// provider identity is visible. The Engine calls Chat and sees nothing
// but normalized StreamChunks.
type Facade struct {
	providers map[string]Provider
	// modelProviders maps a configured model ID to the provider name that
	// should serve it, resolved from explicit config or inferred from the
	// model ID's naming convention.
	modelProviders map[string]string
}

// NewFacade builds a Facade with the given providers registered by name
// ("openai", "anthropic", ...).
func NewFacade(providers ...Provider) *Facade {
	f := &Facade{providers: make(map[string]Provider, len(providers)), modelProviders: make(map[string]string)}
	for _, p := range providers {
		f.providers[p.Name()] = p
	}
	return f
}

// BindModel associates a model ID with an explicit provider name,
// overriding the inferred-from-name fallback.
func (f *Facade) BindModel(modelID, providerName string) {
	f.modelProviders[modelID] = providerName
}

// Chat picks a provider for req.Model and delegates to its adapter.
func (f *Facade) Chat(ctx context.Context, req ChatRequest) (<-chan model.StreamChunk, error) {
	provider, err := f.resolveProvider(req.Model)
	if err != nil {
		return nil, err
	}
	return provider.Chat(ctx, req)
}

func (f *Facade) resolveProvider(modelID string) (Provider, error) {
	if name, ok := f.modelProviders[modelID]; ok {
		if p, ok := f.providers[name]; ok {
			return p, nil
		}
	}

	name := inferProviderKind(modelID)
	if p, ok := f.providers[name]; ok {
		return p, nil
	}

	return nil, fmt.Errorf("no provider registered for model %q", modelID)
}

// inferProviderKind guesses a provider from a model ID's naming
// convention when no explicit binding exists (spec §4.2: "inferred from
// endpoint host or explicit config").
func inferProviderKind(modelID string) string {
	switch {
	case strings.HasPrefix(modelID, "claude-"):
		return "anthropic"
	case strings.HasPrefix(modelID, "gpt-"), strings.HasPrefix(modelID, "o1"), strings.HasPrefix(modelID, "o3"):
		return "openai"
	default:
		return "openai"
	}
}
