package llm

import (
	"strings"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

// DefaultModel is used when a request names no model.
const DefaultModel = "gpt-4.1-nano"

// DefaultModels is the catalogue served when none is configured.
var DefaultModels = []string{
	"gpt-4.1-nano",
	"gpt-4.1-mini",
	"gpt-4.1",
	"gpt-4o",
	"o4-mini",
	"mistral-large-latest",
	"pixtral-large-latest",
	"codestral-latest",
	"openrouter:deepseek/deepseek-r1:free",
	"openrouter:meta-llama/llama-3.3-8b-instruct:free",
	"openrouter:anthropic/claude-sonnet-4",
	"openrouter:google/gemini-2.5-pro",
}

// DefaultFreeModels are the models that count against the message quota
// rather than the daily pro-model quota.
var DefaultFreeModels = []string{
	"openrouter:deepseek/deepseek-r1:free",
	"openrouter:meta-llama/llama-3.3-8b-instruct:free",
	"pixtral-large-latest",
	"mistral-large-latest",
	"gpt-4.1-nano",
}

const openRouterPrefix = "openrouter:"

// DefaultSystemPrompt is used when neither the request nor the chat sets one.
const DefaultSystemPrompt = "You are Yodoo AI, a thoughtful and clear assistant. Your tone is calm, minimal, and human. " +
	"You write with intention: never too much, never too little. You avoid cliches, speak simply, and offer helpful, grounded answers. " +
	"When needed, you ask good questions. You don't try to impress; you aim to clarify. " +
	"You may use metaphors if they bring clarity, but you stay sharp and sincere. " +
	"You're here to help the user think clearly and move forward, not to overwhelm or overperform."

// Registry resolves model ids to providers.
type Registry struct {
	order  []string
	models map[string]domain.ModelInfo
}

// NewRegistry builds a registry. Models outside freeIDs are pro models.
func NewRegistry(ids, freeIDs []string) *Registry {
	free := make(map[string]struct{}, len(freeIDs))
	for _, id := range freeIDs {
		free[id] = struct{}{}
	}

	r := &Registry{models: make(map[string]domain.ModelInfo, len(ids))}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := r.models[id]; dup {
			continue
		}
		_, isFree := free[id]
		r.models[id] = domain.ModelInfo{
			ID:       id,
			Name:     displayName(id),
			Provider: ProviderFor(id),
			Upstream: strings.TrimPrefix(id, openRouterPrefix),
			Pro:      !isFree,
		}
		r.order = append(r.order, id)
	}
	return r
}

// Get returns a model by id.
func (r *Registry) Get(id string) (domain.ModelInfo, bool) {
	m, ok := r.models[id]
	return m, ok
}

// List returns the models in configuration order.
func (r *Registry) List() []domain.ModelInfo {
	out := make([]domain.ModelInfo, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}

// ProviderFor infers the provider from a model id.
func ProviderFor(id string) domain.Provider {
	switch {
	case strings.HasPrefix(id, openRouterPrefix):
		return domain.ProviderOpenRouter
	case strings.HasPrefix(id, "mistral"), strings.HasPrefix(id, "pixtral"),
		strings.HasPrefix(id, "codestral"), strings.HasPrefix(id, "ministral"):
		return domain.ProviderMistral
	default:
		return domain.ProviderOpenAI
	}
}

func displayName(id string) string {
	name := strings.TrimPrefix(id, openRouterPrefix)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	free := strings.HasSuffix(name, ":free")
	name = strings.TrimSuffix(name, ":free")
	name = strings.TrimSuffix(name, "-latest")

	parts := strings.Split(name, "-")
	for i, p := range parts {
		switch {
		case p == "gpt":
			parts[i] = "GPT"
		case len(p) > 0 && p[0] >= 'a' && p[0] <= 'z':
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	name = strings.Join(parts, " ")
	if strings.HasPrefix(name, "GPT ") {
		name = "GPT-" + strings.TrimPrefix(name, "GPT ")
	}
	if free {
		name += " (free)"
	}
	return name
}
