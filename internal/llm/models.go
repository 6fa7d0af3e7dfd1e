package llm

import "strings"

// Model is a known chat model and the provider serving it.
type Model struct {
	ID         string   // Canonical model ID (e.g., "gpt-4o-mini")
	ProviderID Provider // Internal provider ID (e.g., "openai")
	Aliases    []string // Alternative IDs including dated versions
	IsDefault  bool     // Whether this is the default model for its provider
}

// ModelRegistry lists the models backends can be configured with by alias.
// Backends may name any model; this table only supplies defaults.
var ModelRegistry = []Model{
	{ID: "gpt-4o-mini", ProviderID: ProviderOpenAI, Aliases: []string{"gpt-4o-mini-2024-07-18"}, IsDefault: true},
	{ID: "gpt-4o", ProviderID: ProviderOpenAI, Aliases: []string{"gpt-4o-2024-08-06"}},
	{ID: "gpt-4.1-mini", ProviderID: ProviderOpenAI, Aliases: []string{"gpt-4.1-mini-2025-04-14"}},

	{ID: "claude-3-5-haiku-latest", ProviderID: ProviderAnthropic, Aliases: []string{"claude-3-5-haiku-20241022"}, IsDefault: true},
	{ID: "claude-3-5-sonnet-latest", ProviderID: ProviderAnthropic, Aliases: []string{"claude-3-5-sonnet-20241022"}},

	{ID: "gemini-2.0-flash", ProviderID: ProviderGemini, IsDefault: true},
	{ID: "gemini-1.5-pro", ProviderID: ProviderGemini},

	{ID: "llama3.2", ProviderID: ProviderOllama, IsDefault: true},
	{ID: "mistral", ProviderID: ProviderOllama},
}

// modelIndex is built at init time for fast lookups
var modelIndex map[string]*Model

func init() {
	modelIndex = make(map[string]*Model)
	for i := range ModelRegistry {
		m := &ModelRegistry[i]
		modelIndex[m.ID] = m
		for _, alias := range m.Aliases {
			modelIndex[alias] = m
		}
	}
}

// GetModel returns the model definition for a given model ID or alias.
// Returns nil if the model is not found.
func GetModel(modelID string) *Model {
	return modelIndex[modelID]
}

// DefaultModelForProvider returns the default model ID for a provider.
func DefaultModelForProvider(p Provider) string {
	for _, m := range ModelRegistry {
		if m.ProviderID == p && m.IsDefault {
			return m.ID
		}
	}
	return ""
}

// InferProvider attempts to determine the provider from a model name.
func InferProvider(modelID string) (Provider, bool) {
	if m := GetModel(modelID); m != nil {
		return m.ProviderID, true
	}

	switch {
	case strings.HasPrefix(modelID, "gpt-"), strings.HasPrefix(modelID, "o1-"), strings.HasPrefix(modelID, "o3-"):
		return ProviderOpenAI, true
	case strings.HasPrefix(modelID, "claude-"):
		return ProviderAnthropic, true
	case strings.HasPrefix(modelID, "gemini-"):
		return ProviderGemini, true
	case strings.HasPrefix(modelID, "llama"), strings.HasPrefix(modelID, "mistral"), strings.HasPrefix(modelID, "phi"), strings.HasPrefix(modelID, "qwen"):
		return ProviderOllama, true
	}
	return "", false
}
