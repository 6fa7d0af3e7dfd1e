package llm

// Provider constants
const (
	// DefaultProvider is the default LLM provider
	DefaultProvider = ProviderOpenAI

	// ProviderOpenAI represents the OpenAI provider and any OpenAI-compatible
	// endpoint reached through a custom base URL.
	ProviderOpenAI Provider = "openai"

	// ProviderOllama represents a local Ollama server
	ProviderOllama Provider = "ollama"

	// ProviderAnthropic represents the Anthropic provider
	ProviderAnthropic Provider = "anthropic"

	// ProviderGemini represents the Google Gemini provider
	ProviderGemini Provider = "gemini"
)

// DefaultOllamaURL is the default URL for Ollama server
const DefaultOllamaURL = "http://localhost:11434"

// DefaultMaxTokens is used when a provider requires an explicit output budget.
const DefaultMaxTokens = 2048

// Embedding model constants
const (
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
	DefaultOllamaEmbeddingModel = "nomic-embed-text"
	DefaultGeminiEmbeddingModel = "text-embedding-004"
)

// APIKeyEnv returns the conventional environment variable holding the API key
// for a provider. Ollama needs none.
func APIKeyEnv(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}
