package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/josephgoksu/ProbeWing/internal/llm"
	"github.com/spf13/viper"
)

// ResolveAPIKey returns the API key for a backend. Precedence:
// 1. The backend's own api_key_env variable
// 2. Per-provider config key (api_keys.<provider>)
// 3. The provider's conventional env var (GOOGLE_API_KEY also counts for Gemini)
func ResolveAPIKey(provider llm.Provider, keyEnv string) string {
	if keyEnv != "" {
		if key := strings.TrimSpace(os.Getenv(keyEnv)); key != "" {
			return key
		}
	}

	path := fmt.Sprintf("api_keys.%s", provider)
	if viper.IsSet(path) {
		if key := strings.TrimSpace(viper.GetString(path)); key != "" {
			return key
		}
	}

	return providerEnvKey(provider)
}

func providerEnvKey(provider llm.Provider) string {
	env := llm.APIKeyEnv(provider)
	if env == "" {
		return ""
	}
	key := strings.TrimSpace(os.Getenv(env))
	if key == "" && provider == llm.ProviderGemini {
		key = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	}
	return key
}

// EmbeddingConfig returns the client config for the memory embedder. The
// embedder follows the default backend's provider. ok is false when
// embeddings are off.
func EmbeddingConfig(c *Config) (cfg llm.Config, ok bool, err error) {
	if !c.Memory.Embeddings {
		return llm.Config{}, false, nil
	}
	b, found := c.DefaultBackend()
	if !found {
		return llm.Config{}, false, fmt.Errorf("embeddings need a backend")
	}
	provider, err := llm.ValidateProvider(b.Provider)
	if err != nil {
		return llm.Config{}, false, fmt.Errorf("embedding provider: %w", err)
	}

	embeddingModel := c.Memory.EmbeddingModel
	if embeddingModel == "" {
		switch provider {
		case llm.ProviderOpenAI:
			embeddingModel = llm.DefaultOpenAIEmbeddingModel
		case llm.ProviderOllama:
			embeddingModel = llm.DefaultOllamaEmbeddingModel
		case llm.ProviderGemini:
			embeddingModel = llm.DefaultGeminiEmbeddingModel
		default:
			return llm.Config{}, false, fmt.Errorf("provider %s has no embedding model", provider)
		}
	}

	baseURL := b.BaseURL
	if baseURL == "" && provider == llm.ProviderOllama {
		baseURL = llm.DefaultOllamaURL
	}

	return llm.Config{
		Provider:       provider,
		EmbeddingModel: embeddingModel,
		APIKey:         ResolveAPIKey(provider, b.APIKeyEnv),
		BaseURL:        baseURL,
	}, true, nil
}
