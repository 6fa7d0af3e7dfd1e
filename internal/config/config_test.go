package config

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/josephgoksu/ProbeWing/internal/llm"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViperForTest(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func newViper(t *testing.T, yamlDoc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if yamlDoc != "" {
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(strings.NewReader(yamlDoc)))
	}
	return v
}

func TestDecode_Defaults(t *testing.T) {
	cfg, err := Decode(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, SystemPromptChat, cfg.Chat.SystemPrompt)
	assert.True(t, cfg.Chat.AutoSwitch)
	assert.Equal(t, 0.7, cfg.Chat.Temperature)
	assert.Equal(t, 2048, cfg.Chat.MaxTokens)
	assert.Equal(t, 5, cfg.Chat.ContextLimit)
	assert.Equal(t, 10, cfg.Chat.HistoryWindow)
	assert.Zero(t, cfg.Chat.Timeout)
	assert.Equal(t, EvolveConfig{MaxCycles: 5, Threshold: 0.9, Parallel: 4, Persist: true}, cfg.Evolve)
	assert.Equal(t, 10*time.Second, cfg.Verify.Timeout)
	assert.Equal(t, ServerConfig{Addr: "127.0.0.1:7420", MaxSessions: 64, ShutdownTimeout: 5 * time.Second}, cfg.Server)

	require.Len(t, cfg.Backends, 2)
	assert.Equal(t, "gpt", cfg.Backends[0].ID)
	assert.True(t, cfg.Backends[0].Default)
	assert.True(t, cfg.Backends[1].Relaxed)
}

func TestDecode_FileOverrides(t *testing.T) {
	v := newViper(t, `
chat:
  auto_switch: false
  timeout: 45s
evolve:
  max_cycles: 3
backends:
  - id: strict
    provider: anthropic
  - id: loose
    provider: ollama
    model: mistral
    relaxed: true
`)
	cfg, err := Decode(v)
	require.NoError(t, err)

	assert.False(t, cfg.Chat.AutoSwitch)
	assert.Equal(t, 45*time.Second, cfg.Chat.Timeout)
	assert.Equal(t, 3, cfg.Evolve.MaxCycles)
	assert.Equal(t, 0.9, cfg.Evolve.Threshold, "unset keys keep defaults")
	require.Len(t, cfg.Backends, 2)
	assert.Equal(t, "strict", cfg.Backends[0].ID)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"bad log level", "log: {level: loud}", "Level"},
		{"zero cycles", "evolve: {max_cycles: 0}", "MaxCycles"},
		{"threshold above one", "evolve: {threshold: 1.5}", "Threshold"},
		{"unknown provider", "backends: [{id: x, provider: acme}]", "Provider"},
		{"missing id", "backends: [{provider: openai}]", "ID"},
		{"empty server addr", "server: {addr: ''}", "Addr"},
		{"duplicate id", "backends: [{id: a, provider: openai}, {id: a, provider: ollama}]", "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(newViper(t, tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_DuplicateIsSentinel(t *testing.T) {
	cfg := Starter()
	cfg.Backends = append(cfg.Backends, cfg.Backends[0])
	err := cfg.Validate()
	assert.True(t, errors.Is(err, ErrDuplicateBackend))
}

func TestLoad_UsesGlobalViper(t *testing.T) {
	resetViperForTest(t)
	SetDefaults(viper.GetViper())
	viper.Set("chat.context_limit", 2)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Chat.ContextLimit)
}

func TestBackendSpecs(t *testing.T) {
	resetViperForTest(t)
	t.Setenv("MY_KEY", "sk-custom")
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg := &Config{
		Chat: ChatConfig{MaxTokens: 1024},
		Backends: []BackendConfig{
			{ID: "a", Provider: "openai", Default: true},
			{ID: "b", Provider: "openai", APIKeyEnv: "MY_KEY", MaxTokens: 64, Relaxed: true},
		},
	}
	specs := cfg.BackendSpecs()
	require.Len(t, specs, 2)

	assert.Equal(t, "sk-openai", specs[0].APIKey)
	assert.Equal(t, 1024, specs[0].MaxTokens, "falls back to chat.max_tokens")
	assert.True(t, specs[0].Default)

	assert.Equal(t, "sk-custom", specs[1].APIKey)
	assert.Equal(t, 64, specs[1].MaxTokens)
	assert.True(t, specs[1].Relaxed)
}

func TestDefaultBackend(t *testing.T) {
	cfg := &Config{}
	_, ok := cfg.DefaultBackend()
	assert.False(t, ok)

	cfg.Backends = []BackendConfig{{ID: "a"}, {ID: "b", Default: true}}
	b, ok := cfg.DefaultBackend()
	require.True(t, ok)
	assert.Equal(t, "b", b.ID)

	cfg.Backends[1].Default = false
	b, _ = cfg.DefaultBackend()
	assert.Equal(t, "a", b.ID)
}

func TestResolveAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		provider llm.Provider
		keyEnv   string
		env      map[string]string
		viperKey string
		want     string
	}{
		{"backend env wins", llm.ProviderOpenAI, "CUSTOM", map[string]string{"CUSTOM": "c", "OPENAI_API_KEY": "o"}, "v", "c"},
		{"config key before provider env", llm.ProviderOpenAI, "", map[string]string{"OPENAI_API_KEY": "o"}, "v", "v"},
		{"provider env", llm.ProviderAnthropic, "", map[string]string{"ANTHROPIC_API_KEY": " a "}, "", "a"},
		{"empty custom env falls through", llm.ProviderOpenAI, "UNSET_CUSTOM", map[string]string{"OPENAI_API_KEY": "o"}, "", "o"},
		{"gemini google fallback", llm.ProviderGemini, "", map[string]string{"GOOGLE_API_KEY": "g"}, "", "g"},
		{"ollama needs none", llm.ProviderOllama, "", nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViperForTest(t)
			for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "UNSET_CUSTOM"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.viperKey != "" {
				viper.Set("api_keys."+string(tt.provider), tt.viperKey)
			}
			assert.Equal(t, tt.want, ResolveAPIKey(tt.provider, tt.keyEnv))
		})
	}
}

func TestEmbeddingConfig(t *testing.T) {
	resetViperForTest(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg := Starter()
	_, ok, err := EmbeddingConfig(&cfg)
	require.NoError(t, err)
	assert.False(t, ok, "embeddings are off by default")

	cfg.Memory.Embeddings = true
	got, ok, err := EmbeddingConfig(&cfg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, llm.ProviderOpenAI, got.Provider)
	assert.Equal(t, llm.DefaultOpenAIEmbeddingModel, got.EmbeddingModel)
	assert.Equal(t, "sk-openai", got.APIKey)

	cfg.Backends = []BackendConfig{{ID: "local", Provider: "ollama", Default: true}}
	got, _, err = EmbeddingConfig(&cfg)
	require.NoError(t, err)
	assert.Equal(t, llm.DefaultOllamaURL, got.BaseURL)
	assert.Equal(t, llm.DefaultOllamaEmbeddingModel, got.EmbeddingModel)

	cfg.Memory.EmbeddingModel = "mxbai-embed-large"
	got, _, _ = EmbeddingConfig(&cfg)
	assert.Equal(t, "mxbai-embed-large", got.EmbeddingModel)

	cfg.Memory.EmbeddingModel = ""
	cfg.Backends = []BackendConfig{{ID: "claude", Provider: "anthropic"}}
	_, _, err = EmbeddingConfig(&cfg)
	assert.ErrorContains(t, err, "no embedding model")
}

func TestWriteStarter(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.Join(".probewing", ".probewing.yaml")

	require.NoError(t, WriteStarter(fs, path, false))
	err := WriteStarter(fs, path, false)
	assert.True(t, errors.Is(err, ErrConfigExists))
	require.NoError(t, WriteStarter(fs, path, true))

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("# ProbeWing configuration")))
	assert.NotContains(t, string(data), "system_prompt")

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(data)))
	cfg, err := Decode(v)
	require.NoError(t, err)

	want := Starter()
	want.Chat.SystemPrompt = SystemPromptChat
	assert.Equal(t, want, *cfg, "starter file round-trips through viper")
}

func TestGetMemoryBasePath(t *testing.T) {
	t.Run("explicit config", func(t *testing.T) {
		resetViperForTest(t)
		viper.Set("memory.path", "/custom/memory")
		assert.Equal(t, "/custom/memory", GetMemoryBasePath())
	})

	t.Run("xdg data home", func(t *testing.T) {
		resetViperForTest(t)
		t.Chdir(t.TempDir())
		t.Setenv("XDG_DATA_HOME", "/xdg")
		assert.Equal(t, filepath.Join("/xdg", "probewing", "memory"), GetMemoryBasePath())
	})

	t.Run("local project dir", func(t *testing.T) {
		resetViperForTest(t)
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, afero.NewOsFs().MkdirAll(filepath.Join(LocalDir, "memory"), 0755))
		assert.Equal(t, filepath.Join(LocalDir, "memory"), GetMemoryBasePath())
		assert.Equal(t, LocalDir, GetStateDir())
	})

	t.Run("global fallback", func(t *testing.T) {
		resetViperForTest(t)
		t.Chdir(t.TempDir())
		t.Setenv("XDG_DATA_HOME", "")

		original := GetGlobalConfigDir
		t.Cleanup(func() { GetGlobalConfigDir = original })
		GetGlobalConfigDir = func() (string, error) { return "/home/test/.probewing", nil }

		assert.Equal(t, "/home/test/.probewing/memory", GetMemoryBasePath())
		assert.Equal(t, "/home/test/.probewing", GetStateDir())
	})

	t.Run("global dir error", func(t *testing.T) {
		resetViperForTest(t)
		t.Chdir(t.TempDir())
		t.Setenv("XDG_DATA_HOME", "")

		original := GetGlobalConfigDir
		t.Cleanup(func() { GetGlobalConfigDir = original })
		GetGlobalConfigDir = func() (string, error) { return "", errors.New("no home") }

		assert.Equal(t, "./memory", GetMemoryBasePath())
		assert.Equal(t, LocalDir, GetStateDir())
	})
}

func TestRenderPrompt(t *testing.T) {
	got, err := RenderPrompt("dump", PromptDumpAnalysis, map[string]any{"Dump": "uid=0(root)"})
	require.NoError(t, err)
	assert.Contains(t, got, "uid=0(root)")

	_, err = RenderPrompt("broken", "{{.Missing", nil)
	assert.Error(t, err)
}
