// Package config holds ProbeWing's settings, their defaults and the prompt
// templates. Values come from viper (config file, PROBEWING_* env vars, flags).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/josephgoksu/ProbeWing/internal/backend"
	"github.com/josephgoksu/ProbeWing/internal/llm"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override (PROBEWING_CHAT_TIMEOUT, ...).
const EnvPrefix = "PROBEWING"

// FileName is the config file name without extension.
const FileName = ".probewing"

// Config is the decoded configuration.
type Config struct {
	Log      LogConfig       `mapstructure:"log" yaml:"log"`
	Chat     ChatConfig      `mapstructure:"chat" yaml:"chat"`
	Evolve   EvolveConfig    `mapstructure:"evolve" yaml:"evolve"`
	Probes   ProbesConfig    `mapstructure:"probes" yaml:"probes"`
	Memory   MemoryConfig    `mapstructure:"memory" yaml:"memory"`
	Verify   VerifyConfig    `mapstructure:"verify" yaml:"verify"`
	Server   ServerConfig    `mapstructure:"server" yaml:"server"`
	Backends []BackendConfig `mapstructure:"backends" yaml:"backends" validate:"required,min=1,dive"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// ChatConfig maps onto chat.Config.
type ChatConfig struct {
	SystemPrompt            string        `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
	AutoSwitch              bool          `mapstructure:"auto_switch" yaml:"auto_switch"`
	Temperature             float64       `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens               int           `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gte=0"`
	RefusalTemperatureBoost float64       `mapstructure:"refusal_temperature_boost" yaml:"refusal_temperature_boost" validate:"gte=0,lte=1"`
	ContextLimit            int           `mapstructure:"context_limit" yaml:"context_limit" validate:"gte=0"`
	HistoryWindow           int           `mapstructure:"history_window" yaml:"history_window" validate:"gte=0"`
	Timeout                 time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
	RefusalPhrases          []string      `mapstructure:"refusal_phrases" yaml:"refusal_phrases,omitempty"`
}

// EvolveConfig maps onto evolve.Config.
type EvolveConfig struct {
	MaxCycles int     `mapstructure:"max_cycles" yaml:"max_cycles" validate:"gte=1"`
	Threshold float64 `mapstructure:"threshold" yaml:"threshold" validate:"gt=0,lte=1"`
	Parallel  int     `mapstructure:"parallel" yaml:"parallel" validate:"gte=1"`
	Persist   bool    `mapstructure:"persist" yaml:"persist"`
}

type ProbesConfig struct {
	Catalog string `mapstructure:"catalog" yaml:"catalog"` // Extra YAML rule catalog, optional
}

// MemoryConfig locates the SQLite store.
type MemoryConfig struct {
	Path       string `mapstructure:"path" yaml:"path,omitempty"`
	Embeddings bool   `mapstructure:"embeddings" yaml:"embeddings"`
	// EmbeddingModel overrides the provider default when embeddings are on.
	EmbeddingModel string `mapstructure:"embedding_model" yaml:"embedding_model,omitempty"`
}

type VerifyConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
}

// ServerConfig controls `probewing serve`.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	Origins         []string      `mapstructure:"origins" yaml:"origins,omitempty"` // CORS allow list
	MaxSessions     int           `mapstructure:"max_sessions" yaml:"max_sessions" validate:"gte=1"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`
}

// BackendConfig describes one model backend.
type BackendConfig struct {
	ID        string `mapstructure:"id" yaml:"id" validate:"required"`
	Name      string `mapstructure:"name" yaml:"name,omitempty"`
	Provider  string `mapstructure:"provider" yaml:"provider" validate:"required,oneof=openai ollama anthropic gemini"`
	Model     string `mapstructure:"model" yaml:"model,omitempty"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	APIKeyEnv string `mapstructure:"api_key_env" yaml:"api_key_env,omitempty"`
	Relaxed   bool   `mapstructure:"relaxed" yaml:"relaxed,omitempty"`
	Default   bool   `mapstructure:"default" yaml:"default,omitempty"`
	Stream    bool   `mapstructure:"stream" yaml:"stream,omitempty"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens,omitempty" validate:"gte=0"`
}

// ErrDuplicateBackend is returned when two backends share an id.
var ErrDuplicateBackend = errors.New("duplicate backend id")

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load decodes the global viper instance.
func Load() (*Config, error) {
	return Decode(viper.GetViper())
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if seen[b.ID] {
			return fmt.Errorf("invalid config: %w: %s", ErrDuplicateBackend, b.ID)
		}
		seen[b.ID] = true
	}
	return nil
}

// BackendSpecs converts the backend section for backend.FromSpecs.
func (c *Config) BackendSpecs() []backend.Spec {
	specs := make([]backend.Spec, 0, len(c.Backends))
	for _, b := range c.Backends {
		maxTokens := b.MaxTokens
		if maxTokens == 0 {
			maxTokens = c.Chat.MaxTokens
		}
		specs = append(specs, backend.Spec{
			ID:        b.ID,
			Name:      b.Name,
			Provider:  b.Provider,
			Model:     b.Model,
			BaseURL:   b.BaseURL,
			APIKey:    ResolveAPIKey(llm.Provider(b.Provider), b.APIKeyEnv),
			APIKeyEnv: b.APIKeyEnv,
			Relaxed:   b.Relaxed,
			Default:   b.Default,
			Stream:    b.Stream,
			MaxTokens: maxTokens,
		})
	}
	return specs
}

// DefaultBackend returns the backend marked default, else the first one.
func (c *Config) DefaultBackend() (BackendConfig, bool) {
	if len(c.Backends) == 0 {
		return BackendConfig{}, false
	}
	for _, b := range c.Backends {
		if b.Default {
			return b, true
		}
	}
	return c.Backends[0], true
}
