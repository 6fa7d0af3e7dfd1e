package config

import (
	"time"

	"github.com/spf13/viper"
)

// Defaults for values that are not set anywhere else.
const (
	DefaultLogLevel      = "info"
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 2048
	DefaultRefusalBoost  = 0.2
	DefaultContextLimit  = 5
	DefaultHistoryWindow = 10
	DefaultMaxCycles     = 5
	DefaultThreshold     = 0.9
	DefaultParallel      = 4
	DefaultVerifyTimeout = 10 * time.Second

	DefaultServerAddr      = "127.0.0.1:7420"
	DefaultMaxSessions     = 64
	DefaultShutdownTimeout = 5 * time.Second
)

// defaultBackends is used when no backend is configured: a hosted model
// first and a local Ollama model marked relaxed as its fallback.
func defaultBackends() []map[string]any {
	return []map[string]any{
		{"id": "gpt", "name": "GPT-4o mini", "provider": "openai", "model": "gpt-4o-mini", "default": true},
		{"id": "local", "name": "Local Llama", "provider": "ollama", "model": "llama3.2", "relaxed": true},
	}
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", false)

	v.SetDefault("chat.system_prompt", SystemPromptChat)
	v.SetDefault("chat.auto_switch", true)
	v.SetDefault("chat.temperature", DefaultTemperature)
	v.SetDefault("chat.max_tokens", DefaultMaxTokens)
	v.SetDefault("chat.refusal_temperature_boost", DefaultRefusalBoost)
	v.SetDefault("chat.context_limit", DefaultContextLimit)
	v.SetDefault("chat.history_window", DefaultHistoryWindow)
	v.SetDefault("chat.timeout", time.Duration(0))

	v.SetDefault("evolve.max_cycles", DefaultMaxCycles)
	v.SetDefault("evolve.threshold", DefaultThreshold)
	v.SetDefault("evolve.parallel", DefaultParallel)
	v.SetDefault("evolve.persist", true)

	v.SetDefault("probes.catalog", "")
	v.SetDefault("memory.embeddings", false)
	v.SetDefault("verify.enabled", false)
	v.SetDefault("verify.timeout", DefaultVerifyTimeout)

	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.max_sessions", DefaultMaxSessions)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)

	v.SetDefault("backends", defaultBackends())
}
