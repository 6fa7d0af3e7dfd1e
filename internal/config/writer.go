package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by WriteStarter when the file is already there.
var ErrConfigExists = errors.New("config file already exists")

// Starter returns the configuration written by `probewing init`. The system
// prompt is left out so the built-in one keeps applying.
func Starter() Config {
	return Config{
		Log: LogConfig{Level: DefaultLogLevel},
		Chat: ChatConfig{
			AutoSwitch:              true,
			Temperature:             DefaultTemperature,
			MaxTokens:               DefaultMaxTokens,
			RefusalTemperatureBoost: DefaultRefusalBoost,
			ContextLimit:            DefaultContextLimit,
			HistoryWindow:           DefaultHistoryWindow,
		},
		Evolve: EvolveConfig{
			MaxCycles: DefaultMaxCycles,
			Threshold: DefaultThreshold,
			Parallel:  DefaultParallel,
			Persist:   true,
		},
		Verify: VerifyConfig{Timeout: DefaultVerifyTimeout},
		Server: ServerConfig{
			Addr:            DefaultServerAddr,
			MaxSessions:     DefaultMaxSessions,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Backends: []BackendConfig{
			{ID: "gpt", Name: "GPT-4o mini", Provider: "openai", Model: "gpt-4o-mini", Default: true},
			{ID: "local", Name: "Local Llama", Provider: "ollama", Model: "llama3.2", Relaxed: true},
		},
	}
}

// WriteStarter writes the starter config to path. An existing file is only
// replaced when force is set.
func WriteStarter(fs afero.Fs, path string, force bool) error {
	if !force {
		if _, err := fs.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		} else if !os.IsNotExist(err) {
			return err
		}
	}

	data, err := yaml.Marshal(Starter())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	content := append([]byte("# ProbeWing configuration\n"), data...)

	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return afero.WriteFile(fs, path, content, 0600)
}
