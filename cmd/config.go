package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/josephgoksu/ProbeWing/internal/config"
	"github.com/spf13/viper"
)

var (
	loadOnce  sync.Once
	loadedCfg *config.Config
	loadErr   error
)

// InitConfig reads in config file and ENV variables if set.
func InitConfig() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	viper.SetEnvPrefix(config.EnvPrefix)                   // e.g., PROBEWING_CHAT_TIMEOUT
	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // Replace dots with underscores in env var names

	cfgFileFlag := viper.GetString("config")
	if cfgFileFlag != "" {
		viper.SetConfigFile(cfgFileFlag)
	} else if _, err := os.Stat(config.LocalDir); err == nil {
		// ./.probewing/.probewing.yaml wins over the global file.
		viper.AddConfigPath(config.LocalDir)
		viper.SetConfigName(config.FileName)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(config.FileName)
	}

	if err := viper.ReadInConfig(); err == nil {
		slog.Debug("using config file", "path", viper.ConfigFileUsed())
	} else {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			slog.Debug("no config file found, using defaults and environment")
		case cfgFileFlag != "":
			loadErr = fmt.Errorf("read config %s: %w", cfgFileFlag, err)
		default:
			loadErr = fmt.Errorf("read config %s: %w", viper.ConfigFileUsed(), err)
		}
	}

	config.SetDefaults(viper.GetViper())
}

// GetConfig returns the decoded configuration, loading it on first use.
func GetConfig() (*config.Config, error) {
	loadOnce.Do(func() {
		if loadErr != nil {
			return
		}
		loadedCfg, loadErr = config.Load()
	})
	return loadedCfg, loadErr
}

// resetConfig forgets the loaded configuration. Tests call it after
// changing viper state.
func resetConfig() {
	loadOnce = sync.Once{}
	loadedCfg, loadErr = nil, nil
}
