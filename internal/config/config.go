package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rheldev6-ship-it/integ/internal/utils/pathutil"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const integPrefix = "INTEG"

type Config struct {
	IntegHome   string `mapstructure:"integ_home"`
	Environment string `mapstructure:"environment"`

	// Cache layout. CacheDir holds one subdirectory per installed runtime
	// version; StagingDir holds in-progress downloads prior to commit.
	CacheDir   string `mapstructure:"cache_dir"`
	StagingDir string `mapstructure:"staging_dir"`

	RegistryURL string `mapstructure:"registry_url"`

	// Extra locations probed for an unmanaged system runtime, tried before
	// the built-in Steam locations.
	SystemRuntimePaths []string `mapstructure:"system_runtime_paths"`

	// Runtime versions downloaded ahead of time by `integ warmup`.
	PinnedRuntimes []string `mapstructure:"pinned_runtimes"`

	FetchRetries   int `mapstructure:"fetch_retries"`
	FetchBackoffMs int `mapstructure:"fetch_backoff_ms"`
	FetchTimeoutS  int `mapstructure:"fetch_timeout_s"`
	WarmupWorkers  int `mapstructure:"warmup_workers"`
}

var config *Config

func LoadEnvAndConfigFiles() error {
	integHome, err := getIntegHome()
	if err != nil {
		return err
	}

	cacheDir, err := getSubDir(integHome, "cache_dir", "runtimes")
	if err != nil {
		return err
	}

	stagingDir, err := getSubDir(integHome, "staging_dir", "staging")
	if err != nil {
		return err
	}

	viper.Set("integ_home", integHome)
	viper.Set("cache_dir", cacheDir)
	viper.Set("staging_dir", stagingDir)

	envFile := filepath.Join(integHome, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat .env file: %w", err)
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(integPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	configFile := viper.GetString("config_file")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
		viper.AddConfigPath(integHome)
	}

	if err := LoadConfig(false); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			config = defaultsApplied(&Config{})
			if err := viper.Unmarshal(config); err != nil {
				return fmt.Errorf("error unmarshalling config: %w", err)
			}
			return nil
		}
		return err
	}

	return nil
}

func LoadConfig(reload bool) error {
	if config != nil && !reload {
		return fmt.Errorf("config already loaded")
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}

	config = &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}
	defaultsApplied(config)

	return nil
}

func GetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

func IsLoaded() bool {
	return config != nil
}

// Returns the integ home directory path.
// It attempts to retrieve it from the following sources in order:
// 1. The `integ_home` flag from viper.
// 2. The `INTEG_HOME` environment variable.
// 3. The default home directory (~/.integ).
func getIntegHome() (string, error) {
	integHome := viper.GetString("integ_home")
	if integHome == "" {
		integHome = os.Getenv("INTEG_HOME")
		if integHome == "" {
			integHome = DefaultIntegHome
		}
	}

	integHome, err := pathutil.ExpandPath(integHome)
	if err != nil {
		return "", fmt.Errorf("failed to expand integ home path: %w", err)
	}

	return integHome, nil
}

func getSubDir(integHome, key, fallback string) (string, error) {
	if integHome == "" {
		return "", ErrIntegHomeNotSet
	}

	dir := viper.GetString(key)
	if dir == "" {
		dir = filepath.Join(integHome, fallback)
	}

	dir, err := pathutil.ExpandPath(dir)
	if err != nil {
		return "", ErrIntegHomeExpandFailed
	}

	return dir, nil
}
