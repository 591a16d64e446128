package config

import "errors"

const (
	DefaultIntegHome   = "~/.integ"
	DefaultRegistryURL = "https://releases.integ.sh/runtimes/index.json"

	DefaultFetchRetries   = 3
	DefaultFetchBackoffMs = 500
	DefaultFetchTimeoutS  = 300
	DefaultWarmupWorkers  = 2
)

var (
	ErrIntegHomeNotSet       = errors.New("integ home directory is not set")
	ErrIntegHomeExpandFailed = errors.New("failed to expand integ home directory")
)

func defaultsApplied(cfg *Config) *Config {
	if cfg.RegistryURL == "" {
		cfg.RegistryURL = DefaultRegistryURL
	}
	if cfg.FetchRetries <= 0 {
		cfg.FetchRetries = DefaultFetchRetries
	}
	if cfg.FetchBackoffMs <= 0 {
		cfg.FetchBackoffMs = DefaultFetchBackoffMs
	}
	if cfg.FetchTimeoutS <= 0 {
		cfg.FetchTimeoutS = DefaultFetchTimeoutS
	}
	if cfg.WarmupWorkers <= 0 {
		cfg.WarmupWorkers = DefaultWarmupWorkers
	}
	return cfg
}
