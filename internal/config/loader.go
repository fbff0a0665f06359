package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults from struct
	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("TENDERSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search default locations
		v.SetConfigName("tendersync")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".tendersync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// TZ env var names the zone for last_response timestamps (spec.md §6).
	if tz := os.Getenv("TZ"); tz != "" {
		cfg.API.TimeZone = tz
	}

	if err := cfg.ResolveLocation(); err != nil {
		return nil, fmt.Errorf("api.timezone: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	return Load(path)
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("api.host", cfg.API.Host)
	v.SetDefault("api.version", cfg.API.Version)
	v.SetDefault("api.key", cfg.API.Key)
	v.SetDefault("api.resource", cfg.API.Resource)
	v.SetDefault("api.extra_params", cfg.API.ExtraParams)
	v.SetDefault("api.adaptive", cfg.API.Adaptive)
	v.SetDefault("api.timezone", cfg.API.TimeZone)

	v.SetDefault("retrievers.down_requests_sleep", cfg.Retrievers.DownRequestsSleep)
	v.SetDefault("retrievers.up_requests_sleep", cfg.Retrievers.UpRequestsSleep)
	v.SetDefault("retrievers.up_wait_sleep", cfg.Retrievers.UpWaitSleep)
	v.SetDefault("retrievers.up_wait_sleep_min", cfg.Retrievers.UpWaitSleepMin)
	v.SetDefault("retrievers.queue_size", cfg.Retrievers.QueueSize)
	v.SetDefault("retrievers.request_timeout", cfg.Retrievers.RequestTimeout)
	v.SetDefault("retrievers.limit", cfg.Retrievers.Limit)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.batch_size", cfg.Storage.BatchSize)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
