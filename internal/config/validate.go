package config

import (
	"fmt"
	"net/url"
	"time"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.API.Host == "" {
		return fmt.Errorf("api.host must not be empty")
	}
	if err := ValidateURL(cfg.API.Host); err != nil {
		return fmt.Errorf("api.host: %w", err)
	}
	if cfg.API.Resource == "" {
		return fmt.Errorf("api.resource must not be empty")
	}
	if _, err := time.LoadLocation(cfg.API.TimeZone); err != nil {
		return fmt.Errorf("api.timezone %q: %w", cfg.API.TimeZone, err)
	}

	if cfg.Retrievers.QueueSize < 1 {
		return fmt.Errorf("retrievers.queue_size must be >= 1, got %d", cfg.Retrievers.QueueSize)
	}
	if cfg.Retrievers.DownRequestsSleep < 0 {
		return fmt.Errorf("retrievers.down_requests_sleep must be >= 0")
	}
	if cfg.Retrievers.UpRequestsSleep < 0 {
		return fmt.Errorf("retrievers.up_requests_sleep must be >= 0")
	}
	if cfg.Retrievers.UpWaitSleepMin <= 0 {
		return fmt.Errorf("retrievers.up_wait_sleep_min must be > 0")
	}
	if cfg.Retrievers.UpWaitSleep < cfg.Retrievers.UpWaitSleepMin {
		return fmt.Errorf("retrievers.up_wait_sleep (%s) must be >= up_wait_sleep_min (%s)",
			cfg.Retrievers.UpWaitSleep, cfg.Retrievers.UpWaitSleepMin)
	}
	if cfg.Retrievers.RequestTimeout <= 0 {
		return fmt.Errorf("retrievers.request_timeout must be > 0")
	}

	validStorageTypes := map[string]bool{
		"json": true, "jsonl": true, "csv": true, "mongo": true, "none": true,
	}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: json, jsonl, csv, mongo, none)", cfg.Storage.Type)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks that a URL string is a usable http(s) endpoint.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
