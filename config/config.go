// Package config loads the operation cache's tunables from environment
// variables, following the common OPERATION_-prefixed loading pattern
// used across services that embed the cache.
package config

import (
	"os"
	"strconv"
	"time"
)

// EnvConfig provides utilities for loading configuration from
// environment variables.
type EnvConfig struct {
	prefix string
}

// NewEnvConfig creates a new environment configuration loader. prefix
// is prepended with an underscore to every key; empty means none.
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{prefix: prefix}
}

// GetString retrieves a string value from environment with optional default.
func (ec *EnvConfig) GetString(key, defaultValue string) string {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetInt retrieves an integer value from environment with optional default.
func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetBool retrieves a boolean value from environment with optional default.
func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetDuration retrieves a duration value from environment with optional
// default.
func (ec *EnvConfig) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(ec.buildKey(key)); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix != "" {
		return ec.prefix + "_" + key
	}
	return key
}

// Defaults are the cache-wide baseline tunables the default store
// creator applies per operation kind.
type Defaults struct {
	// FetchRetries is the retry ceiling for single and paginated
	// fetches.
	FetchRetries int
	// FetchBackoffBase seeds the exponential backoff between fetch
	// retries.
	FetchBackoffBase time.Duration
	// MutationRetries is the retry ceiling for mutations. Zero by
	// default: a mutation is not assumed safe to repeat blindly.
	MutationRetries int
	// MutationHistoryCap bounds mutation attempt history; 0 keeps all.
	MutationHistoryCap int
}

// LoadDefaults reads Defaults from OPERATION_-prefixed environment
// variables, falling back to the built-in baseline: 3 fetch retries at
// an exponential 200ms base, no mutation retries, unbounded history.
func LoadDefaults() Defaults {
	env := NewEnvConfig("OPERATION")
	return Defaults{
		FetchRetries:       env.GetInt("FETCH_RETRIES", 3),
		FetchBackoffBase:   env.GetDuration("FETCH_BACKOFF_BASE", 200*time.Millisecond),
		MutationRetries:    env.GetInt("MUTATION_RETRIES", 0),
		MutationHistoryCap: env.GetInt("MUTATION_HISTORY_CAP", 0),
	}
}
