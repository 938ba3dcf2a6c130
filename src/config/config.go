// Package config provides configuration management for the buildwatch application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	// CodemagicAPIToken authenticates against the Codemagic API.
	CodemagicAPIToken string
	// CodemagicAppID selects the Codemagic application to build.
	CodemagicAppID string
	// GitHubToken authenticates against the GitHub API.
	GitHubToken string
	// GitHubRepo is the "owner/repo" to dispatch workflows in.
	GitHubRepo string

	// PollInterval is the pause between status polls.
	PollInterval time.Duration
	// WatchTimeout bounds the total watch duration.
	WatchTimeout time.Duration
	// RetryBudget is the number of consecutive transient poll failures
	// tolerated before a watch gives up.
	RetryBudget int

	// RedpandaBrokers enables outcome publishing when non-empty.
	RedpandaBrokers []string
	// DatabaseURL enables the Postgres run history store when non-empty.
	DatabaseURL string
}

// LoadFromEnv loads configuration from environment variables. Provider
// tokens are optional here; TokenFor enforces the one the caller needs.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		CodemagicAPIToken: os.Getenv("CODEMAGIC_API_TOKEN"),
		CodemagicAppID:    os.Getenv("CODEMAGIC_APP_ID"),
		GitHubToken:       os.Getenv("GITHUB_TOKEN"),
		GitHubRepo:        os.Getenv("GITHUB_REPO"),
		PollInterval:      60 * time.Second,
		WatchTimeout:      90 * time.Minute,
		RetryBudget:       5,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
	}

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_INTERVAL %q: %w", v, err)
		}
		cfg.PollInterval = d
	}

	if v := os.Getenv("WATCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WATCH_TIMEOUT %q: %w", v, err)
		}
		cfg.WatchTimeout = d
	}

	if v := os.Getenv("POLL_RETRY_BUDGET"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid POLL_RETRY_BUDGET %q", v)
		}
		cfg.RetryBudget = n
	}

	if v := os.Getenv("REDPANDA_BROKERS"); v != "" {
		for _, broker := range strings.Split(v, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.RedpandaBrokers = append(cfg.RedpandaBrokers, broker)
			}
		}
	}

	return cfg, nil
}

// MustLoadFromEnv loads configuration from environment variables and panics on error.
// This is useful for initialization in main() where configuration errors should be fatal.
func MustLoadFromEnv() *Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// TokenFor returns the API token for the named provider, or an error when
// the corresponding environment variable is unset.
func (c *Config) TokenFor(providerName string) (string, error) {
	switch providerName {
	case "codemagic":
		if c.CodemagicAPIToken == "" {
			return "", fmt.Errorf("CODEMAGIC_API_TOKEN environment variable is required")
		}
		return c.CodemagicAPIToken, nil
	case "github":
		if c.GitHubToken == "" {
			return "", fmt.Errorf("GITHUB_TOKEN environment variable is required")
		}
		return c.GitHubToken, nil
	}
	return "", fmt.Errorf("unknown provider %q", providerName)
}
