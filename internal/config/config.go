package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// APIKeyPrefix is the required prefix for a classifier credential.
// Keys that don't start with it are rejected at the store boundary.
const APIKeyPrefix = "sk-"

// DefaultPrompt is the exclusion prompt seeded into a fresh config.
const DefaultPrompt = "Is the following tweet related to politics, government actions, geopolitical conflicts, elections, or activism?"

// Config holds all application configuration
type Config struct {
	Version    int              `toml:"version"`
	Filter     FilterConfig     `toml:"filter"`
	Classifier ClassifierConfig `toml:"classifier"`
	Feed       FeedConfig       `toml:"feed"`
	History    HistoryConfig    `toml:"history"`
}

// FilterConfig holds the user's exclusion criteria.
type FilterConfig struct {
	// ExclusionPrompts are yes/no questions posed to the classifier.
	// A post is concealed when any prompt answers YES for its text.
	ExclusionPrompts []string `toml:"exclusion_prompts"`
}

type ClassifierConfig struct {
	APIKey             string `toml:"api_key"`
	Model              string `toml:"model"`
	RequestTimeoutSecs int    `toml:"request_timeout_secs"`
}

type FeedConfig struct {
	Headless            bool `toml:"headless"`
	MutationPollSecs    int  `toml:"mutation_poll_secs"`
	DeepRescanIntervalM int  `toml:"deep_rescan_interval_minutes"`
}

type HistoryConfig struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Filter: FilterConfig{
			ExclusionPrompts: []string{DefaultPrompt},
		},
		Classifier: ClassifierConfig{
			Model:              "gpt-3.5-turbo",
			RequestTimeoutSecs: 30,
		},
		Feed: FeedConfig{
			Headless:            false,
			MutationPollSecs:    2,
			DeepRescanIntervalM: 10,
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
	}
}

// ValidAPIKey reports whether key looks like a usable classifier credential.
func ValidAPIKey(key string) bool {
	return strings.HasPrefix(key, APIKeyPrefix) && len(key) > len(APIKeyPrefix)
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "cleanfeed"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the platform-appropriate directory for mutable data
// (classification history database).
func DataDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "cleanfeed"), nil
}

// Load reads config from disk
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
