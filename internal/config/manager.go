package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults used when neither the config file nor the environment says
// otherwise.
const (
	DefaultBaseURL        = "http://localhost:5000"
	DefaultPollInterval   = 2 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Config holds the user's persistent client preferences. Durations are kept
// as strings ("2s", "500ms") so the file stays hand-editable.
type Config struct {
	BaseURL        string `json:"base_url,omitempty"`
	PollInterval   string `json:"poll_interval,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a configuration manager rooted at the user config dir.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return &Manager{configDir: filepath.Join(configDir, "manimate")}, nil
}

// Dir returns the directory holding the config file, the token keystore and
// the history cache.
func (m *Manager) Dir() string {
	return m.configDir
}

// ConfigPath returns the absolute path to config.json.
func (m *Manager) ConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the configuration from disk. A missing file yields an empty
// Config and no error.
func (m *Manager) Load() (*Config, error) {
	path := m.ConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration with restricted permissions.
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.ConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv lets environment variables override the file values. Explicit
// env settings win so a stale config file never pins a moved backend.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MANIMATE_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("MANIMATE_POLL_INTERVAL"); v != "" {
		c.PollInterval = v
	}
	if v := os.Getenv("MANIMATE_TIMEOUT"); v != "" {
		c.RequestTimeout = v
	}
}

// EffectiveBaseURL returns the configured base URL or the default.
func (c *Config) EffectiveBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

// EffectivePollInterval parses the configured interval, falling back to the
// default on absence or garbage.
func (c *Config) EffectivePollInterval() time.Duration {
	if d, err := time.ParseDuration(c.PollInterval); err == nil && d > 0 {
		return d
	}
	return DefaultPollInterval
}

// EffectiveRequestTimeout parses the configured timeout, falling back to the
// default on absence or garbage.
func (c *Config) EffectiveRequestTimeout() time.Duration {
	if d, err := time.ParseDuration(c.RequestTimeout); err == nil && d > 0 {
		return d
	}
	return DefaultRequestTimeout
}
