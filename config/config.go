package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvHost        = "PBTERM_HOST"
	EnvDownloadDir = "PBTERM_DOWNLOAD_DIR"
	EnvConfig      = "PBTERM_CONFIG"
)

// Config holds pbterm configuration.
type Config struct {
	// Host of the bridge, e.g. "192.168.4.1" or "bridge.lan:8080".
	Host string `yaml:"host"`

	// Where saved transcripts go. Empty means the Downloads folder.
	DownloadDir string `yaml:"download_dir"`

	// Diagnostics log directory. Empty means the OS default.
	LogPath string `yaml:"log_path"`

	// Timeout for REST calls, as a Go duration string.
	RequestTimeout string `yaml:"request_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Host:           "192.168.4.1",
		RequestTimeout: "5s",
	}
}

// DefaultPath is <user config dir>/pbterm/config.yaml, overridable with
// PBTERM_CONFIG.
func DefaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pbterm.yaml"
	}
	return filepath.Join(dir, "pbterm", "config.yaml")
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if h := os.Getenv(EnvHost); h != "" {
		c.Host = h
	}
	if d := os.Getenv(EnvDownloadDir); d != "" {
		c.DownloadDir = d
	}
}

func (c *Config) Validate() error {
	if c.RequestTimeout != "" {
		d, err := time.ParseDuration(c.RequestTimeout)
		if err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
		}
	}
	return nil
}

// Timeout returns the REST timeout, 5s when unset.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}
