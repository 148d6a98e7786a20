// Package config manages the forgecli configuration file at
// ~/.forgecli/config.yaml. Configuration is loaded once at startup and
// mutated only through the explicit setters, which persist the change.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	configDirName  = ".forgecli"
	configFileName = "config.yaml"

	// DefaultServerURL is the backend's default bind address.
	DefaultServerURL = "http://localhost:23979"

	// DefaultQuantization is the GGUF quantization used when a start
	// request does not specify one.
	DefaultQuantization = "q8_0"
)

// Config is the persisted CLI configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Training TrainingParams `yaml:"training,omitempty"`
}

// ServerConfig points at the fine-tuning backend.
type ServerConfig struct {
	URL string `yaml:"url"`
}

// DefaultsConfig holds defaults applied to start requests when flags are
// omitted.
type DefaultsConfig struct {
	Model        string `yaml:"model,omitempty"`
	Quantization string `yaml:"quantization,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists yet.
func DefaultConfig() *Config {
	return &Config{
		Server:   ServerConfig{URL: DefaultServerURL},
		Defaults: DefaultsConfig{Quantization: DefaultQuantization},
	}
}

// GetConfigDir returns the per-user configuration directory.
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, configDirName), nil
}

func configFilePath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads the configuration file, returning defaults when it does not
// exist.
func Load() (*Config, error) {
	path, err := configFilePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Server.URL == "" {
		cfg.Server.URL = DefaultServerURL
	}
	return cfg, nil
}

// Save writes the configuration file, creating the directory if needed.
func Save(cfg *Config) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SetServerURL updates the backend URL and persists the change.
func (c *Config) SetServerURL(url string) error {
	c.Server.URL = url
	return Save(c)
}

// SetDefaultModel updates the default base model and persists the change.
func (c *Config) SetDefaultModel(model string) error {
	c.Defaults.Model = model
	return Save(c)
}
