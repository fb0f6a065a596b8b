/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents a distree peer's configuration file, loaded once at
// startup alongside the process-level cobra flags (spec §6.5/§6.6).
type Config struct {
	Listen                string   `yaml:"listen"`
	BootstrapPeers        []string `yaml:"bootstrap_peers"`
	AdminAddr             string   `yaml:"admin_addr"`
	GossipIntervalSeconds int      `yaml:"gossip_interval_seconds"`
	Logging               Logging  `yaml:"logging"`
	SentryDSN             string   `yaml:"sentry_dsn"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a default configuration matching the sample YAML
// in spec §6.6.
func DefaultConfig() *Config {
	return &Config{
		Listen:                "/ip4/0.0.0.0/tcp/0",
		BootstrapPeers:        []string{},
		AdminAddr:             "127.0.0.1:9090",
		GossipIntervalSeconds: 10,
		Logging: Logging{
			Level: "info",
		},
		SentryDSN: "",
	}
}

// LoadConfig loads configuration from the specified path
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	// Resolve a relative path to an absolute one
	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	// Ensure config directory exists
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with secure permissions (0600)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// BootstrapConfig creates a default configuration at configPath if one
// doesn't already exist, returning either the freshly written defaults or
// whatever was already there.
func BootstrapConfig(configPath string) (*Config, error) {
	if ConfigExists(configPath) {
		return LoadConfig(configPath)
	}

	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path: the same
// location under the user's home directory on every platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./distree.yaml"
	}

	// ~/.config/distree/config.yaml
	configDir := filepath.Join(homeDir, ".config", "distree")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
