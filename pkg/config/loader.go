package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// SaveConfig writes the config to the specified path
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Default returns a config with every default applied, for callers that
// run without a config file.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Layout.Depth <= 0 {
		cfg.Layout.Depth = 1
	}
	if cfg.Layout.PreviewWidth <= 0 || cfg.Layout.PreviewWidth >= 1 {
		cfg.Layout.PreviewWidth = 0.5
	}
	if cfg.Layout.MaxParentWidth <= 0 || cfg.Layout.MaxParentWidth >= 1 {
		cfg.Layout.MaxParentWidth = 0.3
	}
	if cfg.Layout.SelfWidth <= 0 || cfg.Layout.SelfWidth >= 1 {
		cfg.Layout.SelfWidth = 0.2
	}
	if cfg.Refresh.DebounceMS <= 0 {
		cfg.Refresh.DebounceMS = 50
	}
	if cfg.Refresh.PollMS <= 0 {
		cfg.Refresh.PollMS = 2000
	}
	if cfg.Listing.Order == "" {
		cfg.Listing.Order = "dirs-first"
	}
	if cfg.Decor.ModeLine == "" {
		cfg.Decor.ModeLine = "full"
	}
	if cfg.Decor.HeaderLine == "" {
		cfg.Decor.HeaderLine = "full"
	}
}
