// Package config loads model tier configuration from a JSON file with
// environment overrides, falling back to built-in defaults when the
// file is missing or malformed.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Params are the per-tier sampling parameters.
type Params struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Model names a runtime model and its parameters.
type Model struct {
	Name       string `json:"name"`
	Parameters Params `json:"parameters"`
}

// Settings hold defaults and the provider selection.
type Settings struct {
	Provider          string `json:"provider"`
	DefaultBigModel   string `json:"default_big_model"`
	DefaultSmallModel string `json:"default_small_model"`
	FallbackModel     string `json:"fallback_model"`
}

// Config is the models.json document.
type Config struct {
	Models   map[string]Model `json:"models"`
	Settings Settings         `json:"settings"`
}

// Default returns the built-in fallback configuration.
func Default() *Config {
	return &Config{
		Models: map[string]Model{
			"big":   {Name: "gemma3:12b", Parameters: Params{Temperature: 0.1, MaxTokens: 1000}},
			"small": {Name: "gemma3:1b", Parameters: Params{Temperature: 0.1, MaxTokens: 500}},
		},
		Settings: Settings{
			Provider:          "ollama",
			DefaultBigModel:   "gemma3:12b",
			DefaultSmallModel: "gemma3:1b",
			FallbackModel:     "gemma3:1b",
		},
	}
}

// Load reads the configuration file. A missing or malformed file yields
// the defaults; the error reports what went wrong for logging while the
// returned config is always usable.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Models == nil {
		cfg.Models = Default().Models
	}
	if cfg.Settings.Provider == "" {
		cfg.Settings.Provider = "ollama"
	}
	if cfg.Settings.FallbackModel == "" {
		cfg.Settings.FallbackModel = Default().Settings.FallbackModel
	}
	return &cfg, nil
}

// LoadEnv loads a .env file when present. Missing files are fine.
func LoadEnv() {
	_ = godotenv.Load()
}

// ModelName resolves a tier ("big", "small") to a model name, falling
// back to the configured fallback model for unknown tiers.
func (c *Config) ModelName(tier string) string {
	if m, ok := c.Models[tier]; ok && m.Name != "" {
		return m.Name
	}
	return c.Settings.FallbackModel
}

// ModelParams resolves a tier to its sampling parameters.
func (c *Config) ModelParams(tier string) Params {
	if m, ok := c.Models[tier]; ok {
		return m.Parameters
	}
	return Params{Temperature: 0.1, MaxTokens: 500}
}

// Defaults renders the configured default model selections.
func (c *Config) Defaults() string {
	var sb strings.Builder
	sb.WriteString("Default models:\n")
	fmt.Fprintf(&sb, "  big:      %s\n", c.Settings.DefaultBigModel)
	fmt.Fprintf(&sb, "  small:    %s\n", c.Settings.DefaultSmallModel)
	fmt.Fprintf(&sb, "  fallback: %s\n", c.Settings.FallbackModel)
	fmt.Fprintf(&sb, "  provider: %s\n", c.Settings.Provider)
	return sb.String()
}

// Dump renders the full configuration document as indented JSON.
func (c *Config) Dump() (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("dump config: %w", err)
	}
	return string(data), nil
}

// Summary renders a human-readable configuration overview.
func (c *Config) Summary() string {
	var sb strings.Builder
	sb.WriteString("Model configuration:\n")
	tiers := make([]string, 0, len(c.Models))
	for tier := range c.Models {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)
	for _, tier := range tiers {
		m := c.Models[tier]
		fmt.Fprintf(&sb, "  %s: %s (temperature=%.2f, max_tokens=%d)\n",
			tier, m.Name, m.Parameters.Temperature, m.Parameters.MaxTokens)
	}
	fmt.Fprintf(&sb, "  provider: %s\n", c.Settings.Provider)
	fmt.Fprintf(&sb, "  fallback: %s\n", c.Settings.FallbackModel)
	return sb.String()
}
