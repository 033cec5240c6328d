package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig                `yaml:"app"`
	Provider ProviderConfig           `yaml:"provider"`
	Engine   EngineConfig             `yaml:"engine"`
	Sandbox  SandboxConfig            `yaml:"sandbox"`
	Memory   MemoryConfig             `yaml:"memory"`
	Gateways map[string]GatewayConfig `yaml:"gateways"`
	Logging  LoggingConfig            `yaml:"logging"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	Workspace string `yaml:"workspace"`
}

// ProviderConfig describes the completion service. Models maps the three
// tiers (fast, balanced, powerful) to concrete model identifiers.
type ProviderConfig struct {
	APIKey  string            `yaml:"api_key"`
	BaseURL string            `yaml:"base_url,omitempty"`
	Models  map[string]string `yaml:"models"`
}

type EngineConfig struct {
	MaxPlanSteps int `yaml:"max_plan_steps"`
	MaxRetries   int `yaml:"max_retries"`
}

type SandboxConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	PythonBin      string `yaml:"python_bin"`
}

type MemoryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"`
	Database string `yaml:"database"`
}

type GatewayConfig struct {
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

type LoggingConfig struct {
	Dir string `yaml:"dir"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config usable without a file on disk (tests, one-shot runs).
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "operon"
	}
	if c.App.Workspace == "" {
		c.App.Workspace = "data/outputs"
	}
	if c.Provider.Models == nil {
		c.Provider.Models = map[string]string{}
	}
	if c.Provider.Models["fast"] == "" {
		c.Provider.Models["fast"] = "gpt-4o-mini"
	}
	if c.Provider.Models["balanced"] == "" {
		c.Provider.Models["balanced"] = "gpt-4o"
	}
	if c.Provider.Models["powerful"] == "" {
		c.Provider.Models["powerful"] = "o1"
	}
	if c.Engine.MaxPlanSteps <= 0 {
		c.Engine.MaxPlanSteps = 5
	}
	if c.Engine.MaxRetries <= 0 {
		c.Engine.MaxRetries = 3
	}
	if c.Sandbox.TimeoutSeconds <= 0 {
		c.Sandbox.TimeoutSeconds = 30
	}
	if c.Sandbox.PythonBin == "" {
		c.Sandbox.PythonBin = "python3"
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "data/memory"
	}
	if c.Memory.Database == "" {
		c.Memory.Database = "data/memory/outcomes.db"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "data/logs"
	}
}

func (c *Config) SandboxTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSeconds) * time.Second
}

// GetGateway returns a gateway config if present and enabled.
func (c *Config) GetGateway(name string) (GatewayConfig, bool) {
	gw, ok := c.Gateways[name]
	if ok && gw.Enabled && gw.Token != "" {
		return gw, true
	}
	return GatewayConfig{}, false
}
